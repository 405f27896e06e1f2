// Package search implements the result cache and the per-store search
// orchestration on top of the vendor client and the repositories.
package search

import (
	"strings"

	"enviofinder/enums"
)

// Criterion is a normalized search key: a free-text term or a department id.
type Criterion struct {
	Kind  enums.CriterionKind
	Value string
}

func TermCriterion(term string) Criterion {
	return Criterion{
		Kind:  enums.KindTerm,
		Value: strings.ToLower(strings.TrimSpace(term)),
	}
}

func DepartmentCriterion(departmentID string) Criterion {
	return Criterion{
		Kind:  enums.KindDepartment,
		Value: strings.TrimSpace(departmentID),
	}
}

func (c Criterion) String() string {
	return string(c.Kind) + ":" + c.Value
}
