package enums

type SubscriptionState string

const (
	// StateActive subscriptions are picked up by the rescan scheduler.
	StateActive SubscriptionState = "active"

	// StateProcessed marks a subscription whose alert already fired.
	// The user can reactivate it explicitly.
	StateProcessed SubscriptionState = "processed"

	// StateExpired is terminal; the aging sweep moves subscriptions here
	// once they outlive the configured maximum age.
	StateExpired SubscriptionState = "expired"
)

type CriterionKind string

const (
	// KindTerm is a free-text search term matched by the vendor's search page.
	KindTerm CriterionKind = "term"

	// KindDepartment identifies a vendor department for catalog browsing.
	KindDepartment CriterionKind = "department"
)

type SearchScope string

const (
	// ScopeRegion fans the search out across every store in the user's region.
	ScopeRegion SearchScope = "region"

	// ScopeStore targets only the user's currently selected store.
	ScopeStore SearchScope = "store"
)
