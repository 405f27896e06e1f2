package vendorsite

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storeBase = "https://www.tuenvio.cu/granma"

const searchPage = `<html><body>
<div class="hProductItems">
	<div class="thumbSetting">
		<div class="thumbTitle"><a href="Item?ProdPid=30012&amp;depPid=66">Pollo entero</a></div>
		<div class="thumbPrice"><span>2.50 CUC</span></div>
	</div>
	<div class="thumbSetting">
		<div class="thumbTitle"><a href="Item?ProdPid=30013&amp;depPid=66">Pollo troceado</a></div>
		<div class="thumbPrice"><span>3.10 CUC</span></div>
	</div>
</div>
</body></html>`

func TestExtract_Products(t *testing.T) {
	products, err := Extract(strings.NewReader(searchPage), storeBase)
	require.NoError(t, err)
	require.Len(t, products, 2)

	assert.Equal(t, "30012", products[0].ID)
	assert.Equal(t, "Pollo entero", products[0].Name)
	assert.Equal(t, "2.50 CUC", products[0].Price)
	assert.Equal(t, storeBase+"/Item?ProdPid=30012&depPid=66", products[0].Link)
	assert.Equal(t, "66", products[0].DepartmentID)

	assert.Equal(t, "30013", products[1].ID)
	assert.Equal(t, "Pollo troceado", products[1].Name)
}

func TestExtract_EmptyResultsIsNotAnError(t *testing.T) {
	page := `<html><body><div class="hProductItems"></div></body></html>`

	products, err := Extract(strings.NewReader(page), storeBase)
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestExtract_MissingMarkupIsDistinguished(t *testing.T) {
	page := `<html><body><h1>Service temporarily unavailable</h1></body></html>`

	_, err := Extract(strings.NewReader(page), storeBase)
	assert.ErrorIs(t, err, ErrNoMarkup)
}

func TestExtract_SkipsTilesWithoutProductID(t *testing.T) {
	page := `<html><body><div class="hProductItems">
		<div class="thumbSetting">
			<div class="thumbTitle"><a href="Item?other=1">Sin id</a></div>
			<div class="thumbPrice"><span>1.00 CUC</span></div>
		</div>
		<div class="thumbSetting">
			<div class="thumbTitle"><a href="Item?ProdPid=7">Con id</a></div>
			<div class="thumbPrice"><span>1.00 CUC</span></div>
		</div>
	</div></body></html>`

	products, err := Extract(strings.NewReader(page), storeBase)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "7", products[0].ID)
}
