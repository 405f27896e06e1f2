package vendorsite

import (
	"errors"
	"io"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ErrNoMarkup means the page lacked both product tiles and the listing
// container, i.e. the vendor changed its layout (or served an error page).
// A genuinely empty result still carries the container.
var ErrNoMarkup = errors.New("expected product markup not found")

// Extract pulls product tiles out of a storefront listing page.
// storeBase is prepended to the tile's relative href.
func Extract(r io.Reader, storeBase string) ([]Product, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, err
	}

	tiles := doc.Find("div.thumbSetting")
	if tiles.Length() == 0 && doc.Find("div.hProductItems").Length() == 0 {
		return nil, ErrNoMarkup
	}

	products := make([]Product, 0, tiles.Length())
	tiles.Each(func(_ int, tile *goquery.Selection) {
		anchor := tile.Find("div.thumbTitle a").First()
		name := strings.TrimSpace(anchor.Text())
		href, ok := anchor.Attr("href")
		if name == "" || !ok {
			return
		}

		id := productID(href)
		if id == "" {
			return
		}

		price := strings.TrimSpace(tile.Find("div.thumbPrice span").First().Text())

		products = append(products, Product{
			ID:           id,
			Name:         name,
			Price:        price,
			Link:         storeBase + "/" + href,
			DepartmentID: departmentID(href),
		})
	})

	return products, nil
}

func productID(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("ProdPid")
}

func departmentID(href string) string {
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return u.Query().Get("depPid")
}
