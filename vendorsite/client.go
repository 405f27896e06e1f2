// Package vendorsite fetches and parses tuenvio.cu storefront pages.
package vendorsite

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/codeGROOVE-dev/retry"

	"enviofinder/metrics"
)

// Product is a listing scraped from a storefront page.
type Product struct {
	ID           string
	Name         string
	Price        string
	Link         string
	DepartmentID string
}

type Client struct {
	base   string
	client *http.Client
	logger *slog.Logger
}

func New(base string, client *http.Client, logger *slog.Logger) *Client {
	return &Client{
		base:   base,
		client: client,
		logger: logger,
	}
}

// FetchSearch runs a keyword search against one store.
func (c *Client) FetchSearch(ctx context.Context, store, term string) ([]Product, error) {
	pageURL := fmt.Sprintf("%s/%s/Search.aspx?keywords=%%22%s%%22&depPid=0",
		c.base, store, url.QueryEscape(term))
	return c.fetch(ctx, store, pageURL)
}

// FetchDepartment lists the products of one department in one store.
func (c *Client) FetchDepartment(ctx context.Context, store, departmentID string) ([]Product, error) {
	pageURL := fmt.Sprintf("%s/%s/Products?depPid=%s", c.base, store, url.QueryEscape(departmentID))
	return c.fetch(ctx, store, pageURL)
}

func (c *Client) fetch(ctx context.Context, store, pageURL string) ([]Product, error) {
	var products []Product
	storeBase := fmt.Sprintf("%s/%s", c.base, store)

	start := time.Now()
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}

			// Look like a browser; the vendor blocks bare clients.
			req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
			req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
			req.Header.Set("Accept-Language", "es-ES,es;q=0.9,en;q=0.8")
			req.Header.Set("Connection", "keep-alive")
			req.Header.Set("Upgrade-Insecure-Requests", "1")

			resp, err := c.client.Do(req)
			if err != nil {
				c.logger.Warn("vendor request failed, will retry", "url", pageURL, "error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode != http.StatusOK {
				body, _ := io.ReadAll(io.LimitReader(resp.Body, 300))
				return fmt.Errorf("vendor returned status %d: %s", resp.StatusCode, string(body))
			}

			products, err = Extract(resp.Body, storeBase)
			if err != nil {
				// Retrying a page whose markup shape is gone is pointless.
				return retry.Unrecoverable(err)
			}

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("retrying vendor fetch", "attempt", n, "url", pageURL, "error", err)
		}),
	)

	metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.VendorFetches.WithLabelValues(store, "error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", pageURL, err)
	}

	metrics.VendorFetches.WithLabelValues(store, "ok").Inc()
	c.logger.Debug("vendor page fetched", "url", pageURL, "products", len(products))
	return products, nil
}
