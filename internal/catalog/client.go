package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"procparse/internal"
	"procparse/internal/config"
	"procparse/internal/util"
)

type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Errors  json.RawMessage `json:"errors"`
	Data    json.RawMessage `json:"data"`
}

type scrollPayload struct {
	Products []json.RawMessage `json:"products"`
	ScrollID *string           `json:"scrollId"`
	Total    *int              `json:"total"`
}

// apiProduct is one catalog position as the product API delivers it.
type apiProduct struct {
	ID           json.Number `json:"id"`
	SKU          string      `json:"sku"`
	Name         string      `json:"name"`
	Article      string      `json:"article"`
	Unit         string      `json:"unit"`
	Manufacturer string      `json:"manufacturer"`
	UpdatedAt    string      `json:"updatedAt"`
	Codes        []string    `json:"codes"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.CatalogTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.CatalogRateLimitRPS),
	}
}

// GetProductsAll pages through the whole catalog with the scroll cursor.
func (c *Client) GetProductsAll(ctx context.Context) ([]internal.ProductRecord, error) {
	return c.getProductsScroll(ctx, map[string]string{})
}

func (c *Client) GetProductsIncremental(ctx context.Context, mode string) ([]internal.ProductRecord, error) {
	params := map[string]string{}
	switch mode {
	case "day":
		params["changed_days"] = strconv.Itoa(c.cfg.CatalogIncrementalDays)
	case "hour":
		params["changed_hours"] = strconv.Itoa(c.cfg.CatalogIncrementalHours)
	default:
		return nil, fmt.Errorf("unsupported incremental mode: %s", mode)
	}
	return c.getProductsScroll(ctx, params)
}

// GetCategoryTree returns the catalog's category tree as delivered by the API.
func (c *Client) GetCategoryTree(ctx context.Context) (map[string]any, error) {
	body, err := c.fetchJSON(ctx, "catalog/tree", map[string]string{})
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getProductsScroll(ctx context.Context, params map[string]string) ([]internal.ProductRecord, error) {
	all := make([]internal.ProductRecord, 0)
	seen := map[string]struct{}{}
	var scrollID string

	for {
		query := map[string]string{}
		for k, v := range params {
			query[k] = v
		}
		if scrollID != "" {
			query["scrollId"] = scrollID
		}

		body, err := c.fetchJSON(ctx, "product/scroll", query)
		if err != nil {
			return nil, err
		}

		var payload scrollPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, err
		}

		for _, raw := range payload.Products {
			product, err := decodeProduct(raw)
			if err != nil {
				continue
			}
			all = append(all, product)
		}

		if payload.ScrollID == nil || *payload.ScrollID == "" || len(payload.Products) == 0 {
			break
		}
		if _, ok := seen[*payload.ScrollID]; ok {
			break
		}
		seen[*payload.ScrollID] = struct{}{}
		scrollID = *payload.ScrollID
	}

	return all, nil
}

func (c *Client) fetchJSON(ctx context.Context, endpoint string, params map[string]string) ([]byte, error) {
	if strings.TrimSpace(c.cfg.CatalogAPIToken) == "" {
		return nil, errors.New("missing CATALOG_API_TOKEN")
	}
	if strings.TrimSpace(c.cfg.CatalogAPIBaseURL) == "" {
		return nil, errors.New("missing CATALOG_API_BASE_URL")
	}

	baseURL := strings.TrimRight(c.cfg.CatalogAPIBaseURL, "/") + "/"
	u, err := url.Parse(baseURL + endpoint)
	if err != nil {
		return nil, err
	}

	q := u.Query()
	for k, v := range params {
		if strings.TrimSpace(v) != "" {
			q.Set(k, v)
		}
	}
	u.RawQuery = q.Encode()

	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.CatalogAPIToken)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < 5 {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				if err := sleepCtx(ctx, backoff); err != nil {
					return nil, err
				}
				lastErr = fmt.Errorf("catalog status %d", resp.StatusCode)
				continue
			}
			return nil, fmt.Errorf("catalog api error: status=%d body=%s", resp.StatusCode, string(body))
		}

		var apiResp apiResponse
		if err := json.Unmarshal(body, &apiResp); err != nil {
			return nil, err
		}
		if !apiResp.Success {
			return nil, fmt.Errorf("catalog api unsuccessful: %s", string(apiResp.Errors))
		}
		return apiResp.Data, nil
	}

	if lastErr == nil {
		lastErr = errors.New("catalog request failed")
	}
	return nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// decodeProduct maps a catalog position onto ProductRecord. Units are normalized the
// same way as extracted line items so both sides compare; the SKU falls back to the id.
func decodeProduct(raw json.RawMessage) (internal.ProductRecord, error) {
	var p apiProduct
	if err := json.Unmarshal(raw, &p); err != nil {
		return internal.ProductRecord{}, err
	}
	name := util.NormalizeSpaces(p.Name)
	if name == "" {
		return internal.ProductRecord{}, errors.New("empty name")
	}
	id, err := p.ID.Int64()
	if err != nil {
		return internal.ProductRecord{}, fmt.Errorf("product id %q: %w", p.ID, err)
	}

	product := internal.ProductRecord{
		ID:           int(id),
		SKU:          strings.TrimSpace(p.SKU),
		Name:         name,
		Article:      optional(p.Article),
		Unit:         optional(util.NormalizeUnit(p.Unit)),
		Manufacturer: optional(p.Manufacturer),
		UpdatedAt:    optional(p.UpdatedAt),
		Codes:        uniqueCodes(p.Codes),
		RawJSON:      string(raw),
	}
	if product.SKU == "" {
		product.SKU = strconv.FormatInt(id, 10)
	}
	return product, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return util.StringPtr(v)
}

// uniqueCodes trims the barcodes and supplier codes of a position and drops repeats.
func uniqueCodes(codes []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, c := range codes {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
