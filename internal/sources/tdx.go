package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/config"
)

// TDXClient talks to the TeamDynamix REST API. List endpoints return thin
// records; per-ID detail endpoints return the full document including the
// Attributes array, which is why TDX entities go through the enrichment
// pass.
type TDXClient struct {
	cfg    *config.TDXConfig
	client *http.Client
}

// NewTDXClient creates a TDX client.
func NewTDXClient(cfg *config.TDXConfig) *TDXClient {
	return &TDXClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout()},
	}
}

// SearchUsers lists users modified after since (nil for all). TDX user
// search cannot filter on modification server-side, so filtering happens
// client-side in the ingester.
func (c *TDXClient) SearchUsers(ctx context.Context, _ *time.Time) ([]Record, error) {
	body := map[string]any{"IsActive": nil, "MaxResults": 0}
	docs, err := c.post(ctx, fmt.Sprintf("/api/people/search"), body)
	if err != nil {
		return nil, err
	}
	return recordsByKey(docs, "UID", "ModifiedDate"), nil
}

// SearchDepartments lists all accounts/departments.
func (c *TDXClient) SearchDepartments(ctx context.Context, _ *time.Time) ([]Record, error) {
	docs, err := c.post(ctx, "/api/accounts/search", map[string]any{})
	if err != nil {
		return nil, err
	}
	return recordsByKey(docs, "ID", "ModifiedDate"), nil
}

// SearchAssets lists assets for the configured asset application, modified
// after since when the window is incremental.
func (c *TDXClient) SearchAssets(ctx context.Context, since *time.Time) ([]Record, error) {
	body := map[string]any{"MaxResults": 0}
	if since != nil {
		body["ModifiedDateFrom"] = since.UTC().Format(time.RFC3339)
	}
	path := fmt.Sprintf("/api/%d/assets/search", c.cfg.AssetAppID)
	docs, err := c.post(ctx, path, body)
	if err != nil {
		return nil, err
	}
	return recordsByKey(docs, "ID", "ModifiedDate"), nil
}

// UserDetail fetches the full user document by UID.
func (c *TDXClient) UserDetail(ctx context.Context, uid string) (map[string]any, error) {
	return c.get(ctx, "/api/people/"+uid)
}

// AssetDetail fetches the full asset document, including Attributes.
func (c *TDXClient) AssetDetail(ctx context.Context, id string) (map[string]any, error) {
	return c.get(ctx, fmt.Sprintf("/api/%d/assets/%s", c.cfg.AssetAppID, id))
}

func (c *TDXClient) get(ctx context.Context, path string) (map[string]any, error) {
	data, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode tdx response: %w", err)
	}
	return doc, nil
}

func (c *TDXClient) post(ctx context.Context, path string, body any) ([]map[string]any, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tdx request: %w", err)
	}
	data, err := c.do(ctx, http.MethodPost, path, payload)
	if err != nil {
		return nil, err
	}
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode tdx response: %w", err)
	}
	return docs, nil
}

// do issues one request with retry on 429/5xx. Non-retryable statuses are
// returned as *HTTPError so callers can classify them.
func (c *TDXClient) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte

	op := func() error {
		if c.cfg.RateLimited && c.cfg.APIDelay() > 0 {
			select {
			case <-time.After(c.cfg.APIDelay()):
			case <-ctx.Done():
				return backoff.Permanent(ctx.Err())
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build tdx request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("tdx request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read tdx response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			result = data
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &HTTPError{StatusCode: resp.StatusCode, Path: path}
		default:
			return backoff.Permanent(&HTTPError{StatusCode: resp.StatusCode, Path: path})
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}
	return result, nil
}

// HTTPError is a non-OK upstream response. Retryable reports whether the
// status is worth retrying inside the current run.
type HTTPError struct {
	StatusCode int
	Path       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("upstream returned %d for %s", e.StatusCode, e.Path)
}

// Retryable reports whether the error is a transient upstream failure.
func (e *HTTPError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// recordsByKey converts raw documents to Records keyed on idField, parsing
// the source modification timestamp when present.
func recordsByKey(docs []map[string]any, idField, modifiedField string) []Record {
	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		id := stringValue(doc[idField])
		if id == "" {
			continue
		}
		rec := Record{ExternalID: id, Data: doc}
		if modifiedField != "" {
			if ts := stringValue(doc[modifiedField]); ts != "" {
				if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
					rec.ModifiedAt = &parsed
				}
			}
		}
		records = append(records, rec)
	}
	return records
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		// JSON numbers decode as float64; TDX integer ids are safe in the
		// float64 mantissa range.
		return fmt.Sprintf("%.0f", t)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
