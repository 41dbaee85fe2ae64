package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/config"
)

// KeyClient fetches inventory agent records. The agent emits one record per
// network interface keyed by (Name, OEM SN); the Silver transformer
// consolidates NICs into one computer row.
type KeyClient struct {
	cfg    *config.KeyClientConfig
	client *http.Client
}

// NewKeyClient creates an inventory agent client.
func NewKeyClient(cfg *config.KeyClientConfig) *KeyClient {
	timeout := 120 * time.Second
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	return &KeyClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// ListComputers fetches all per-NIC records. The agent has no server-side
// modification filter; incremental runs filter client-side on Last Session.
func (k *KeyClient) ListComputers(ctx context.Context, _ *time.Time) ([]Record, error) {
	var result []byte

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, k.cfg.BaseURL+"/api/computers", nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build key request: %w", err))
		}
		req.Header.Set("X-Service-Key", k.cfg.ServiceKey)

		resp, err := k.client.Do(req)
		if err != nil {
			return fmt.Errorf("key request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read key response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			httpErr := &HTTPError{StatusCode: resp.StatusCode, Path: "/api/computers"}
			if httpErr.Retryable() {
				return httpErr
			}
			return backoff.Permanent(httpErr)
		}
		result = data
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		return nil, err
	}

	var docs []map[string]any
	if err := json.Unmarshal(result, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode key response: %w", err)
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		name := stringValue(doc["Name"])
		serial := stringValue(doc["OEM SN"])
		mac := stringValue(doc["MAC Address"])
		if name == "" && serial == "" {
			continue
		}
		// Per-NIC key: the same machine appears once per interface.
		records = append(records, Record{
			ExternalID: name + "|" + serial + "|" + mac,
			Data:       doc,
		})
	}
	return records, nil
}
