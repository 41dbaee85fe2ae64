package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/3Bodhi/LSATS-Data-Hub-sub001/internal/config"
)

// UMAPIClient talks to the institutional identity API: department and
// employment lookups behind OAuth client-credentials. The API represents
// null as empty or space-only strings; callers clean values downstream.
type UMAPIClient struct {
	cfg    *config.UMAPIConfig
	client *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewUMAPIClient creates an identity API client.
func NewUMAPIClient(cfg *config.UMAPIConfig) *UMAPIClient {
	timeout := 60 * time.Second
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	return &UMAPIClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// ListDepartments fetches all departments.
func (c *UMAPIClient) ListDepartments(ctx context.Context, _ *time.Time) ([]Record, error) {
	data, err := c.get(ctx, "/Curriculum/Departments/v2/DeptData")
	if err != nil {
		return nil, err
	}
	docs, err := decodeList(data, "Department")
	if err != nil {
		return nil, err
	}
	return recordsByKey(docs, "DeptId", ""), nil
}

// EmploymentByUniqname fetches the employment records for one uniqname. One
// person may carry several records (empl_rcd); each becomes its own Bronze
// row keyed uniqname-emplrcd.
func (c *UMAPIClient) EmploymentByUniqname(ctx context.Context, uniqname string) ([]Record, error) {
	data, err := c.get(ctx, "/Employee/EmpData/v1/"+url.PathEscape(uniqname))
	if err != nil {
		return nil, err
	}
	docs, err := decodeList(data, "EmployeeData")
	if err != nil {
		return nil, err
	}

	records := make([]Record, 0, len(docs))
	for _, doc := range docs {
		emplRcd := stringValue(doc["EmplRcd"])
		if emplRcd == "" {
			emplRcd = "0"
		}
		doc["Uniqname"] = uniqname
		records = append(records, Record{
			ExternalID: uniqname + "-" + emplRcd,
			Data:       doc,
		})
	}
	return records, nil
}

func (c *UMAPIClient) get(ctx context.Context, path string) ([]byte, error) {
	var result []byte

	op := func() error {
		token, err := c.accessToken(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to build umapi request: %w", err))
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("umapi request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read umapi response: %w", err)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			result = data
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &HTTPError{StatusCode: resp.StatusCode, Path: path}
		case resp.StatusCode == http.StatusUnauthorized:
			// Token may have expired mid-window; clear and retry once.
			c.mu.Lock()
			c.token = ""
			c.mu.Unlock()
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

func (c *UMAPIClient) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"client_credentials"},
		"scope":      {"umscheduleofclasses employeedata"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &HTTPError{StatusCode: resp.StatusCode, Path: "/oauth2/token"}
	}

	var tokenResp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("failed to decode token response: %w", err)
	}

	c.token = tokenResp.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn-60) * time.Second)
	return c.token, nil
}

// decodeList handles both bare arrays and the API's {"Wrapper": [...]}
// envelope.
func decodeList(data []byte, wrapper string) ([]map[string]any, error) {
	var docs []map[string]any
	if err := json.Unmarshal(data, &docs); err == nil {
		return docs, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode umapi response: %w", err)
	}
	if raw, ok := envelope[wrapper]; ok {
		if err := json.Unmarshal(raw, &docs); err == nil {
			return docs, nil
		}
		// Single-object envelopes appear when exactly one record matches.
		var single map[string]any
		if err := json.Unmarshal(raw, &single); err != nil {
			return nil, fmt.Errorf("failed to decode umapi %s payload: %w", wrapper, err)
		}
		return []map[string]any{single}, nil
	}
	return nil, fmt.Errorf("umapi response missing %q envelope", wrapper)
}
