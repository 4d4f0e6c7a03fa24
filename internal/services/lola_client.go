package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"proxyhub-api/internal/config"
)

// NetworkError marks a transport-level failure (timeout, connection refused)
// talking to the upstream provider. The caller decides whether to retry.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ProviderError marks a non-2xx response from the upstream provider,
// carrying the provider's status and error body for operators.
type ProviderError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error during %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// PlanInfo is the provider's view of a plan: when it expires and the
// credentials issued for it.
type PlanInfo struct {
	ExpirationDate time.Time
	ProxyUser      string
	ProxyPass      string
}

// LolaClient wraps the upstream reseller API. It holds no local state and
// never retries on its own.
type LolaClient struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
}

// NewLolaClient creates an upstream reseller client from app config
func NewLolaClient() *LolaClient {
	return &LolaClient{
		httpClient: &http.Client{
			Timeout: time.Duration(config.AppConfig.UpstreamTimeoutSeconds) * time.Second,
		},
		apiKey:  config.AppConfig.LolaAPIKey,
		baseURL: config.AppConfig.LolaBaseURL,
	}
}

type planResponse struct {
	PlanID string `json:"PlanID"`
}

type planInfoResponse struct {
	ExpirationDate string `json:"expiration_date"`
	User           string `json:"user"`
	Pass           string `json:"pass"`
}

// CreateResidentialPlan buys a new residential plan with the given
// bandwidth in GB and returns the upstream plan id.
func (c *LolaClient) CreateResidentialPlan(ctx context.Context, bandwidthGB int) (string, error) {
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/getplan/residential",
		map[string]interface{}{"bandwidth": bandwidthGB}, "create residential plan")
	if err != nil {
		return "", err
	}

	var resp planResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.PlanID == "" {
		return "", fmt.Errorf("%w: create residential plan returned no PlanID", ErrMalformedUpstreamResponse)
	}
	return resp.PlanID, nil
}

// CreateISPPlan buys a new ISP plan bound to the given egress IP and region
func (c *LolaClient) CreateISPPlan(ctx context.Context, ip, region string) (string, error) {
	body, err := c.do(ctx, http.MethodPost, c.baseURL+"/getplan/isp",
		map[string]interface{}{"ip": ip, "region": region}, "create isp plan")
	if err != nil {
		return "", err
	}

	var resp planResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.PlanID == "" {
		return "", fmt.Errorf("%w: create isp plan returned no PlanID", ErrMalformedUpstreamResponse)
	}
	return resp.PlanID, nil
}

// ExtendPlan adds traffic (GB) to an existing plan
func (c *LolaClient) ExtendPlan(ctx context.Context, planID string, trafficGB int) error {
	_, err := c.do(ctx, http.MethodPost, fmt.Sprintf("%s/add/%s/%d", c.baseURL, planID, trafficGB),
		map[string]interface{}{}, "extend plan")
	return err
}

// GetPlanInfo reads the plan's expiration date and proxy credentials
func (c *LolaClient) GetPlanInfo(ctx context.Context, planID string) (*PlanInfo, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/info/"+planID, nil, "read plan info")
	if err != nil {
		return nil, err
	}

	var resp planInfoResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("%w: read plan info: %v", ErrMalformedUpstreamResponse, err)
	}

	expiration, err := parseExpiration(resp.ExpirationDate)
	if err != nil {
		return nil, fmt.Errorf("%w: bad expiration_date %q", ErrMalformedUpstreamResponse, resp.ExpirationDate)
	}

	return &PlanInfo{
		ExpirationDate: expiration,
		ProxyUser:      resp.User,
		ProxyPass:      resp.Pass,
	}, nil
}

// GetResidentialBandwidth reads the remaining bandwidth for a residential
// plan and returns the provider payload as-is.
func (c *LolaClient) GetResidentialBandwidth(ctx context.Context, planID string) (json.RawMessage, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/plan/residential/read/"+planID, nil, "read residential bandwidth")
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

// do issues one request with the provider API key attached and classifies
// failures into NetworkError vs ProviderError.
func (c *LolaClient) do(ctx context.Context, method, url string, payload interface{}, op string) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s request: %w", op, err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &ProviderError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
	}

	return body, nil
}

// parseExpiration accepts the date formats the provider has been observed
// to return.
func parseExpiration(raw string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range formats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized expiration date format: %q", raw)
}
