package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"proxyhub-api/internal/config"
)

// Invoice is the parsed result of a checkout request
type Invoice struct {
	OrderID string
	Amount  float64
	Status  string
	URL     string
}

// CryptomusClient builds signed checkout requests to the payment gateway
// and parses its responses.
type CryptomusClient struct {
	httpClient  *http.Client
	apiKey      string
	merchantID  string
	baseURL     string
	callbackURL string
	returnURL   string
}

// NewCryptomusClient creates a gateway client from app config
func NewCryptomusClient() *CryptomusClient {
	return &CryptomusClient{
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		apiKey:      config.AppConfig.CryptomusAPIKey,
		merchantID:  config.AppConfig.CryptomusMerchantID,
		baseURL:     config.AppConfig.CryptomusBaseURL,
		callbackURL: config.AppConfig.CallbackRoute,
		returnURL:   config.AppConfig.ReturnRoute,
	}
}

type invoiceRequest struct {
	Amount      float64 `json:"amount"`
	Currency    string  `json:"currency"`
	OrderID     string  `json:"order_id"`
	URLCallback string  `json:"url_callback"`
	URLReturn   string  `json:"url_return"`
}

type invoiceEnvelope struct {
	State  int `json:"state"`
	Result struct {
		UUID    string      `json:"uuid"`
		OrderID string      `json:"order_id"`
		Amount  json.Number `json:"amount"`
		Status  string      `json:"status"`
		URL     string      `json:"url"`
	} `json:"result"`
}

// CreateInvoice asks the gateway to open a checkout for the given amount
// and returns the parsed invoice plus the raw gateway body for the caller.
func (c *CryptomusClient) CreateInvoice(ctx context.Context, amount float64, currency string) (*Invoice, []byte, error) {
	payload := invoiceRequest{
		Amount:      amount,
		Currency:    currency,
		OrderID:     newOrderID(),
		URLCallback: c.callbackURL,
		URLReturn:   c.returnURL,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal invoice request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/payment", bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create invoice request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("merchant", c.merchantID)
	req.Header.Set("sign", SignGatewayPayload(jsonData, c.apiKey))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading response: %v", ErrGateway, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, fmt.Errorf("%w: status %d: %s", ErrGateway, resp.StatusCode, string(body))
	}

	var envelope invoiceEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, nil, fmt.Errorf("%w: invalid response body: %v", ErrGateway, err)
	}
	if envelope.Result.OrderID == "" {
		return nil, nil, fmt.Errorf("%w: response carries no order_id", ErrGateway)
	}

	invoiceAmount, _ := envelope.Result.Amount.Float64()

	return &Invoice{
		OrderID: envelope.Result.OrderID,
		Amount:  invoiceAmount,
		Status:  envelope.Result.Status,
		URL:     envelope.Result.URL,
	}, body, nil
}

// SignGatewayPayload computes the gateway signature over a JSON body:
// md5(base64(body) + apiKey), hex-encoded. The digest is fixed by the
// gateway's verifier and must stay bit-compatible with it.
func SignGatewayPayload(body []byte, apiKey string) string {
	encoded := base64.StdEncoding.EncodeToString(body)
	digest := md5.Sum([]byte(encoded + apiKey))
	return hex.EncodeToString(digest[:])
}

// newOrderID returns a fresh 24-hex-char unique order id
func newOrderID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand never fails on supported platforms
		panic(err)
	}
	return hex.EncodeToString(b)
}
