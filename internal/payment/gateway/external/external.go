// Package external implements the gateway contract over a remote HTTP
// payment processor.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/smallbiznis/duno/internal/payment/domain"
)

type Factory struct{}

func NewFactory() *Factory {
	return &Factory{}
}

func (f *Factory) Provider() string {
	return "external"
}

func (f *Factory) NewGateway(cfg domain.GatewayConfig) (domain.Gateway, error) {
	baseURL, ok := readString(cfg.Config, "base_url")
	if !ok {
		return nil, domain.ErrInvalidConfig
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, domain.ErrInvalidConfig
	}

	apiKey, _ := readString(cfg.Config, "api_key")

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil

	return &Gateway{
		orgID:   cfg.OrgID,
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  client,
	}, nil
}

type Gateway struct {
	orgID   snowflake.ID
	baseURL string
	apiKey  string
	client  *retryablehttp.Client
}

func (g *Gateway) Name() string { return "external" }

type chargePayload struct {
	AccountID      string `json:"account_id"`
	InvoiceID      string `json:"invoice_id"`
	Currency       string `json:"currency"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type chargeResponse struct {
	TransactionRef string `json:"transaction_ref"`
	Status         string `json:"status"`
	DeclineReason  string `json:"decline_reason"`
}

func (g *Gateway) ProcessPayment(ctx context.Context, req domain.ChargeRequest) (domain.ChargeResult, error) {
	payload := chargePayload{
		AccountID:      req.AccountID.String(),
		InvoiceID:      req.InvoiceID.String(),
		Currency:       req.Currency,
		Amount:         req.Amount.String(),
		IdempotencyKey: req.Idempotency,
	}

	var resp chargeResponse
	status, err := g.post(ctx, "/v1/charges", payload, &resp)
	if err != nil {
		return domain.ChargeResult{}, err
	}

	switch {
	case status == http.StatusPaymentRequired || strings.EqualFold(resp.Status, "declined"):
		return domain.ChargeResult{Declined: true, DeclineReason: resp.DeclineReason}, nil
	case status >= 200 && status < 300:
		return domain.ChargeResult{TransactionRef: resp.TransactionRef}, nil
	default:
		return domain.ChargeResult{}, fmt.Errorf("gateway charge returned status %d", status)
	}
}

type refundPayload struct {
	TransactionRef string `json:"transaction_ref"`
	Currency       string `json:"currency"`
	Amount         string `json:"amount"`
}

type refundResponse struct {
	RefundRef string `json:"refund_ref"`
}

func (g *Gateway) Refund(ctx context.Context, req domain.RefundRequest) (domain.RefundResult, error) {
	payload := refundPayload{
		TransactionRef: req.TransactionRef,
		Currency:       req.Currency,
		Amount:         req.Amount.String(),
	}

	var resp refundResponse
	status, err := g.post(ctx, "/v1/refunds", payload, &resp)
	if err != nil {
		return domain.RefundResult{}, err
	}
	if status < 200 || status >= 300 {
		return domain.RefundResult{}, fmt.Errorf("gateway refund returned status %d", status)
	}
	return domain.RefundResult{RefundRef: resp.RefundRef}, nil
}

func (g *Gateway) GetPaymentMethods(ctx context.Context, orgID, accountID snowflake.ID) ([]domain.PaymentMethod, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/payment-methods", g.baseURL, accountID)
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	g.decorate(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gateway payment methods returned status %d", resp.StatusCode)
	}

	var methods []domain.PaymentMethod
	if err := json.NewDecoder(resp.Body).Decode(&methods); err != nil {
		return nil, err
	}
	return methods, nil
}

func (g *Gateway) post(ctx context.Context, path string, payload any, out any) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	g.decorate(req)

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return resp.StatusCode, err
	}
	if len(raw) > 0 && out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}

func (g *Gateway) decorate(req *retryablehttp.Request) {
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}
	req.Header.Set("X-Org-ID", g.orgID.String())
}

func readString(config map[string]any, key string) (string, bool) {
	if config == nil {
		return "", false
	}
	value, ok := config[key]
	if !ok {
		return "", false
	}
	str, ok := value.(string)
	return str, ok
}
