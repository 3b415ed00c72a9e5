package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"vpn-subscription-bot/internal/domain"
	"vpn-subscription-bot/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*YooKassaGateway)(nil)

// YooKassaGateway implements adapter.PaymentGateway over the YooKassa REST
// API (api.yookassa.ru/v3). Auth is HTTP basic with shop id / secret key;
// creation calls carry an Idempotence-Key so an interrupted request can be
// replayed safely.
type YooKassaGateway struct {
	shopID    string
	secretKey string
	returnURL string
	baseURL   string
	client    *http.Client
}

func NewYooKassaGateway(shopID, secretKey, returnURL string) (*YooKassaGateway, error) {
	if shopID == "" || secretKey == "" {
		return nil, errors.New("yookassa credentials empty")
	}
	return &YooKassaGateway{
		shopID:    shopID,
		secretKey: secretKey,
		returnURL: returnURL,
		baseURL:   "https://api.yookassa.ru/v3",
		client:    &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// SetBaseURL overrides the API endpoint; used by tests.
func (g *YooKassaGateway) SetBaseURL(u string) { g.baseURL = strings.TrimRight(u, "/") }

func (g *YooKassaGateway) Name() string { return "yookassa" }

// amountValue renders minor units as the decimal string the API expects.
func amountValue(minor int64) string {
	return fmt.Sprintf("%d.%02d", minor/100, minor%100)
}

func (g *YooKassaGateway) do(ctx context.Context, method, path string, body []byte, idempotenceKey string, out interface{}) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, strings.NewReader(string(body)))
	if err != nil {
		return 0, err
	}
	req.SetBasicAuth(g.shopID, g.secretKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotenceKey != "" {
		req.Header.Set("Idempotence-Key", idempotenceKey)
	}
	resp, err := g.client.Do(req)
	if err != nil {
		return 0, domain.Transient(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return resp.StatusCode, domain.Transient(fmt.Errorf("yookassa %s %s: status %d", method, path, resp.StatusCode))
	}
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, domain.Transient(err)
		}
	}
	return resp.StatusCode, nil
}

type yooPayment struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Confirmation struct {
		ConfirmationURL string `json:"confirmation_url"`
	} `json:"confirmation"`
}

func (g *YooKassaGateway) CreateCheckout(ctx context.Context, amountMinor int64, currency, description, ownerRef string) (*adapter.Checkout, error) {
	payload := map[string]any{
		"amount": map[string]string{
			"value":    amountValue(amountMinor),
			"currency": currency,
		},
		"capture": true,
		"confirmation": map[string]string{
			"type":       "redirect",
			"return_url": g.returnURL,
		},
		"description": description,
		"metadata":    map[string]string{"owner_ref": ownerRef},
	}
	b, _ := json.Marshal(payload)

	var out yooPayment
	code, err := g.do(ctx, http.MethodPost, "/payments", b, uuid.NewString(), &out)
	if err != nil {
		return nil, err
	}
	if code >= 300 || out.ID == "" {
		return nil, domain.Terminal(fmt.Errorf("yookassa create payment: status %d", code))
	}
	return &adapter.Checkout{
		ExternalID:  out.ID,
		RedirectURL: out.Confirmation.ConfirmationURL,
	}, nil
}

func (g *YooKassaGateway) GetStatus(ctx context.Context, externalID string) (adapter.CheckoutStatus, error) {
	var out yooPayment
	code, err := g.do(ctx, http.MethodGet, "/payments/"+externalID, nil, "", &out)
	if err != nil {
		return "", err
	}
	switch {
	case code == http.StatusNotFound:
		return adapter.CheckoutStatusNotFound, nil
	case code >= 300:
		return "", domain.Transient(fmt.Errorf("yookassa get payment: status %d", code))
	}
	switch out.Status {
	case "succeeded":
		return adapter.CheckoutStatusSucceeded, nil
	case "pending", "waiting_for_capture":
		return adapter.CheckoutStatusPending, nil
	case "canceled":
		return adapter.CheckoutStatusCanceled, nil
	default:
		return adapter.CheckoutStatusFailed, nil
	}
}

func (g *YooKassaGateway) RefundPayment(ctx context.Context, externalID string, amountMinor int64, currency, reason string) (*adapter.Refund, error) {
	// YooKassa requires the amount even for a full refund; callers pass the
	// original payment amount and currency.
	payload := map[string]any{
		"payment_id":  externalID,
		"description": reason,
		"amount":      map[string]string{"value": amountValue(amountMinor), "currency": currency},
	}
	b, _ := json.Marshal(payload)

	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	code, err := g.do(ctx, http.MethodPost, "/refunds", b, uuid.NewString(), &out)
	if err != nil {
		return nil, err
	}
	if code >= 300 || out.ID == "" {
		return nil, domain.Terminal(fmt.Errorf("yookassa refund rejected: status %d", code))
	}
	return &adapter.Refund{Reference: out.ID}, nil
}
