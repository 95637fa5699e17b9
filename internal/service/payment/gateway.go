// Package payment содержит адаптеры платёжного провайдера.
package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

const (
	// DefaultTimeout ограничивает один вызов провайдера.
	DefaultTimeout = 10 * time.Second
	// DefaultMethod — канал оплаты по умолчанию.
	DefaultMethod = "QRIS"

	createPath       = "/transaction/create"
	maxResponseBytes = 1 << 20
)

// GatewayConfig задаёт параметры подключения к провайдеру.
type GatewayConfig struct {
	BaseURL      string
	APIKey       string
	PrivateKey   string
	MerchantCode string
	Method       string
	Timeout      time.Duration
}

// HTTPGateway открывает платежи через HTTP API провайдера. Повторов нет:
// любой сбой возвращается вызывающему как ErrProviderError.
type HTTPGateway struct {
	cfg    GatewayConfig
	client *http.Client
	logger *log.Entry
}

type createRequest struct {
	Method        string `json:"method"`
	MerchantRef   string `json:"merchant_ref"`
	Amount        int64  `json:"amount"`
	CustomerName  string `json:"customer_name"`
	CustomerPhone string `json:"customer_phone"`
	CallbackURL   string `json:"callback_url,omitempty"`
	ReturnURL     string `json:"return_url,omitempty"`
	Signature     string `json:"signature"`
}

type createResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Reference   string `json:"reference"`
		CheckoutURL string `json:"checkout_url"`
	} `json:"data"`
}

// NewHTTPGateway создаёт клиента провайдера. client может быть nil.
func NewHTTPGateway(cfg GatewayConfig, client *http.Client, logger *log.Entry) (*HTTPGateway, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		return nil, errors.New("payment gateway base url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Method == "" {
		cfg.Method = DefaultMethod
	}
	if client == nil {
		client = &http.Client{}
	}
	if logger == nil {
		logger = log.WithField("component", "payment-gateway")
	}

	return &HTTPGateway{cfg: cfg, client: client, logger: logger}, nil
}

// CreatePayment открывает платёж у провайдера.
func (g *HTTPGateway) CreatePayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentSession, error) {
	if errs := req.Validate(); len(errs) > 0 {
		return domain.PaymentSession{}, errors.Join(errs...)
	}

	body, err := json.Marshal(createRequest{
		Method:        g.cfg.Method,
		MerchantRef:   req.OrderID,
		Amount:        req.AmountMinor,
		CustomerName:  req.PayerName,
		CustomerPhone: req.PayerPhone,
		CallbackURL:   req.CallbackURL,
		ReturnURL:     req.ReturnURL,
		Signature:     g.sign(req.OrderID, req.AmountMinor),
	})
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("marshal payment request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+createPath, bytes.NewReader(body))
	if err != nil {
		return domain.PaymentSession{}, fmt.Errorf("build payment request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if g.cfg.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)
	}

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return domain.PaymentSession{}, domain.NewProviderError("call provider: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return domain.PaymentSession{}, domain.NewProviderError("read provider response: %v", err)
	}

	var decoded createResponse
	decodeErr := json.Unmarshal(raw, &decoded)

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg := decoded.Message
		if decodeErr != nil || msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		g.logger.WithFields(log.Fields{
			"order_id":    req.OrderID,
			"http_status": resp.StatusCode,
		}).Warn("payment provider rejected request")
		return domain.PaymentSession{}, domain.NewProviderError("http %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return domain.PaymentSession{}, domain.NewProviderError("decode provider response: %v", decodeErr)
	}
	if !decoded.Success {
		return domain.PaymentSession{}, domain.NewProviderError("provider declined: %s", decoded.Message)
	}
	if decoded.Data.Reference == "" {
		return domain.PaymentSession{}, domain.NewProviderError("provider response has no reference")
	}

	return domain.PaymentSession{
		TransactionID: decoded.Data.Reference,
		PaymentURL:    decoded.Data.CheckoutURL,
	}, nil
}

func (g *HTTPGateway) sign(merchantRef string, amount int64) string {
	return hmacHex(g.cfg.PrivateKey, g.cfg.MerchantCode+merchantRef+strconv.FormatInt(amount, 10))
}

// VerifyCallbackSignature сверяет подпись тела callback-запроса провайдера.
func (g *HTTPGateway) VerifyCallbackSignature(body []byte, signature string) bool {
	return VerifySignature(g.cfg.PrivateKey, body, signature)
}

// VerifySignature проверяет HMAC-SHA256 (hex) тела запроса.
func VerifySignature(privateKey string, body []byte, signature string) bool {
	if privateKey == "" || signature == "" {
		return false
	}
	expected := hmacHex(privateKey, string(body))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}

// Sign возвращает подпись тела в формате провайдера.
func Sign(privateKey string, body []byte) string {
	return hmacHex(privateKey, string(body))
}

func hmacHex(key, payload string) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

var _ domain.PaymentGateway = (*HTTPGateway)(nil)
