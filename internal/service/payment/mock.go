package payment

import (
	"context"
	"fmt"
	"sync"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

// MockGateway — конфигурируемая заглушка PaymentGateway для тестов и локального запуска.
type MockGateway struct {
	mu sync.Mutex

	// Session возвращается, если задан TransactionID; иначе генерируется по номеру вызова.
	Session domain.PaymentSession
	Err     error

	Calls    int
	Requests []domain.PaymentRequest
}

// NewMockGateway возвращает mock с успешным сценарием по умолчанию.
func NewMockGateway() *MockGateway {
	return &MockGateway{}
}

// CreatePayment возвращает заранее настроенный результат и запоминает запрос.
func (m *MockGateway) CreatePayment(ctx context.Context, req domain.PaymentRequest) (domain.PaymentSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls++
	m.Requests = append(m.Requests, req)

	if err := ctx.Err(); err != nil {
		return domain.PaymentSession{}, domain.NewProviderError("request cancelled: %v", err)
	}
	if m.Err != nil {
		return domain.PaymentSession{}, m.Err
	}
	if m.Session.TransactionID != "" {
		return m.Session, nil
	}

	ref := fmt.Sprintf("MOCK-%s-%d", req.OrderID, m.Calls)
	return domain.PaymentSession{
		TransactionID: ref,
		PaymentURL:    "https://pay.example.test/checkout/" + ref,
	}, nil
}

// CallCount возвращает число вызовов CreatePayment.
func (m *MockGateway) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}

var _ domain.PaymentGateway = (*MockGateway)(nil)
