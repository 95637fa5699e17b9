package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/feistyindonesia-code/webapp/internal/domain"
)

func TestMockGateway(t *testing.T) {
	mock := NewMockGateway()
	if mock == nil {
		t.Fatal("expected non-nil mock")
	}

	session, err := mock.CreatePayment(context.Background(), domain.PaymentRequest{OrderID: "o-1", AmountMinor: 100})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if session.TransactionID != "MOCK-o-1-1" || session.PaymentURL == "" {
		t.Fatalf("unexpected session: %+v", session)
	}

	mock.Session = domain.PaymentSession{TransactionID: "T-1", PaymentURL: "https://pay/T-1"}
	session, err = mock.CreatePayment(context.Background(), domain.PaymentRequest{OrderID: "o-2"})
	if err != nil {
		t.Fatalf("unexpected create error: %v", err)
	}
	if session.TransactionID != "T-1" {
		t.Fatalf("expected configured session, got %+v", session)
	}

	mock.Err = domain.NewProviderError("down")
	if _, err := mock.CreatePayment(context.Background(), domain.PaymentRequest{OrderID: "o-3"}); !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}

	if mock.CallCount() != 3 || len(mock.Requests) != 3 {
		t.Fatalf("unexpected call counters: calls=%d requests=%d", mock.CallCount(), len(mock.Requests))
	}
}

func TestMockGatewayCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewMockGateway().CreatePayment(ctx, domain.PaymentRequest{OrderID: "o-1"})
	if !errors.Is(err, domain.ErrProviderError) {
		t.Fatalf("expected provider error, got %v", err)
	}
}
