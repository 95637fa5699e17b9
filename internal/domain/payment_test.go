package domain

import "testing"

func TestPaymentRequest_Validate(t *testing.T) {
	tests := []struct {
		name     string
		req      PaymentRequest
		errCount int
	}{
		{
			name: "valid request",
			req: PaymentRequest{
				OrderID:     "order-123",
				AmountMinor: 65000,
				PayerPhone:  "+628111",
			},
			errCount: 0,
		},
		{
			name:     "missing order ID",
			req:      PaymentRequest{AmountMinor: 1000, PayerPhone: "+628111"},
			errCount: 1,
		},
		{
			name:     "zero amount",
			req:      PaymentRequest{OrderID: "order-123", PayerPhone: "+628111"},
			errCount: 1,
		},
		{
			name:     "everything missing",
			req:      PaymentRequest{AmountMinor: -1},
			errCount: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := tt.req.Validate()
			if len(errs) != tt.errCount {
				t.Errorf("Validate() returned %d errors, want %d: %v", len(errs), tt.errCount, errs)
			}
		})
	}
}
