// File: internal/checkout/classify_test.go
package checkout

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestClassify(t *testing.T) {
	ctx := context.Background()
	log := zap.NewNop()

	retailerURL := "https://www.flipkart.com/checkout"
	bankURL := "https://acs.examplebank.com/3ds/challenge"

	tests := []struct {
		name      string
		url       string
		selectors []string
		texts     []string
		want      PageKind
	}{
		{
			name: "blank page is unknown",
			url:  retailerURL,
			want: KindUnknown,
		},
		{
			name:      "login page wins over its own continue button",
			url:       retailerURL,
			selectors: []string{`input[type="text"][autocomplete="off"]`},
			texts:     []string{"CONTINUE"},
			want:      KindLogin,
		},
		{
			name:  "order summary by continue button",
			url:   retailerURL,
			texts: []string{"CONTINUE", "₹1,299"},
			want:  KindSummary,
		},
		{
			name:  "payment outranks summary",
			url:   retailerURL,
			texts: []string{"Credit / Debit / ATM Card", "CONTINUE"},
			want:  KindPayment,
		},
		{
			name:      "address by saved-address radios",
			url:       retailerURL,
			selectors: []string{`label input[name="address"]`},
			texts:     []string{"Deliver Here"},
			want:      KindAddress,
		},
		{
			name:      "specific bank otp field fires on any origin",
			url:       retailerURL,
			selectors: []string{`input#otpValue[type="password"]`},
			want:      KindBankOTP,
		},
		{
			name:      "generic otp inputs ignored on the retailer",
			url:       retailerURL,
			selectors: []string{`input[type="password"], input[type="tel"], input[name*="otp" i], input[id*="otp" i]`},
			want:      KindUnknown,
		},
		{
			name:      "generic otp inputs trusted off the retailer",
			url:       bankURL,
			selectors: []string{`input[type="password"], input[type="tel"], input[name*="otp" i], input[id*="otp" i]`},
			want:      KindBankOTP,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			drv := newFakeDriver()
			drv.setPage(tc.name, tc.url, tc.selectors, tc.texts...)
			assert.Equal(t, tc.want, Classify(ctx, drv, log))
		})
	}
}
