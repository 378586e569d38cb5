package payment

import (
	"errors"
	"testing"

	"tourmarket/internal/common/money"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		currency money.Currency
		method   Method
		want     Gateway
	}{
		{money.KES, MethodMobileMoney, GatewayMpesa},
		{money.TZS, MethodMobileMoney, GatewayFlutterwave},
		{money.UGX, MethodMobileMoney, GatewayFlutterwave},
		{money.USD, MethodCard, GatewayStripe},
		{money.KES, MethodCard, GatewayStripe},
		{money.EUR, MethodCard, GatewayStripe},
		{money.USD, MethodBankTransfer, GatewayBank},
		{money.UGX, MethodBankTransfer, GatewayBank},
	}

	for _, tt := range tests {
		got, err := Route(tt.currency, tt.method)
		if err != nil {
			t.Errorf("Route(%s, %s): %v", tt.currency, tt.method, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Route(%s, %s) = %s, want %s", tt.currency, tt.method, got, tt.want)
		}
	}
}

func TestRouteNoGateway(t *testing.T) {
	// Mobile money has no provider outside East Africa.
	for _, currency := range []money.Currency{money.USD, money.EUR, money.GBP} {
		_, err := Route(currency, MethodMobileMoney)
		if !errors.Is(err, ErrNoRoute) {
			t.Errorf("Route(%s, MOBILE_MONEY) error = %v, want ErrNoRoute", currency, err)
		}
	}

	if _, err := Route(money.KES, Method("CRYPTO")); !errors.Is(err, ErrNoRoute) {
		t.Errorf("unknown method error = %v, want ErrNoRoute", err)
	}
}
