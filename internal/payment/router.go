package payment

import (
	"errors"
	"fmt"

	"tourmarket/internal/common/money"
)

// Method is how the buyer chooses to pay
type Method string

const (
	MethodMobileMoney  Method = "MOBILE_MONEY"
	MethodCard         Method = "CARD"
	MethodBankTransfer Method = "BANK_TRANSFER"

	// MethodUnknown is recorded when a gateway confirms a payment the
	// buyer never initiated through this service.
	MethodUnknown Method = "UNKNOWN"
)

// Gateway identifies an external payment provider
type Gateway string

const (
	GatewayMpesa       Gateway = "mpesa"
	GatewayFlutterwave Gateway = "flutterwave"
	GatewayStripe      Gateway = "stripe"
	GatewayBank        Gateway = "bank"

	// GatewayExternal pairs with MethodUnknown on payments recorded
	// straight from a settlement webhook.
	GatewayExternal Gateway = "external"
)

// ErrNoRoute means no gateway serves the currency and method combination
var ErrNoRoute = errors.New("no payment gateway for currency and method")

// Route selects the gateway for a currency and payment method. It is a
// pure function of its inputs: mobile money goes to the regional provider,
// cards always go to Stripe, bank transfers are handled in-house.
func Route(currency money.Currency, method Method) (Gateway, error) {
	switch method {
	case MethodMobileMoney:
		switch currency {
		case money.KES:
			return GatewayMpesa, nil
		case money.TZS, money.UGX:
			return GatewayFlutterwave, nil
		}
	case MethodCard:
		return GatewayStripe, nil
	case MethodBankTransfer:
		return GatewayBank, nil
	}
	return "", fmt.Errorf("%w: %s/%s", ErrNoRoute, currency, method)
}
