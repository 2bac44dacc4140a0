package client

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// PushRequest asks a provider to prompt the customer's phone for payment.
type PushRequest struct {
	RequestID        string // our externalRequestId, created before the call
	Phone            string
	Amount           decimal.Decimal
	AccountReference string
	Description      string
}

// PushAck is the provider's synchronous acknowledgement of a push request.
// The final outcome arrives later through a callback.
type PushAck struct {
	ProviderRef string
	RawRequest  string
	// Amount is what the customer was actually asked to pay, which can
	// differ from the request when the provider only takes whole units.
	Amount decimal.Decimal
}

type MobileMoneyClient interface {
	Provider() string
	SupportsPush(channel string) bool
	Push(ctx context.Context, req PushRequest) (*PushAck, error)
}

// Gateways indexes the configured mobile money clients by provider code.
type Gateways map[string]MobileMoneyClient

func NewGateways(clients ...MobileMoneyClient) Gateways {
	g := make(Gateways, len(clients))
	for _, c := range clients {
		if c != nil {
			g[strings.ToUpper(c.Provider())] = c
		}
	}
	return g
}

func (g Gateways) Lookup(provider string) (MobileMoneyClient, bool) {
	c, ok := g[strings.ToUpper(provider)]
	return c, ok
}

// SupportsPush reports whether (provider, channel) can be driven by a push prompt.
func (g Gateways) SupportsPush(provider, channel string) bool {
	c, ok := g.Lookup(provider)
	return ok && c.SupportsPush(channel)
}

// NormalizeMSISDN turns local formats (07.., 7.., +254..) into 2547.. form.
func NormalizeMSISDN(phone, countryCode string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case strings.HasPrefix(digits, countryCode):
		return digits
	case strings.HasPrefix(digits, "0"):
		return countryCode + digits[1:]
	case len(digits) == 9:
		return countryCode + digits
	}
	return digits
}
