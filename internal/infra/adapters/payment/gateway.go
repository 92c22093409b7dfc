package payment

import (
	"fmt"

	"github.com/rs/zerolog"

	"lms-billing/internal/config"
	"lms-billing/internal/domain/ports/adapter"
)

// New builds the configured gateway wrapped with timeouts and metrics.
func New(cfg config.PaymentConfig, logger *zerolog.Logger) (adapter.PaymentGateway, error) {
	var inner adapter.PaymentGateway
	switch cfg.Provider {
	case "", "sandbox":
		inner = NewSandboxGateway()
	case "razorpay":
		g, err := NewRazorpayGateway(cfg.KeyID, cfg.KeySecret, cfg.BaseURL, cfg.GatewayTimeout)
		if err != nil {
			return nil, err
		}
		inner = g
	default:
		return nil, fmt.Errorf("unknown payment provider %q", cfg.Provider)
	}
	return NewInstrumented(inner, cfg.GatewayTimeout, logger), nil
}
