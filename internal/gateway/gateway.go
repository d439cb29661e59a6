// internal/gateway/gateway.go
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/unclebandit/pushleopard-backend/internal/config"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// Reason is the provider-independent classification of a failed send.
type Reason string

const (
	ReasonInvalidToken        Reason = "invalid_token"
	ReasonRateLimited         Reason = "rate_limited"
	ReasonProviderUnavailable Reason = "provider_unavailable"
	ReasonUnknown             Reason = "unknown"
)

// Transient reports whether a later attempt may succeed.
func (r Reason) Transient() bool {
	return r == ReasonRateLimited || r == ReasonProviderUnavailable
}

// Outcome is the result of a single delivery attempt.
type Outcome struct {
	OK     bool
	Reason Reason
	Detail string
}

func Delivered() Outcome {
	return Outcome{OK: true}
}

func Failed(reason Reason, detail string) Outcome {
	return Outcome{Reason: reason, Detail: detail}
}

// ErrorMessage is the text stored on a failed delivery log entry.
func (o Outcome) ErrorMessage() string {
	if o.OK {
		return ""
	}
	if o.Detail == "" {
		return string(o.Reason)
	}
	return fmt.Sprintf("%s: %s", o.Reason, o.Detail)
}

// Message is the notification payload shared by every recipient of a campaign.
type Message struct {
	Title    string
	Body     string
	ImageURL string
	Link     string
	Data     map[string]string
}

// Gateway performs one best-effort send. Implementations never retry and keep no state
// between calls; every failure is reported through the Outcome.
type Gateway interface {
	Send(ctx context.Context, endpoint model.RecipientEndpoint, msg Message) Outcome
	Name() string
}

// New builds the provider selected by cfg.Provider.
func New(ctx context.Context, cfg config.GatewayConfig, log logger.Logger) (Gateway, error) {
	timeout := config.GetDuration(cfg.Timeout)
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	switch cfg.Provider {
	case "sns":
		return NewSNSGatewayFromRegion(ctx, cfg.AWS.Region, log)
	case "fcm":
		return NewFCMGateway(cfg.FCM.Endpoint, cfg.FCM.ServerKey, timeout, log), nil
	case "log", "":
		return NewLogGateway(log), nil
	default:
		return nil, fmt.Errorf("unknown gateway provider %q", cfg.Provider)
	}
}
