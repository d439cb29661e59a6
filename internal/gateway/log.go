// internal/gateway/log.go
package gateway

import (
	"context"

	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// LogGateway is a dry-run provider: it logs every send and reports success.
type LogGateway struct {
	logger logger.Logger
}

func NewLogGateway(log logger.Logger) *LogGateway {
	return &LogGateway{logger: log}
}

func (g *LogGateway) Name() string { return "log" }

func (g *LogGateway) Send(ctx context.Context, endpoint model.RecipientEndpoint, msg Message) Outcome {
	if err := ctx.Err(); err != nil {
		return Failed(ReasonProviderUnavailable, err.Error())
	}
	g.logger.Info("dry-run push", map[string]interface{}{
		"user_id":  endpoint.UserID,
		"platform": endpoint.Platform,
		"title":    msg.Title,
	})
	return Delivered()
}
