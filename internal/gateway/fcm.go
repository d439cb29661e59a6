// internal/gateway/fcm.go
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// FCMGateway talks to the FCM legacy HTTP endpoint with a server key.
type FCMGateway struct {
	endpoint   string
	serverKey  string
	httpClient *http.Client
	logger     logger.Logger
}

func NewFCMGateway(endpoint, serverKey string, timeout time.Duration, log logger.Logger) *FCMGateway {
	return &FCMGateway{
		endpoint:   endpoint,
		serverKey:  serverKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     log,
	}
}

type fcmNotification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Image string `json:"image,omitempty"`
}

type fcmWebpush struct {
	FCMOptions struct {
		Link string `json:"link,omitempty"`
	} `json:"fcm_options"`
}

type fcmRequest struct {
	To           string            `json:"to"`
	Notification fcmNotification   `json:"notification"`
	Data         map[string]string `json:"data"`
	Webpush      *fcmWebpush       `json:"webpush,omitempty"`
}

type fcmResponse struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Results []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

func (g *FCMGateway) Name() string { return "fcm" }

func (g *FCMGateway) Send(ctx context.Context, endpoint model.RecipientEndpoint, msg Message) Outcome {
	req := fcmRequest{
		To:           endpoint.Token,
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body, Image: msg.ImageURL},
		Data:         msg.Data,
	}
	if req.Data == nil {
		req.Data = map[string]string{}
	}
	if msg.Link != "" {
		req.Webpush = &fcmWebpush{}
		req.Webpush.FCMOptions.Link = msg.Link
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Failed(ReasonUnknown, err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return Failed(ReasonUnknown, err.Error())
	}
	httpReq.Header.Set("Authorization", "key="+g.serverKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return Failed(ReasonProviderUnavailable, "request timed out")
		}
		return Failed(ReasonProviderUnavailable, err.Error())
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return Failed(ReasonRateLimited, fmt.Sprintf("HTTP %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return Failed(ReasonProviderUnavailable, fmt.Sprintf("HTTP %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return Failed(ReasonUnknown, fmt.Sprintf("HTTP %d: server key rejected", resp.StatusCode))
	case resp.StatusCode >= 300:
		return Failed(ReasonUnknown, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	var parsed fcmResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Failed(ReasonUnknown, "malformed FCM response")
	}
	if parsed.Success == 1 {
		return Delivered()
	}

	code := ""
	if len(parsed.Results) > 0 {
		code = parsed.Results[0].Error
	}
	g.logger.Debug("FCM rejected message", map[string]interface{}{
		"user_id": endpoint.UserID,
		"code":    code,
	})
	return Failed(classifyFCMError(code), code)
}

func classifyFCMError(code string) Reason {
	switch code {
	case "NotRegistered", "InvalidRegistration", "MismatchSenderId", "MissingRegistration":
		return ReasonInvalidToken
	case "Unavailable", "InternalServerError":
		return ReasonProviderUnavailable
	case "DeviceMessageRateExceeded", "MessageRateExceeded", "TopicsMessageRateExceeded":
		return ReasonRateLimited
	default:
		return ReasonUnknown
	}
}
