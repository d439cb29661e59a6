// internal/gateway/sns.go
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

// SNSService is the slice of the SNS client used for mobile push.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSGateway publishes directly to platform endpoint ARNs. The recipient token is the ARN.
type SNSGateway struct {
	client SNSService
	logger logger.Logger
}

func NewSNSGateway(client SNSService, log logger.Logger) *SNSGateway {
	return &SNSGateway{client: client, logger: log}
}

func NewSNSGatewayFromRegion(ctx context.Context, region string, log logger.Logger) (*SNSGateway, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewSNSGateway(sns.NewFromConfig(awsCfg), log), nil
}

func (g *SNSGateway) Name() string { return "sns" }

func (g *SNSGateway) Send(ctx context.Context, endpoint model.RecipientEndpoint, msg Message) Outcome {
	body, err := snsMessageStructure(msg)
	if err != nil {
		return Failed(ReasonUnknown, err.Error())
	}

	out, err := g.client.Publish(ctx, &sns.PublishInput{
		TargetArn:        aws.String(endpoint.Token),
		Message:          aws.String(body),
		MessageStructure: aws.String("json"),
	})
	if err != nil {
		reason := classifySNSError(ctx, err)
		g.logger.Debug("SNS publish failed", map[string]interface{}{
			"user_id": endpoint.UserID,
			"reason":  string(reason),
			"error":   err,
		})
		return Failed(reason, err.Error())
	}

	g.logger.Debug("SNS publish accepted", map[string]interface{}{
		"user_id":    endpoint.UserID,
		"message_id": aws.ToString(out.MessageId),
	})
	return Delivered()
}

func classifySNSError(ctx context.Context, err error) Reason {
	var (
		disabled     *types.EndpointDisabledException
		invalidParam *types.InvalidParameterException
		notFound     *types.NotFoundException
		throttled    *types.ThrottledException
		kmsThrottled *types.KMSThrottlingException
		internal     *types.InternalErrorException
		appDisabled  *types.PlatformApplicationDisabledException
	)
	switch {
	case errors.As(err, &disabled), errors.As(err, &notFound):
		return ReasonInvalidToken
	case errors.As(err, &invalidParam):
		// InvalidParameter also covers oversized or malformed messages; only a bad
		// TargetArn says anything about the endpoint.
		if strings.Contains(aws.ToString(invalidParam.Message), "TargetArn") {
			return ReasonInvalidToken
		}
		return ReasonUnknown
	case errors.As(err, &throttled), errors.As(err, &kmsThrottled):
		return ReasonRateLimited
	case errors.As(err, &internal), errors.As(err, &appDisabled):
		return ReasonProviderUnavailable
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		return ReasonProviderUnavailable
	default:
		return ReasonUnknown
	}
}

type fcmPayload struct {
	Notification fcmNotification  `json:"notification"`
	Data         map[string]string `json:"data,omitempty"`
}

type apnsPayload struct {
	Aps  apnsAps           `json:"aps"`
	Data map[string]string `json:"data,omitempty"`
}

type apnsAps struct {
	Alert          apnsAlert `json:"alert"`
	MutableContent int       `json:"mutable-content,omitempty"`
}

type apnsAlert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// snsMessageStructure renders the per-platform bodies SNS expects with MessageStructure=json.
func snsMessageStructure(msg Message) (string, error) {
	data := messageData(msg)

	gcm, err := json.Marshal(fcmPayload{
		Notification: fcmNotification{Title: msg.Title, Body: msg.Body, Image: msg.ImageURL},
		Data:         data,
	})
	if err != nil {
		return "", err
	}

	aps := apnsAps{Alert: apnsAlert{Title: msg.Title, Body: msg.Body}}
	if msg.ImageURL != "" {
		aps.MutableContent = 1
	}
	apns, err := json.Marshal(apnsPayload{Aps: aps, Data: data})
	if err != nil {
		return "", err
	}

	structure, err := json.Marshal(map[string]string{
		"default":      msg.Body,
		"GCM":          string(gcm),
		"APNS":         string(apns),
		"APNS_SANDBOX": string(apns),
	})
	if err != nil {
		return "", err
	}
	return string(structure), nil
}

// messageData merges the link into the data map so native clients can open it.
func messageData(msg Message) map[string]string {
	data := make(map[string]string, len(msg.Data)+2)
	for k, v := range msg.Data {
		data[k] = v
	}
	if msg.Link != "" {
		data["link"] = msg.Link
	}
	if msg.ImageURL != "" {
		data["image"] = msg.ImageURL
	}
	return data
}
