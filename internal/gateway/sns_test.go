package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

var testEndpoint = model.RecipientEndpoint{
	UserID:   "u-1",
	Token:    "arn:aws:sns:us-east-1:123456789012:endpoint/GCM/app/abc",
	Platform: model.PlatformAndroid,
}

func TestSNSGateway_Send_Success(t *testing.T) {
	var captured *sns.PublishInput
	mock := &MockSNSService{
		PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
			captured = params
			return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
		},
	}
	g := NewSNSGateway(mock, logger.NewNoOpLogger())

	out := g.Send(context.Background(), testEndpoint, Message{
		Title:    "Sale",
		Body:     "Everything 50% off",
		ImageURL: "https://cdn.example/banner.png",
		Link:     "https://shop.example",
		Data:     map[string]string{"notification_id": "c-1"},
	})

	require.True(t, out.OK)
	require.NotNil(t, captured)
	assert.Equal(t, testEndpoint.Token, aws.ToString(captured.TargetArn))
	assert.Equal(t, "json", aws.ToString(captured.MessageStructure))

	var structure map[string]string
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(captured.Message)), &structure))
	assert.Equal(t, "Everything 50% off", structure["default"])

	var gcm fcmPayload
	require.NoError(t, json.Unmarshal([]byte(structure["GCM"]), &gcm))
	assert.Equal(t, "Sale", gcm.Notification.Title)
	assert.Equal(t, "c-1", gcm.Data["notification_id"])
	assert.Equal(t, "https://shop.example", gcm.Data["link"])

	var apns apnsPayload
	require.NoError(t, json.Unmarshal([]byte(structure["APNS"]), &apns))
	assert.Equal(t, "Sale", apns.Aps.Alert.Title)
	assert.Equal(t, 1, apns.Aps.MutableContent)
}

func TestSNSGateway_Send_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{"endpoint disabled", &types.EndpointDisabledException{Message: aws.String("Endpoint is disabled")}, ReasonInvalidToken},
		{"invalid target arn", &types.InvalidParameterException{Message: aws.String("Invalid parameter: TargetArn Reason: No endpoint found for the target arn specified")}, ReasonInvalidToken},
		{"message too long", &types.InvalidParameterException{Message: aws.String("Invalid parameter: Message too long")}, ReasonUnknown},
		{"malformed structure", &types.InvalidParameterException{Message: aws.String("Invalid parameter: Message Structure - JSON message body failed to parse")}, ReasonUnknown},
		{"not found", &types.NotFoundException{Message: aws.String("no endpoint")}, ReasonInvalidToken},
		{"throttled", &types.ThrottledException{Message: aws.String("slow down")}, ReasonRateLimited},
		{"kms throttled", &types.KMSThrottlingException{Message: aws.String("kms")}, ReasonRateLimited},
		{"internal", &types.InternalErrorException{Message: aws.String("oops")}, ReasonProviderUnavailable},
		{"app disabled", &types.PlatformApplicationDisabledException{Message: aws.String("off")}, ReasonProviderUnavailable},
		{"deadline", fmt.Errorf("publish: %w", context.DeadlineExceeded), ReasonProviderUnavailable},
		{"other", errors.New("something odd"), ReasonUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &MockSNSService{
				PublishFunc: func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
					return nil, fmt.Errorf("operation error SNS: Publish, %w", tt.err)
				},
			}
			out := NewSNSGateway(mock, logger.NewNoOpLogger()).Send(context.Background(), testEndpoint, Message{Title: "t", Body: "b"})
			assert.False(t, out.OK)
			assert.Equal(t, tt.want, out.Reason)
			assert.NotEmpty(t, out.Detail)
		})
	}
}
