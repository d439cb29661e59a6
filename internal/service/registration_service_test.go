package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
)

func TestRegistrationService_Register(t *testing.T) {
	repo := &fakeRecipientRepo{}
	svc := &RegistrationService{RecipientRepo: repo, Logger: logger.NewTestLogger(t)}
	ctx := context.Background()

	e, err := svc.Register(ctx, " u-1 ", "tok", "")
	require.NoError(t, err)
	assert.Equal(t, "u-1", e.UserID)
	assert.Equal(t, model.PlatformWeb, e.Platform)

	again, err := svc.Register(ctx, "u-1", "tok", model.PlatformAndroid)
	require.NoError(t, err)
	assert.Equal(t, e.ID, again.ID, "same (user, token) is an upsert")
	assert.Len(t, repo.endpoints, 1)
	assert.Equal(t, model.PlatformAndroid, repo.endpoints[0].Platform)

	_, err = svc.Register(ctx, "", "tok", "web")
	assert.True(t, appErrors.IsValidation(err))
	_, err = svc.Register(ctx, "u-1", "tok", "pager")
	assert.True(t, appErrors.IsValidation(err))
}

func TestRegistrationService_RemoveInvalid(t *testing.T) {
	repo := &fakeRecipientRepo{endpoints: endpoints("u1", "u2")}
	svc := &RegistrationService{RecipientRepo: repo, Logger: logger.NewTestLogger(t)}

	require.NoError(t, svc.RemoveInvalid(context.Background(), "u1", "tok-u1"))
	require.NoError(t, svc.RemoveInvalid(context.Background(), "u1", "tok-u1"))
	assert.Len(t, repo.endpoints, 1)
	assert.Equal(t, "u2", repo.endpoints[0].UserID)
}
