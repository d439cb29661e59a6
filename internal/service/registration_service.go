package service

import (
	"context"
	"strings"

	appErrors "github.com/unclebandit/pushleopard-backend/internal/errors"
	"github.com/unclebandit/pushleopard-backend/internal/logger"
	"github.com/unclebandit/pushleopard-backend/internal/model"
	"github.com/unclebandit/pushleopard-backend/internal/repository"
)

// RegistrationService owns the recipient registry.
type RegistrationService struct {
	RecipientRepo repository.RecipientRepositoryInterface
	Logger        logger.Logger
}

func (s *RegistrationService) Register(ctx context.Context, userID, token, platform string) (*model.RecipientEndpoint, error) {
	userID = strings.TrimSpace(userID)
	token = strings.TrimSpace(token)

	var problems []string
	if userID == "" {
		problems = append(problems, "user_id is required")
	}
	if token == "" {
		problems = append(problems, "token is required")
	}
	if platform == "" {
		platform = model.PlatformWeb
	}
	known := false
	for _, p := range model.Platforms {
		if p == platform {
			known = true
		}
	}
	if !known {
		problems = append(problems, "platform must be one of web, android, ios")
	}
	if len(problems) > 0 {
		return nil, appErrors.NewValidation(problems...)
	}

	e := &model.RecipientEndpoint{UserID: userID, Token: token, Platform: platform}
	if err := s.RecipientRepo.Upsert(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// RemoveInvalid deletes an endpoint the gateway rejected permanently.
func (s *RegistrationService) RemoveInvalid(ctx context.Context, userID, token string) error {
	deleted, err := s.RecipientRepo.Delete(ctx, userID, token)
	if err != nil {
		return err
	}
	s.Logger.Info("Invalid endpoint processed", map[string]interface{}{
		"user_id": userID,
		"deleted": deleted,
	})
	return nil
}
