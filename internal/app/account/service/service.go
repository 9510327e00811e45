package service

import (
	"context"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Service is the account lifecycle core. Business outcomes are reported in
// the returned result; a non-nil error means invalid input or a storage
// failure.
type Service interface {
	Register(ctx context.Context, email, password string) (model.Result, error)
	Login(ctx context.Context, email, password string) (model.SessionResult, error)
	GetCurrentUser(ctx context.Context, token string) (model.SessionResult, error)
	StartResetPassword(ctx context.Context, email string) (model.CodeResult, error)
	CompleteResetPassword(ctx context.Context, email, code, newPassword string) (model.Result, error)
	StartChangeEmail(ctx context.Context, email string) (model.CodeResult, error)
	CompleteChangeEmail(ctx context.Context, token, newEmail, code string) (model.Result, error)
	ValidateEmail(ctx context.Context, email, code string) (model.Result, error)
}

// Settings is the immutable configuration the core runs with.
type Settings struct {
	Secret             []byte
	SessionTTL         time.Duration
	ResetPasswordTTL   time.Duration
	EmailValidationTTL time.Duration
}

func (s Settings) validate() error {
	switch {
	case len(s.Secret) == 0:
		return customErrors.NewInvalidArgument("signing secret is required")
	case s.SessionTTL <= 0:
		return customErrors.NewInvalidArgument("session ttl must be positive")
	case s.ResetPasswordTTL <= 0:
		return customErrors.NewInvalidArgument("reset password window must be positive")
	case s.EmailValidationTTL <= 0:
		return customErrors.NewInvalidArgument("email validation window must be positive")
	}
	return nil
}

func New(
	r repo.AccountRepo,
	s Settings,
	v *validator.Validate,
	log *zap.Logger,
) (Service, error) {
	if r == nil {
		return nil, customErrors.NewInvalidArgument("account repo is required")
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	if v == nil {
		v = validator.New()
	}
	if log == nil {
		log = zap.NewNop()
	}

	s.Secret = append([]byte(nil), s.Secret...)

	return &accountService{
		repo:     r,
		settings: s,
		v:        v,
		log:      log,
		now:      time.Now,
	}, nil
}
