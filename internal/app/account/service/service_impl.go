package service

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/credential"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/token"
	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/repo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type accountService struct {
	repo     repo.AccountRepo
	settings Settings
	v        *validator.Validate
	log      *zap.Logger
	now      func() time.Time
}

func (a *accountService) Register(ctx context.Context, email, password string) (model.Result, error) {
	if err := a.required("email", email); err != nil {
		return model.Ok, err
	}
	if err := a.required("password", password); err != nil {
		return model.Ok, err
	}

	existing, err := a.find("Register", func() (model.Account, error) {
		return a.repo.FindByEmail(ctx, email)
	})
	if err != nil {
		return model.Ok, err
	}
	if existing != nil {
		return a.outcome("Register", email, model.EmailInUse), nil
	}

	cred, err := credential.New(password)
	if err != nil {
		return model.Ok, customErrors.WrapInternal(err, "Register")
	}

	acct := model.Account{
		Email:        email,
		CreatedAt:    a.now().UTC(),
		PasswordHash: cred.Hash,
		Salt:         cred.Salt,
	}
	if err := a.repo.Save(ctx, &acct); err != nil {
		// the repository closes the lookup/save race with its own uniqueness check
		if customErrors.IsAlreadyExists(err) {
			return a.outcome("Register", email, model.EmailInUse), nil
		}
		return model.Ok, a.storageFailure("Register", err)
	}

	return a.outcome("Register", email, model.Ok), nil
}

func (a *accountService) Login(ctx context.Context, email, password string) (model.SessionResult, error) {
	acct, err := a.find("Login", func() (model.Account, error) {
		return a.repo.FindByEmail(ctx, email)
	})
	if err != nil {
		return model.SessionResult{}, err
	}
	if acct == nil {
		return model.SessionResult{Code: a.outcome("Login", email, model.NoSuchUser)}, nil
	}

	cred := credential.Credential{Hash: acct.PasswordHash, Salt: acct.Salt}
	if !cred.Matches(password) {
		return model.SessionResult{Code: a.outcome("Login", email, model.BadPassword)}, nil
	}

	now := a.now().UTC()
	raw, err := token.Issue(acct.ID, now, now.Add(a.settings.SessionTTL), a.settings.Secret)
	if err != nil {
		return model.SessionResult{}, customErrors.WrapInternal(err, "Login")
	}

	view := model.NewUserView(*acct)
	return model.SessionResult{
		Code:  a.outcome("Login", email, model.Ok),
		Token: raw,
		User:  &view,
	}, nil
}

func (a *accountService) GetCurrentUser(ctx context.Context, raw string) (model.SessionResult, error) {
	payload, res := a.session(raw)
	if res != model.Ok {
		return model.SessionResult{Code: res}, nil
	}

	acct, err := a.find("GetCurrentUser", func() (model.Account, error) {
		return a.repo.FindByID(ctx, payload.UserID)
	})
	if err != nil {
		return model.SessionResult{}, err
	}
	if acct == nil {
		return model.SessionResult{Code: model.NoSuchUser}, nil
	}

	view := model.NewUserView(*acct)
	return model.SessionResult{Code: model.Ok, Token: raw, User: &view}, nil
}

func (a *accountService) StartResetPassword(ctx context.Context, email string) (model.CodeResult, error) {
	acct, err := a.find("StartResetPassword", func() (model.Account, error) {
		return a.repo.FindByEmail(ctx, email)
	})
	if err != nil {
		return model.CodeResult{}, err
	}
	if acct == nil {
		return model.CodeResult{Code: a.outcome("StartResetPassword", email, model.NoSuchUser)}, nil
	}

	code := uuid.NewString()
	expires := a.now().UTC().Add(a.settings.ResetPasswordTTL)
	acct.ResetPasswordCode = &code
	acct.ResetPasswordExpiresAt = &expires

	if err := a.repo.Save(ctx, acct); err != nil {
		return model.CodeResult{}, a.storageFailure("StartResetPassword", err)
	}

	return model.CodeResult{
		Code:      a.outcome("StartResetPassword", email, model.Ok),
		Secret:    code,
		ExpiresAt: expires,
	}, nil
}

func (a *accountService) CompleteResetPassword(ctx context.Context, email, code, newPassword string) (model.Result, error) {
	if err := a.required("password", newPassword); err != nil {
		return model.Ok, err
	}

	acct, err := a.find("CompleteResetPassword", func() (model.Account, error) {
		return a.repo.FindByEmail(ctx, email)
	})
	if err != nil {
		return model.Ok, err
	}
	if acct == nil {
		return a.outcome("CompleteResetPassword", email, model.NoSuchUser), nil
	}

	// a wrong code is reported before an expired one
	if !codeMatches(acct.ResetPasswordCode, code) {
		return a.outcome("CompleteResetPassword", email, model.InvalidPasswordValidationKey), nil
	}
	if a.lapsed(acct.ResetPasswordExpiresAt) {
		return a.outcome("CompleteResetPassword", email, model.PasswordValidationKeyExpired), nil
	}

	cred, err := credential.WithSalt(newPassword, acct.Salt)
	if err != nil {
		if cred, err = credential.New(newPassword); err != nil {
			return model.Ok, customErrors.WrapInternal(err, "CompleteResetPassword")
		}
	}

	acct.ResetPasswordCode = nil
	acct.ResetPasswordExpiresAt = nil
	acct.PasswordHash = cred.Hash
	acct.Salt = cred.Salt

	if err := a.repo.Save(ctx, acct); err != nil {
		return model.Ok, a.storageFailure("CompleteResetPassword", err)
	}

	return a.outcome("CompleteResetPassword", email, model.Ok), nil
}

func (a *accountService) StartChangeEmail(ctx context.Context, email string) (model.CodeResult, error) {
	acct, err := a.find("StartChangeEmail", func() (model.Account, error) {
		return a.repo.FindByEmail(ctx, email)
	})
	if err != nil {
		return model.CodeResult{}, err
	}
	if acct == nil {
		return model.CodeResult{Code: a.outcome("StartChangeEmail", email, model.NoSuchUser)}, nil
	}

	code := uuid.NewString()
	expires := a.now().UTC().Add(a.settings.EmailValidationTTL)
	acct.EmailValidationCode = &code
	acct.EmailValidationExpiresAt = &expires

	if err := a.repo.Save(ctx, acct); err != nil {
		return model.CodeResult{}, a.storageFailure("StartChangeEmail", err)
	}

	return model.CodeResult{
		Code:      a.outcome("StartChangeEmail", email, model.Ok),
		Secret:    code,
		ExpiresAt: expires,
	}, nil
}

func (a *accountService) CompleteChangeEmail(ctx context.Context, raw, newEmail, code string) (model.Result, error) {
	if err := a.required("new email", newEmail); err != nil {
		return model.Ok, err
	}

	payload, res := a.session(raw)
	if res != model.Ok {
		return res, nil
	}

	acct, err := a.find("CompleteChangeEmail", func() (model.Account, error) {
		return a.repo.FindByID(ctx, payload.UserID)
	})
	if err != nil {
		return model.Ok, err
	}
	if acct == nil {
		return model.NoSuchUser, nil
	}

	if !codeMatches(acct.EmailValidationCode, code) {
		return a.outcome("CompleteChangeEmail", acct.Email, model.InvalidEmailKey), nil
	}
	if a.lapsed(acct.EmailValidationExpiresAt) {
		return a.outcome("CompleteChangeEmail", acct.Email, model.EmailValidationKeyExpired), nil
	}

	if newEmail != acct.Email {
		owner, err := a.find("CompleteChangeEmail", func() (model.Account, error) {
			return a.repo.FindByEmail(ctx, newEmail)
		})
		if err != nil {
			return model.Ok, err
		}
		if owner != nil && owner.ID != acct.ID {
			return a.outcome("CompleteChangeEmail", newEmail, model.EmailInUse), nil
		}
	}

	acct.EmailValidationCode = nil
	acct.EmailValidationExpiresAt = nil
	acct.EmailValidated = true
	acct.Email = newEmail

	if err := a.repo.Save(ctx, acct); err != nil {
		if customErrors.IsAlreadyExists(err) {
			return a.outcome("CompleteChangeEmail", newEmail, model.EmailInUse), nil
		}
		return model.Ok, a.storageFailure("CompleteChangeEmail", err)
	}

	return a.outcome("CompleteChangeEmail", newEmail, model.Ok), nil
}

// ValidateEmail resolves the account through its validation code; email is
// only used for logging.
func (a *accountService) ValidateEmail(ctx context.Context, email, code string) (model.Result, error) {
	if code == "" {
		return a.outcome("ValidateEmail", email, model.NoSuchUser), nil
	}

	acct, err := a.find("ValidateEmail", func() (model.Account, error) {
		return a.repo.FindByEmailValidationCode(ctx, code)
	})
	if err != nil {
		return model.Ok, err
	}
	if acct == nil {
		return a.outcome("ValidateEmail", email, model.NoSuchUser), nil
	}

	if !codeMatches(acct.EmailValidationCode, code) {
		return a.outcome("ValidateEmail", email, model.InvalidEmailKey), nil
	}
	if a.lapsed(acct.EmailValidationExpiresAt) {
		return a.outcome("ValidateEmail", email, model.EmailValidationKeyExpired), nil
	}

	acct.EmailValidationCode = nil
	acct.EmailValidationExpiresAt = nil
	acct.EmailValidated = true

	if err := a.repo.Save(ctx, acct); err != nil {
		return model.Ok, a.storageFailure("ValidateEmail", err)
	}

	return a.outcome("ValidateEmail", email, model.Ok), nil
}

// session decodes raw and rejects it before its payload is trusted.
func (a *accountService) session(raw string) (model.SessionPayload, model.Result) {
	if raw == "" {
		return model.SessionPayload{}, model.BadToken
	}
	payload, err := token.Decode(raw, a.settings.Secret)
	if err != nil {
		return model.SessionPayload{}, model.BadToken
	}
	if token.IsExpiredAt(payload, a.now()) {
		return model.SessionPayload{}, model.ExpiredToken
	}
	return payload, model.Ok
}

// find turns ErrNotFound into a nil account and wraps everything else.
func (a *accountService) find(op string, lookup func() (model.Account, error)) (*model.Account, error) {
	acct, err := lookup()
	switch {
	case customErrors.IsNotFound(err):
		return nil, nil
	case err != nil:
		return nil, a.storageFailure(op, err)
	}
	return &acct, nil
}

func (a *accountService) required(field, value string) error {
	if err := a.v.Var(strings.TrimSpace(value), "required"); err != nil {
		return customErrors.NewInvalidArgument(field + " is required")
	}
	return nil
}

func (a *accountService) lapsed(expires *time.Time) bool {
	return expires == nil || expires.Before(a.now())
}

func (a *accountService) storageFailure(op string, err error) error {
	a.log.Error("account store failure", zap.String("op", op), zap.Error(err))
	if customErrors.IsInternal(err) {
		return err
	}
	return customErrors.WrapInternal(err, op)
}

func (a *accountService) outcome(op, email string, res model.Result) model.Result {
	a.log.Debug("account operation",
		zap.String("op", op),
		zap.String("user", fmt.Sprintf("%x", sha256.Sum256([]byte(email)))),
		zap.Stringer("result", res),
	)
	return res
}

func codeMatches(stored *string, given string) bool {
	if stored == nil {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(*stored), []byte(given)) == 1
}
