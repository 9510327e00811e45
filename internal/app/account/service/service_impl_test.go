package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/credential"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/app/account/token"
	authErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type accountRepoStub struct {
	accounts map[string]model.Account
	saves    int
	findErr  error
	saveErr  error
	byCode   func(code string) (model.Account, error)
}

func newRepoStub() *accountRepoStub {
	return &accountRepoStub{accounts: make(map[string]model.Account)}
}

func (r *accountRepoStub) FindByEmail(_ context.Context, email string) (model.Account, error) {
	if r.findErr != nil {
		return model.Account{}, r.findErr
	}
	for _, a := range r.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return model.Account{}, authErrors.ErrNotFound
}

func (r *accountRepoStub) FindByID(_ context.Context, id string) (model.Account, error) {
	if r.findErr != nil {
		return model.Account{}, r.findErr
	}
	a, ok := r.accounts[id]
	if !ok {
		return model.Account{}, authErrors.ErrNotFound
	}
	return a, nil
}

func (r *accountRepoStub) FindByEmailValidationCode(_ context.Context, code string) (model.Account, error) {
	if r.byCode != nil {
		return r.byCode(code)
	}
	for _, a := range r.accounts {
		if a.EmailValidationCode != nil && *a.EmailValidationCode == code {
			return a, nil
		}
	}
	return model.Account{}, authErrors.ErrNotFound
}

func (r *accountRepoStub) Save(_ context.Context, a *model.Account) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	r.accounts[a.ID] = *a
	r.saves++
	return nil
}

func (r *accountRepoStub) Ping(context.Context) error { return nil }

func (r *accountRepoStub) byEmail(t *testing.T, email string) model.Account {
	t.Helper()
	a, err := r.FindByEmail(context.Background(), email)
	require.NoError(t, err)
	return a
}

var testSettings = Settings{
	Secret:             []byte("secret"),
	SessionTTL:         time.Hour,
	ResetPasswordTTL:   30 * time.Minute,
	EmailValidationTTL: 60 * time.Minute,
}

func newSvc(t *testing.T) (*accountService, *accountRepoStub) {
	t.Helper()
	r := newRepoStub()
	svc, err := New(r, testSettings, validator.New(), nil)
	require.NoError(t, err)
	return svc.(*accountService), r
}

func register(t *testing.T, svc *accountService, email, password string) {
	t.Helper()
	res, err := svc.Register(context.Background(), email, password)
	require.NoError(t, err)
	require.Equal(t, model.Ok, res)
}

func TestNew_InvalidSettings(t *testing.T) {
	r := newRepoStub()
	bad := []Settings{
		{SessionTTL: time.Hour, ResetPasswordTTL: time.Minute, EmailValidationTTL: time.Minute},
		{Secret: []byte("s"), ResetPasswordTTL: time.Minute, EmailValidationTTL: time.Minute},
		{Secret: []byte("s"), SessionTTL: time.Hour, EmailValidationTTL: time.Minute},
		{Secret: []byte("s"), SessionTTL: time.Hour, ResetPasswordTTL: time.Minute},
	}
	for _, s := range bad {
		_, err := New(r, s, nil, nil)
		require.True(t, authErrors.IsInvalidArgument(err))
	}

	_, err := New(nil, testSettings, nil, nil)
	require.True(t, authErrors.IsInvalidArgument(err))
}

func TestNew_CopiesSecret(t *testing.T) {
	s := testSettings
	s.Secret = []byte("secret")
	svc, err := New(newRepoStub(), s, nil, nil)
	require.NoError(t, err)

	s.Secret[0] = 'X'
	require.Equal(t, []byte("secret"), svc.(*accountService).settings.Secret)
}

func TestRegister_EmailInUse(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()

	res, err := svc.Register(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	require.Equal(t, model.Ok, res)

	res, err = svc.Register(ctx, "a@x.com", "pw2")
	require.NoError(t, err)
	require.Equal(t, model.EmailInUse, res)
	require.Equal(t, 1, r.saves)

	a := r.byEmail(t, "a@x.com")
	require.False(t, a.EmailValidated)
	require.False(t, a.CreatedAt.IsZero())
	require.NotEmpty(t, a.Salt)
	require.NotEqual(t, "pw1", a.PasswordHash)
	require.True(t, credential.Credential{Hash: a.PasswordHash, Salt: a.Salt}.Matches("pw1"))
}

func TestRegister_InvalidInput(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "", "pw")
	require.True(t, authErrors.IsInvalidArgument(err))

	_, err = svc.Register(ctx, "a@x.com", "   ")
	require.True(t, authErrors.IsInvalidArgument(err))
	require.Zero(t, r.saves)
}

func TestRegister_SaveRace(t *testing.T) {
	svc, r := newSvc(t)
	r.saveErr = authErrors.ErrAlreadyExists

	res, err := svc.Register(context.Background(), "a@x.com", "pw")
	require.NoError(t, err)
	require.Equal(t, model.EmailInUse, res)
}

func TestRegister_StorageFailure(t *testing.T) {
	svc, r := newSvc(t)
	r.saveErr = errors.New("boom")

	_, err := svc.Register(context.Background(), "a@x.com", "pw")
	require.True(t, authErrors.IsInternal(err))

	r.saveErr = nil
	r.findErr = errors.New("down")
	_, err = svc.Register(context.Background(), "a@x.com", "pw")
	require.True(t, authErrors.IsInternal(err))
}

func TestLogin(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")

	res, err := svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	require.Equal(t, model.Ok, res.Code)
	require.NotEmpty(t, res.Token)
	require.NotNil(t, res.User)
	require.Equal(t, "a@x.com", res.User.Email)

	p, err := token.Decode(res.Token, testSettings.Secret)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, p.UserID)
	require.WithinDuration(t, time.Now().Add(time.Hour), p.ExpiresAt, time.Minute)

	res, err = svc.Login(ctx, "a@x.com", "wrong")
	require.NoError(t, err)
	require.Equal(t, model.BadPassword, res.Code)
	require.Empty(t, res.Token)
	require.Nil(t, res.User)

	res, err = svc.Login(ctx, "nobody@x.com", "pw1")
	require.NoError(t, err)
	require.Equal(t, model.NoSuchUser, res.Code)
}

func TestGetCurrentUser(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")

	login, err := svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)

	res, err := svc.GetCurrentUser(ctx, login.Token)
	require.NoError(t, err)
	require.Equal(t, model.Ok, res.Code)
	require.Equal(t, login.Token, res.Token)
	require.Equal(t, login.User.ID, res.User.ID)
}

func TestGetCurrentUser_Failures(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")
	id := r.byEmail(t, "a@x.com").ID

	res, err := svc.GetCurrentUser(ctx, "")
	require.NoError(t, err)
	require.Equal(t, model.BadToken, res.Code)

	res, err = svc.GetCurrentUser(ctx, "not-a-token")
	require.NoError(t, err)
	require.Equal(t, model.BadToken, res.Code)

	foreign, err := token.Issue(id, time.Now(), time.Now().Add(time.Hour), []byte("other"))
	require.NoError(t, err)
	res, err = svc.GetCurrentUser(ctx, foreign)
	require.NoError(t, err)
	require.Equal(t, model.BadToken, res.Code)

	expired, err := token.Issue(id, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour), testSettings.Secret)
	require.NoError(t, err)
	res, err = svc.GetCurrentUser(ctx, expired)
	require.NoError(t, err)
	require.Equal(t, model.ExpiredToken, res.Code)

	ghost, err := token.Issue("missing", time.Now(), time.Now().Add(time.Hour), testSettings.Secret)
	require.NoError(t, err)
	res, err = svc.GetCurrentUser(ctx, ghost)
	require.NoError(t, err)
	require.Equal(t, model.NoSuchUser, res.Code)
}

func TestResetPassword_Scenario(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")
	salt := r.byEmail(t, "a@x.com").Salt

	start, err := svc.StartResetPassword(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, model.Ok, start.Code)
	require.NotEmpty(t, start.Secret)

	stored := r.byEmail(t, "a@x.com")
	require.NotNil(t, stored.ResetPasswordCode)
	require.NotNil(t, stored.ResetPasswordExpiresAt)
	require.WithinDuration(t, time.Now().Add(30*time.Minute), *stored.ResetPasswordExpiresAt, time.Minute)

	res, err := svc.CompleteResetPassword(ctx, "a@x.com", "wrong-code", "newpw")
	require.NoError(t, err)
	require.Equal(t, model.InvalidPasswordValidationKey, res)

	res, err = svc.CompleteResetPassword(ctx, "a@x.com", start.Secret, "newpw")
	require.NoError(t, err)
	require.Equal(t, model.Ok, res)

	stored = r.byEmail(t, "a@x.com")
	require.Nil(t, stored.ResetPasswordCode)
	require.Nil(t, stored.ResetPasswordExpiresAt)
	require.Equal(t, salt, stored.Salt)

	res, err = svc.CompleteResetPassword(ctx, "a@x.com", start.Secret, "newpw")
	require.NoError(t, err)
	require.Equal(t, model.InvalidPasswordValidationKey, res)

	login, err := svc.Login(ctx, "a@x.com", "newpw")
	require.NoError(t, err)
	require.Equal(t, model.Ok, login.Code)
	login, err = svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	require.Equal(t, model.BadPassword, login.Code)
}

func TestStartResetPassword_OverwritesPriorCode(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")

	first, err := svc.StartResetPassword(ctx, "a@x.com")
	require.NoError(t, err)
	second, err := svc.StartResetPassword(ctx, "a@x.com")
	require.NoError(t, err)
	require.NotEqual(t, first.Secret, second.Secret)

	res, err := svc.CompleteResetPassword(ctx, "a@x.com", first.Secret, "newpw")
	require.NoError(t, err)
	require.Equal(t, model.InvalidPasswordValidationKey, res)
}

func TestCompleteResetPassword_Expired(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")

	start, err := svc.StartResetPassword(ctx, "a@x.com")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	res, err := svc.CompleteResetPassword(ctx, "a@x.com", start.Secret, "newpw")
	require.NoError(t, err)
	require.Equal(t, model.PasswordValidationKeyExpired, res)

	// wrong code on an expired entry is still a key mismatch
	res, err = svc.CompleteResetPassword(ctx, "a@x.com", "other", "newpw")
	require.NoError(t, err)
	require.Equal(t, model.InvalidPasswordValidationKey, res)

	require.NotNil(t, r.byEmail(t, "a@x.com").ResetPasswordCode)
}

func TestCompleteResetPassword_NoExpiryStored(t *testing.T) {
	svc, r := newSvc(t)
	register(t, svc, "a@x.com", "pw1")
	a := r.byEmail(t, "a@x.com")
	code := "abcdefghi"
	a.ResetPasswordCode = &code
	r.accounts[a.ID] = a

	res, err := svc.CompleteResetPassword(context.Background(), "a@x.com", code, "newpw")
	require.NoError(t, err)
	require.Equal(t, model.PasswordValidationKeyExpired, res)
}

func TestResetPassword_NoSuchUser(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()

	start, err := svc.StartResetPassword(ctx, "nobody@x.com")
	require.NoError(t, err)
	require.Equal(t, model.NoSuchUser, start.Code)
	require.Empty(t, start.Secret)

	res, err := svc.CompleteResetPassword(ctx, "nobody@x.com", "code", "newpw")
	require.NoError(t, err)
	require.Equal(t, model.NoSuchUser, res)

	_, err = svc.CompleteResetPassword(ctx, "nobody@x.com", "code", "")
	require.True(t, authErrors.IsInvalidArgument(err))
}

func TestStartChangeEmail(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()

	res, err := svc.StartChangeEmail(ctx, "nobody@x.com")
	require.NoError(t, err)
	require.Equal(t, model.NoSuchUser, res.Code)
	require.Zero(t, r.saves)

	register(t, svc, "a@x.com", "pw1")
	res, err = svc.StartChangeEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, model.Ok, res.Code)
	require.NotEmpty(t, res.Secret)

	stored := r.byEmail(t, "a@x.com")
	require.Equal(t, res.Secret, *stored.EmailValidationCode)
	require.WithinDuration(t, time.Now().Add(time.Hour), *stored.EmailValidationExpiresAt, time.Minute)
	require.Nil(t, stored.ResetPasswordCode)
}

func TestCompleteChangeEmail(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")

	login, err := svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	start, err := svc.StartChangeEmail(ctx, "a@x.com")
	require.NoError(t, err)

	res, err := svc.CompleteChangeEmail(ctx, login.Token, "b@x.com", "wrong")
	require.NoError(t, err)
	require.Equal(t, model.InvalidEmailKey, res)

	res, err = svc.CompleteChangeEmail(ctx, login.Token, "b@x.com", start.Secret)
	require.NoError(t, err)
	require.Equal(t, model.Ok, res)

	stored := r.byEmail(t, "b@x.com")
	require.True(t, stored.EmailValidated)
	require.Nil(t, stored.EmailValidationCode)
	require.Nil(t, stored.EmailValidationExpiresAt)
	require.Equal(t, login.User.ID, stored.ID)

	res, err = svc.CompleteChangeEmail(ctx, login.Token, "c@x.com", start.Secret)
	require.NoError(t, err)
	require.Equal(t, model.InvalidEmailKey, res)
}

func TestCompleteChangeEmail_TokenChecks(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")
	id := r.byEmail(t, "a@x.com").ID

	res, err := svc.CompleteChangeEmail(ctx, "", "b@x.com", "code")
	require.NoError(t, err)
	require.Equal(t, model.BadToken, res)

	res, err = svc.CompleteChangeEmail(ctx, "garbage", "b@x.com", "code")
	require.NoError(t, err)
	require.Equal(t, model.BadToken, res)

	expired, err := token.Issue(id, time.Now().Add(-2*time.Hour), time.Now().Add(-time.Hour), testSettings.Secret)
	require.NoError(t, err)
	res, err = svc.CompleteChangeEmail(ctx, expired, "b@x.com", "code")
	require.NoError(t, err)
	require.Equal(t, model.ExpiredToken, res)

	ghost, err := token.Issue("missing", time.Now(), time.Now().Add(time.Hour), testSettings.Secret)
	require.NoError(t, err)
	res, err = svc.CompleteChangeEmail(ctx, ghost, "b@x.com", "code")
	require.NoError(t, err)
	require.Equal(t, model.NoSuchUser, res)

	_, err = svc.CompleteChangeEmail(ctx, ghost, "", "code")
	require.True(t, authErrors.IsInvalidArgument(err))
}

func TestCompleteChangeEmail_ExpiredCodeAndTakenEmail(t *testing.T) {
	svc, _ := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")
	register(t, svc, "b@x.com", "pw2")

	login, err := svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	start, err := svc.StartChangeEmail(ctx, "a@x.com")
	require.NoError(t, err)

	res, err := svc.CompleteChangeEmail(ctx, login.Token, "b@x.com", start.Secret)
	require.NoError(t, err)
	require.Equal(t, model.EmailInUse, res)

	svc.now = func() time.Time { return time.Now().Add(90 * time.Minute) }
	defer func() { svc.now = time.Now }()

	// the session is also past its hour, so reissue one that outlives the clock skew
	login, err = svc.Login(ctx, "a@x.com", "pw1")
	require.NoError(t, err)
	res, err = svc.CompleteChangeEmail(ctx, login.Token, "c@x.com", start.Secret)
	require.NoError(t, err)
	require.Equal(t, model.EmailValidationKeyExpired, res)
}

func TestValidateEmail(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")

	start, err := svc.StartChangeEmail(ctx, "a@x.com")
	require.NoError(t, err)

	res, err := svc.ValidateEmail(ctx, "a@x.com", start.Secret)
	require.NoError(t, err)
	require.Equal(t, model.Ok, res)

	stored := r.byEmail(t, "a@x.com")
	require.True(t, stored.EmailValidated)
	require.Nil(t, stored.EmailValidationCode)

	res, err = svc.ValidateEmail(ctx, "a@x.com", start.Secret)
	require.NoError(t, err)
	require.Equal(t, model.NoSuchUser, res)

	res, err = svc.ValidateEmail(ctx, "a@x.com", "")
	require.NoError(t, err)
	require.Equal(t, model.NoSuchUser, res)
}

func TestValidateEmail_Expired(t *testing.T) {
	svc, r := newSvc(t)
	ctx := context.Background()
	register(t, svc, "a@x.com", "pw1")

	start, err := svc.StartChangeEmail(ctx, "a@x.com")
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	res, err := svc.ValidateEmail(ctx, "a@x.com", start.Secret)
	require.NoError(t, err)
	require.Equal(t, model.EmailValidationKeyExpired, res)
	require.False(t, r.byEmail(t, "a@x.com").EmailValidated)
}

func TestValidateEmail_KeyMismatch(t *testing.T) {
	svc, r := newSvc(t)
	other := "othervalue"
	exp := time.Now().Add(time.Hour)
	r.byCode = func(string) (model.Account, error) {
		return model.Account{ID: "1234", EmailValidationCode: &other, EmailValidationExpiresAt: &exp}, nil
	}

	res, err := svc.ValidateEmail(context.Background(), "a@x.com", "abcdefghi")
	require.NoError(t, err)
	require.Equal(t, model.InvalidEmailKey, res)

	r.byCode = func(string) (model.Account, error) {
		return model.Account{ID: "1234"}, nil
	}
	res, err = svc.ValidateEmail(context.Background(), "a@x.com", "abcdefghi")
	require.NoError(t, err)
	require.Equal(t, model.InvalidEmailKey, res)
}

func TestValidateEmail_StorageFailure(t *testing.T) {
	svc, r := newSvc(t)
	r.byCode = func(string) (model.Account, error) {
		return model.Account{}, errors.New("down")
	}

	_, err := svc.ValidateEmail(context.Background(), "a@x.com", "abcdefghi")
	require.True(t, authErrors.IsInternal(err))
}
