package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	docPrefix   = "account:"
	emailPrefix = "account:email:"
	codePrefix  = "account:evc:"
)

// accountDoc is the JSON document stored under account:<id>.
type accountDoc struct {
	ID                       string     `json:"id"`
	Email                    string     `json:"email"`
	CreatedAt                time.Time  `json:"created"`
	PasswordHash             string     `json:"passwordHash"`
	Salt                     string     `json:"salt"`
	EmailValidated           bool       `json:"emailValidated"`
	EmailValidationCode      *string    `json:"emailValidationCode,omitempty"`
	EmailValidationExpiresAt *time.Time `json:"emailValidationExpires,omitempty"`
	ResetPasswordCode        *string    `json:"resetPasswordCode,omitempty"`
	ResetPasswordExpiresAt   *time.Time `json:"resetPasswordExpires,omitempty"`
}

func toDoc(a model.Account) accountDoc {
	return accountDoc{
		ID:                       a.ID,
		Email:                    a.Email,
		CreatedAt:                a.CreatedAt,
		PasswordHash:             a.PasswordHash,
		Salt:                     a.Salt,
		EmailValidated:           a.EmailValidated,
		EmailValidationCode:      a.EmailValidationCode,
		EmailValidationExpiresAt: a.EmailValidationExpiresAt,
		ResetPasswordCode:        a.ResetPasswordCode,
		ResetPasswordExpiresAt:   a.ResetPasswordExpiresAt,
	}
}

func (d accountDoc) toModel() model.Account {
	return model.Account{
		ID:                       d.ID,
		Email:                    d.Email,
		CreatedAt:                d.CreatedAt,
		PasswordHash:             d.PasswordHash,
		Salt:                     d.Salt,
		EmailValidated:           d.EmailValidated,
		EmailValidationCode:      d.EmailValidationCode,
		EmailValidationExpiresAt: d.EmailValidationExpiresAt,
		ResetPasswordCode:        d.ResetPasswordCode,
		ResetPasswordExpiresAt:   d.ResetPasswordExpiresAt,
	}
}

type RedisAccountRepo struct {
	client *redis.Client
}

func NewRedisAccountRepo(client *redis.Client) *RedisAccountRepo {
	return &RedisAccountRepo{
		client: client,
	}
}

func (r *RedisAccountRepo) FindByID(ctx context.Context, id string) (model.Account, error) {
	d, err := r.load(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	return d.toModel(), nil
}

func (r *RedisAccountRepo) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	id, err := r.lookup(ctx, emailPrefix+email, "FindByEmail")
	if err != nil {
		return model.Account{}, err
	}
	d, err := r.load(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	if d.Email != email {
		return model.Account{}, customErrors.ErrNotFound
	}
	return d.toModel(), nil
}

func (r *RedisAccountRepo) FindByEmailValidationCode(ctx context.Context, code string) (model.Account, error) {
	id, err := r.lookup(ctx, codePrefix+code, "FindByEmailValidationCode")
	if err != nil {
		return model.Account{}, err
	}
	d, err := r.load(ctx, id)
	if err != nil {
		return model.Account{}, err
	}
	// the index may outlive a cleared code
	if d.EmailValidationCode == nil || *d.EmailValidationCode != code {
		return model.Account{}, customErrors.ErrNotFound
	}
	return d.toModel(), nil
}

// Save writes the document and keeps the email and validation-code index
// keys in step with it. The email index is claimed with SETNX, so two
// accounts can never hold the same address.
func (r *RedisAccountRepo) Save(ctx context.Context, a *model.Account) error {
	doc := toDoc(*a)
	var prev *accountDoc

	if doc.ID == "" {
		doc.ID = uuid.NewString()
	} else {
		old, err := r.load(ctx, doc.ID)
		switch {
		case err == nil:
			prev = &old
		case !customErrors.IsNotFound(err):
			return err
		}
	}

	if prev == nil || prev.Email != doc.Email {
		if err := r.claimEmail(ctx, doc.Email, doc.ID); err != nil {
			return err
		}
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return customErrors.WrapInternal(err, "SaveAccount")
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, docPrefix+doc.ID, body, 0)
		if prev != nil && prev.Email != doc.Email {
			pipe.Del(ctx, emailPrefix+prev.Email)
		}
		if prev != nil && prev.EmailValidationCode != nil &&
			(doc.EmailValidationCode == nil || *prev.EmailValidationCode != *doc.EmailValidationCode) {
			pipe.Del(ctx, codePrefix+*prev.EmailValidationCode)
		}
		if doc.EmailValidationCode != nil {
			pipe.Set(ctx, codePrefix+*doc.EmailValidationCode, doc.ID, 0)
		}
		return nil
	})
	if err != nil {
		return customErrors.WrapInternal(err, "SaveAccount")
	}

	a.ID = doc.ID
	return nil
}

func (r *RedisAccountRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return customErrors.WrapInternal(err, "Ping")
	}
	return nil
}

func (r *RedisAccountRepo) claimEmail(ctx context.Context, email, id string) error {
	ok, err := r.client.SetNX(ctx, emailPrefix+email, id, 0).Result()
	if err != nil {
		return customErrors.WrapInternal(err, "ClaimEmail")
	}
	if ok {
		return nil
	}

	owner, err := r.lookup(ctx, emailPrefix+email, "ClaimEmail")
	switch {
	case customErrors.IsNotFound(err):
		return r.claimEmail(ctx, email, id)
	case err != nil:
		return err
	case owner == id:
		return nil
	}

	// a dangling index left by a document that no longer carries this email
	d, err := r.load(ctx, owner)
	if customErrors.IsNotFound(err) || (err == nil && d.Email != email) {
		if err := r.client.Set(ctx, emailPrefix+email, id, 0).Err(); err != nil {
			return customErrors.WrapInternal(err, "ClaimEmail")
		}
		return nil
	}
	if err != nil {
		return err
	}
	return customErrors.ErrAlreadyExists
}

func (r *RedisAccountRepo) lookup(ctx context.Context, key, op string) (string, error) {
	id, err := r.client.Get(ctx, key).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return "", customErrors.ErrNotFound
	case err != nil:
		return "", customErrors.WrapInternal(err, op)
	default:
		return id, nil
	}
}

func (r *RedisAccountRepo) load(ctx context.Context, id string) (accountDoc, error) {
	body, err := r.client.Get(ctx, docPrefix+id).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return accountDoc{}, customErrors.ErrNotFound
	case err != nil:
		return accountDoc{}, customErrors.WrapInternal(err, "LoadAccount")
	}

	var d accountDoc
	if err := json.Unmarshal(body, &d); err != nil {
		return accountDoc{}, customErrors.WrapInternal(err, "DecodeAccount")
	}
	return d, nil
}
