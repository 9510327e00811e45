package postgres

import (
	"context"
	"errors"
	"time"

	customErrors "github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/errors"
	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type accountRow struct {
	ID                       string `gorm:"primaryKey"`
	Email                    string `gorm:"uniqueIndex;not null"`
	PasswordHash             string `gorm:"not null"`
	Salt                     string `gorm:"not null"`
	CreatedAt                time.Time
	UpdatedAt                time.Time
	EmailValidated           bool    `gorm:"not null;default:false"`
	EmailValidationCode      *string `gorm:"index"`
	EmailValidationExpiresAt *time.Time
	ResetPasswordCode        *string
	ResetPasswordExpiresAt   *time.Time
}

func (accountRow) TableName() string { return "accounts" }

func toRow(a model.Account) accountRow {
	return accountRow{
		ID:                       a.ID,
		Email:                    a.Email,
		PasswordHash:             a.PasswordHash,
		Salt:                     a.Salt,
		CreatedAt:                a.CreatedAt,
		EmailValidated:           a.EmailValidated,
		EmailValidationCode:      a.EmailValidationCode,
		EmailValidationExpiresAt: a.EmailValidationExpiresAt,
		ResetPasswordCode:        a.ResetPasswordCode,
		ResetPasswordExpiresAt:   a.ResetPasswordExpiresAt,
	}
}

func (r accountRow) toModel() model.Account {
	return model.Account{
		ID:                       r.ID,
		Email:                    r.Email,
		PasswordHash:             r.PasswordHash,
		Salt:                     r.Salt,
		CreatedAt:                r.CreatedAt,
		EmailValidated:           r.EmailValidated,
		EmailValidationCode:      r.EmailValidationCode,
		EmailValidationExpiresAt: r.EmailValidationExpiresAt,
		ResetPasswordCode:        r.ResetPasswordCode,
		ResetPasswordExpiresAt:   r.ResetPasswordExpiresAt,
	}
}

type PostgresAccountRepo struct {
	db *gorm.DB
}

func NewPostgresAccountRepo(db *gorm.DB) *PostgresAccountRepo {
	return &PostgresAccountRepo{db: db}
}

func (p *PostgresAccountRepo) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	return p.first(ctx, "FindByEmail", "email = ?", email)
}

func (p *PostgresAccountRepo) FindByID(ctx context.Context, id string) (model.Account, error) {
	return p.first(ctx, "FindByID", "id = ?", id)
}

func (p *PostgresAccountRepo) FindByEmailValidationCode(ctx context.Context, code string) (model.Account, error) {
	return p.first(ctx, "FindByEmailValidationCode", "email_validation_code = ?", code)
}

// Save inserts the account when it has no ID yet and assigns one, otherwise
// it overwrites the stored row.
func (p *PostgresAccountRepo) Save(ctx context.Context, a *model.Account) error {
	row := toRow(*a)
	if row.ID == "" {
		row.ID = uuid.NewString()
		if err := p.db.WithContext(ctx).Create(&row).Error; err != nil {
			if isUniqueViolation(err) {
				return customErrors.ErrAlreadyExists
			}
			return customErrors.WrapInternal(err, "CreateAccount")
		}
		a.ID = row.ID
		return nil
	}

	if err := p.db.WithContext(ctx).Save(&row).Error; err != nil {
		if isUniqueViolation(err) {
			return customErrors.ErrAlreadyExists
		}
		return customErrors.WrapInternal(err, "UpdateAccount")
	}
	return nil
}

func (p *PostgresAccountRepo) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return customErrors.WrapInternal(err, "Ping")
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return customErrors.WrapInternal(err, "Ping")
	}
	return nil
}

func (p *PostgresAccountRepo) first(ctx context.Context, op, query, arg string) (model.Account, error) {
	var row accountRow
	res := p.db.WithContext(ctx).Where(query, arg).First(&row)
	if errors.Is(res.Error, gorm.ErrRecordNotFound) {
		return model.Account{}, customErrors.ErrNotFound
	}
	if err := res.Error; err != nil {
		return model.Account{}, customErrors.WrapInternal(err, op)
	}
	return row.toModel(), nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
