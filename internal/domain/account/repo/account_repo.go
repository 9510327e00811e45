package repo

import (
	"context"

	"github.com/Miraines/MoonyAndStarry/account-service/internal/domain/account/model"
)

// AccountRepo is the narrow data-access contract of the account core.
// Finders return errors.ErrNotFound when nothing matches.
type AccountRepo interface {
	FindByEmail(ctx context.Context, email string) (model.Account, error)

	FindByID(ctx context.Context, id string) (model.Account, error)

	FindByEmailValidationCode(ctx context.Context, code string) (model.Account, error)

	// Save creates the account when a.ID is empty and assigns the new ID,
	// otherwise it replaces the stored record. A duplicate email yields
	// errors.ErrAlreadyExists.
	Save(ctx context.Context, a *model.Account) error

	Ping(ctx context.Context) error
}
