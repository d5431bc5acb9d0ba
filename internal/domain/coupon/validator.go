package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Validator determines whether a coupon code is applicable to a given store
// at a given time. It returns the coupon unmodified on success and performs
// no mutation.
type Validator interface {
	Validate(ctx context.Context, code, storeID string, now time.Time) (*Coupon, error)
}

// RepoValidator implements Validator against a Repository.
type RepoValidator struct {
	repo Repository
}

// NewRepoValidator creates a RepoValidator backed by the given Repository.
func NewRepoValidator(repo Repository) *RepoValidator {
	return &RepoValidator{repo: repo}
}

// Validate looks up the coupon for (code, storeID) and checks its validity
// window against now. The code is normalized before lookup, so "save10" and
// "SAVE10" name the same coupon. A code that only exists in another store's
// namespace yields ErrNotFound, never a coupon from that other store.
func (v *RepoValidator) Validate(ctx context.Context, code, storeID string, now time.Time) (*Coupon, error) {
	c, err := v.repo.FindByCode(ctx, NormalizeCode(code), storeID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "lookup coupon")
	}

	if !c.ActiveAt(now) {
		return nil, ErrExpired
	}

	return c, nil
}
