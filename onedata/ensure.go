package onedata

import (
	"context"
	"errors"
)

// ensure runs the reuse-or-create pattern shared by the token broker and the
// identity mapper: LOOKUP, then on not-found CREATE, and on any other error
// fail. It reports whether the create branch ran so callers can log which
// way the call went.
func ensure(ctx context.Context, lookup, create func(context.Context) error) (created bool, err error) {
	err = lookup(ctx)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrNotFound):
		if err := create(ctx); err != nil {
			return false, err
		}
		return true, nil
	default:
		return false, err
	}
}
