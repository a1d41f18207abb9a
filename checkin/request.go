package checkin

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-uuid"
)

// Request represents one OIDC authentication flow for a user. It contains
// the data needed to uniquely represent that one-time flow across the
// multiple interactions needed to complete it: the State() is round-tripped
// through the provider to prevent CSRF and the Nonce() is bound into the
// id_token to mitigate replay attacks.
type Request struct {
	state      string
	nonce      string
	expiration time.Time

	nowFunc func() time.Time
}

// NewRequest creates a Request for a login attempt that expires after
// expireIn.
//
// Supported options: WithNowFunc
func NewRequest(expireIn time.Duration, opt ...Option) (*Request, error) {
	const op = "checkin.NewRequest"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	opts := getConfigOpts(opt...)
	state, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate the request's state: %w", op, ErrIdGeneratorFailed)
	}
	nonce, err := uuid.GenerateUUID()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to generate the request's nonce: %w", op, ErrIdGeneratorFailed)
	}
	r := &Request{
		state:   state,
		nonce:   nonce,
		nowFunc: opts.withNowFunc,
	}
	r.expiration = r.now().Add(expireIn)
	return r, nil
}

// State is an opaque value used to maintain state between the request and
// the callback.
func (r *Request) State() string { return r.state }

// Nonce is a unique value bound into the id_token issued for this request.
func (r *Request) Nonce() string { return r.nonce }

// IsExpired returns true if the request's login flow has expired.
func (r *Request) IsExpired() bool {
	return r.expiration.Before(r.now())
}

func (r *Request) now() time.Time {
	if r.nowFunc != nil {
		return r.nowFunc()
	}
	return time.Now()
}
