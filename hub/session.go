package hub

import (
	"context"
	"fmt"

	"github.com/EGI-Foundation/egi-notebooks-auth/checkin"
)

// Session is the per-user session object supplied by the hosting platform.
// The platform owns persistence: AuthState loads the bundle previously
// returned from Authenticate or Refresh, or nil when none is stored.
type Session interface {
	AuthState(ctx context.Context) (*checkin.AuthState, error)
}

// Spawner configures the process the platform starts for a session. The
// environment mapping is written before the session process starts.
type Spawner interface {
	Environment() map[string]string
}

// AccessTokenSetter is an optional Spawner capability for pushing fresh
// federated tokens into a running session.
type AccessTokenSetter interface {
	SetAccessToken(accessToken, idToken string)
}

// Binding pairs a platform session with its spawner. The spawner's optional
// capabilities are resolved once here, at session-construction time, rather
// than probed on every call.
type Binding struct {
	Session Session
	Spawner Spawner

	setAccessToken func(accessToken, idToken string)
}

// NewBinding creates a Binding for the session and spawner.
func NewBinding(sess Session, spawner Spawner) (*Binding, error) {
	const op = "hub.NewBinding"
	if sess == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	if spawner == nil {
		return nil, fmt.Errorf("%s: spawner is nil: %w", op, ErrNilParameter)
	}
	b := &Binding{
		Session: sess,
		Spawner: spawner,
	}
	if setter, ok := spawner.(AccessTokenSetter); ok {
		b.setAccessToken = setter.SetAccessToken
	}
	return b, nil
}

// CanSetAccessToken reports whether the bound spawner supports receiving
// fresh access tokens.
func (b *Binding) CanSetAccessToken() bool { return b.setAccessToken != nil }
