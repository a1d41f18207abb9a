package hub

import (
	"context"
	"fmt"

	"github.com/EGI-Foundation/egi-notebooks-auth/checkin"
	"github.com/EGI-Foundation/egi-notebooks-auth/onedata"
	"github.com/hashicorp/go-hclog"
)

// Authenticator wires the Check-in OIDC core together with the optional
// Onedata stages. The stages are composed by configuration: a hub deployment
// without storage integration simply never configures the Onedata config,
// and authentication then ends after policy evaluation.
type Authenticator struct {
	core    *checkin.Authenticator
	onedata *onedata.Config
	broker  *onedata.TokenBroker
	mapper  *onedata.Mapper
	logger  hclog.Logger
}

// New composes an Authenticator around the Check-in core.
//
// Supported options: WithOnedata, WithLogger
func New(core *checkin.Authenticator, opt ...Option) (*Authenticator, error) {
	const op = "hub.New"
	if core == nil {
		return nil, fmt.Errorf("%s: checkin authenticator is nil: %w", op, ErrNilParameter)
	}
	opts := getAuthenticatorOpts(opt...)
	logger := opts.withLogger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	a := &Authenticator{
		core:   core,
		logger: logger,
	}
	if opts.withOnedata != nil {
		broker, err := onedata.NewTokenBroker(opts.withOnedata)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		a.onedata = opts.withOnedata
		a.broker = broker
		if opts.withOnedata.MapUsers {
			mapper, err := onedata.NewMapper(opts.withOnedata)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", op, err)
			}
			a.mapper = mapper
		}
	}
	return a, nil
}

// AuthURL generates the login URL for a pending request.
func (a *Authenticator) AuthURL(req *checkin.Request) (string, error) {
	return a.core.AuthURL(req)
}

// Authenticate completes a user's login through the Check-in core and, when
// the Onedata stage is configured, extends the returned AuthState with a
// brokered storage token and its owning user id. A broker failure fails the
// login: no partial token state is ever returned for persistence.
func (a *Authenticator) Authenticate(ctx context.Context, req *checkin.Request, responseState, code string) (*checkin.AuthState, *checkin.Identity, error) {
	const op = "hub.(Authenticator).Authenticate"
	state, identity, err := a.core.Authenticate(ctx, req, responseState, code)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if a.broker != nil {
		brokered, err := a.broker.Ensure(ctx, state.AccessToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: user %q: %w", op, identity.Username, err)
		}
		state.OnedataToken = brokered.Token
		state.OnedataUser = brokered.UserID
	}
	return state, identity, nil
}

// Refresh refreshes the bound session's federated credentials when they are
// close to expiry, pushing the fresh access token into the running session
// when the spawner supports it. The returned AuthState is the one to
// persist; it's nil unless the status is checkin.Refreshed. Soft failures
// (no refresh token, a failed refresh call) never tear the session down.
func (a *Authenticator) Refresh(ctx context.Context, b *Binding) (*checkin.AuthState, checkin.RefreshStatus, error) {
	const op = "hub.(Authenticator).Refresh"
	if b == nil {
		return nil, checkin.RefreshUnavailable, fmt.Errorf("%s: binding is nil: %w", op, ErrNilParameter)
	}
	state, err := b.Session.AuthState(ctx)
	if err != nil {
		return nil, checkin.RefreshUnavailable, fmt.Errorf("%s: unable to load auth state: %w", op, err)
	}
	status, err := a.core.Refresh(ctx, state)
	if status != checkin.Refreshed {
		// Soft outcome; err is non-nil only for RefreshFailed and the
		// caller decides whether the session survives.
		return nil, status, err
	}
	if b.CanSetAccessToken() {
		var idToken string
		if state.RefreshInfo != nil {
			idToken = state.RefreshInfo.IDToken
		}
		b.setAccessToken(state.AccessToken, idToken)
	}
	return state, status, nil
}

// PreSpawnStart arranges credentials for the session process right before
// the platform starts it: it pushes the federated access token into the
// spawner when supported, writes the storage environment variables, and
// establishes the storage identity mapping when enabled. A mapping failure
// aborts the spawn.
func (a *Authenticator) PreSpawnStart(ctx context.Context, b *Binding) error {
	const op = "hub.(Authenticator).PreSpawnStart"
	if b == nil {
		return fmt.Errorf("%s: binding is nil: %w", op, ErrNilParameter)
	}
	state, err := b.Session.AuthState(ctx)
	if err != nil {
		return fmt.Errorf("%s: unable to load auth state: %w", op, err)
	}
	if state == nil {
		// auth state not enabled on the platform
		a.logger.Debug("no auth state for session, nothing to arrange")
		return nil
	}
	if b.CanSetAccessToken() {
		b.setAccessToken(state.AccessToken, "")
	}
	if a.onedata == nil {
		return nil
	}

	env := b.Spawner.Environment()
	env[a.onedata.TokenEnv] = state.OnedataToken
	env[a.onedata.OneproviderEnv] = a.onedata.OneproviderHost
	env[a.onedata.OnezoneEnv] = a.onedata.OnezoneURL

	if a.mapper != nil && state.OnedataUser != "" {
		if err := a.mapper.EnsureMapping(ctx, state.OnedataUser); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil
}
