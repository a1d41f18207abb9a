package checkin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/EGI-Foundation/egi-notebooks-auth/internal/strutils"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"
)

// Authenticator authenticates notebook users against EGI Check-in using the
// 3-legged OIDC authorization code flow and authorizes them by their
// federated claims. It is safe for concurrent use: each user's login or
// refresh runs independently against its own Request and AuthState.
type Authenticator struct {
	config       *Config
	client       *http.Client
	oauth2Config oauth2.Config
	verifier     *oidc.IDTokenVerifier
	logger       hclog.Logger

	mu sync.Mutex

	// backgroundCtx is the context used for background activities like
	// fetching the provider's signing keys.
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities.
	backgroundCtxCancel context.CancelFunc
}

// New creates an Authenticator from the config. No request is made to the
// provider until the first login; the signing key set is fetched lazily.
//
// See Authenticator.Done() which must be called to release resources.
func New(c *Config) (*Authenticator, error) {
	const op = "checkin.New"
	if c == nil {
		return nil, fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: config is invalid: %w", op, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Authenticator{
		config:              c,
		logger:              c.logger(),
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}

	client, err := c.HTTPClient()
	if err != nil {
		a.Done()
		return nil, fmt.Errorf("%s: unable to create http client: %w", op, err)
	}
	a.client = client

	a.oauth2Config = oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: string(c.ClientSecret),
		RedirectURL:  c.RedirectURL,
		Scopes:       c.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.AuthURL(),
			TokenURL: c.TokenURL(),
		},
	}

	algs := make([]string, 0, len(c.SupportedSigningAlgs))
	for _, alg := range c.SupportedSigningAlgs {
		algs = append(algs, string(alg))
	}
	keySet := oidc.NewRemoteKeySet(a.httpContext(a.backgroundCtx), c.JWKSURL())
	a.verifier = oidc.NewVerifier(c.Issuer(), keySet, &oidc.Config{
		ClientID:             c.ClientID,
		SupportedSigningAlgs: algs,
	})

	return a, nil
}

// Done with the authenticator's background resources. Must be called for
// every Authenticator created.
func (a *Authenticator) Done() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.backgroundCtxCancel != nil {
		a.backgroundCtxCancel()
		a.backgroundCtxCancel = nil
	}
}

// AuthURL generates the URL a user is sent to in order to kick off the
// authorization code flow for the given request.
func (a *Authenticator) AuthURL(req *Request) (string, error) {
	const op = "checkin.(Authenticator).AuthURL"
	if req == nil {
		return "", fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	return a.oauth2Config.AuthCodeURL(req.State(), oidc.Nonce(req.Nonce())), nil
}

// Exchange requests tokens from the Check-in token endpoint using the
// authorization code and state received in the callback, after validating
// them against the user's pending request.
func (a *Authenticator) Exchange(ctx context.Context, req *Request, responseState, code string) (*oauth2.Token, error) {
	const op = "checkin.(Authenticator).Exchange"
	if req == nil {
		return nil, fmt.Errorf("%s: request is nil: %w", op, ErrNilParameter)
	}
	if req.State() != responseState {
		return nil, fmt.Errorf("%s: request state and response state are not equal: %w", op, ErrResponseState)
	}
	if req.IsExpired() {
		return nil, fmt.Errorf("%s: authentication request is expired: %w", op, ErrExpiredRequest)
	}
	tok, err := a.oauth2Config.Exchange(a.httpContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to exchange auth code with provider: %w", op, err)
	}
	return tok, nil
}

// UserInfo fetches the userinfo claims using the token as a bearer
// credential.
func (a *Authenticator) UserInfo(ctx context.Context, tok *oauth2.Token) (map[string]interface{}, error) {
	const op = "checkin.(Authenticator).UserInfo"
	if tok == nil {
		return nil, fmt.Errorf("%s: token is nil: %w", op, ErrNilParameter)
	}
	client := oauth2.NewClient(a.httpContext(ctx), oauth2.StaticTokenSource(tok))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.UserinfoURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create userinfo request: %w", op, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s: userinfo request failed: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read userinfo response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: userinfo returned %d: %w", op, resp.StatusCode, ErrUserInfoFailed)
	}
	var userinfo map[string]interface{}
	if err := json.Unmarshal(body, &userinfo); err != nil {
		return nil, fmt.Errorf("%s: unable to decode userinfo response: %w", op, err)
	}
	return userinfo, nil
}

// Authenticate completes a user's login: it exchanges the authorization code
// for tokens, verifies the id_token when one is present, resolves the user's
// identity from userinfo and evaluates both authorization policies. The
// returned AuthState always has its access token set and is ready to be
// persisted by the hosting platform.
//
// A user must satisfy every active policy; failing any of them returns
// ErrPolicyDenied and no AuthState.
func (a *Authenticator) Authenticate(ctx context.Context, req *Request, responseState, code string) (*AuthState, *Identity, error) {
	const op = "checkin.(Authenticator).Authenticate"
	tok, err := a.Exchange(ctx, req, responseState, code)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if tok.AccessToken == "" {
		return nil, nil, fmt.Errorf("%s: token response: %w", op, ErrMissingAccessToken)
	}
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		if err := a.verifyIDToken(ctx, rawIDToken, req.Nonce()); err != nil {
			return nil, nil, fmt.Errorf("%s: %w", op, err)
		}
	} else {
		// Check-in always issues one, but only the access token is needed
		// downstream.
		a.logger.Debug("no id_token in token response")
	}

	userinfo, err := a.UserInfo(ctx, tok)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	identity, err := ResolveIdentity(userinfo, a.config.UsernameClaim)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, p := range []Policy{a.config.Entitlements, a.config.Affiliations} {
		if !p.Active() {
			continue
		}
		claims := identity.ClaimSet(p.Claim)
		if len(claims) == 0 {
			a.logger.Debug("userinfo has no values for policy claim", "claim", p.Claim, "user", identity.Username)
		}
		a.logger.Debug("evaluating policy", "claim", p.Claim, "claims", claims)
	}
	if !identity.Authorized(a.config.Entitlements, a.config.Affiliations) {
		return nil, nil, fmt.Errorf("%s: user %q: %w", op, identity.Username, ErrPolicyDenied)
	}

	state := &AuthState{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		RefreshInfo:  newRefreshInfo(tok, a.config.now()),
	}
	a.logger.Debug("authenticated user", "user", identity.Username)
	return state, identity, nil
}

// verifyIDToken verifies the id_token has been signed by the provider,
// validates the nonce, and checks the configured audiences when present.
func (a *Authenticator) verifyIDToken(ctx context.Context, rawIDToken, nonce string) error {
	const op = "checkin.(Authenticator).verifyIDToken"
	idToken, err := a.verifier.Verify(a.httpContext(ctx), rawIDToken)
	if err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, ErrIdTokenVerification)
	}
	if nonce != "" && idToken.Nonce != nonce {
		return fmt.Errorf("%s: invalid id_token nonce: %w", op, ErrInvalidNonce)
	}
	if len(a.config.Audiences) > 0 {
		found := false
		for _, v := range a.config.Audiences {
			if strutils.StrListContains(idToken.Audience, v) {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%s: invalid id_token audiences: %w", op, ErrInvalidAudience)
		}
	}
	return nil
}

// httpContext returns a context carrying the authenticator's http client.
// It sets the same context key used by the github.com/coreos/go-oidc and
// golang.org/x/oauth2 packages, so it works for both.
func (a *Authenticator) httpContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, a.client)
}

// Config returns the authenticator's config.
func (a *Authenticator) Config() *Config { return a.config }
