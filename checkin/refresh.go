package checkin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// RefreshStatus is the outcome of a refresh attempt. Only RefreshFailed is
// accompanied by an error; the other outcomes are normal control flow and
// never tear down a running session.
type RefreshStatus string

const (
	// RefreshUnavailable means there was no auth state or no refresh token,
	// so refreshing is not possible. This is a hard stop, not an error.
	RefreshUnavailable RefreshStatus = "unavailable"

	// RefreshStillValid means the access token's remaining lifetime exceeds
	// the configured RefreshAge margin, so no call was made.
	RefreshStillValid RefreshStatus = "still-valid"

	// RefreshFailed means the token endpoint rejected or failed the refresh
	// call. The auth state is left untouched; the caller decides whether to
	// terminate the session.
	RefreshFailed RefreshStatus = "failed"

	// Refreshed means the auth state was updated with fresh credentials and
	// should be persisted.
	Refreshed RefreshStatus = "refreshed"
)

// Refresh refreshes the session's federated credentials when they are about
// to expire. The state machine has two states per session: VALID, when the
// time left before expiry exceeds the RefreshAge margin, and EXPIRING
// otherwise (including an unknown expiry). Only the EXPIRING state performs
// a network call, so calling Refresh twice within the margin window performs
// at most one call.
//
// On success the state is mutated in place: access_token, refresh_token and
// refresh_info are overwritten and the caller is expected to persist it.
func (a *Authenticator) Refresh(ctx context.Context, state *AuthState) (RefreshStatus, error) {
	const op = "checkin.(Authenticator).Refresh"
	if state == nil || state.AccessToken == "" || state.RefreshToken == "" {
		a.logger.Warn("cannot refresh credentials without a refresh token")
		return RefreshUnavailable, nil
	}

	now := a.config.now()
	if left := state.TimeLeft(now); left > a.config.RefreshAge {
		a.logger.Debug("credentials still valid", "time_left", left)
		return RefreshStillValid, nil
	}

	a.logger.Debug("performing refresh call to Check-in")
	tok, err := a.refreshToken(ctx, state.RefreshToken)
	if err != nil {
		a.logger.Warn("unable to refresh token, maybe expired", "error", err)
		return RefreshFailed, fmt.Errorf("%s: refresh call failed: %w", op, err)
	}
	if tok.AccessToken == "" {
		a.logger.Warn("token endpoint returned no access token on refresh")
		return RefreshFailed, fmt.Errorf("%s: refresh response: %w", op, ErrMissingAccessToken)
	}

	state.AccessToken = tok.AccessToken
	if tok.RefreshToken != "" {
		state.RefreshToken = tok.RefreshToken
	}
	state.RefreshInfo = newRefreshInfo(tok, now)
	a.logger.Debug("refreshed token for user")
	return Refreshed, nil
}

// refreshToken performs the refresh_token grant directly rather than through
// oauth2.TokenSource: Check-in wants the scope list repeated on refresh calls
// and the client credentials both as basic auth and as form values, neither of
// which the oauth2 package sends for this grant.
func (a *Authenticator) refreshToken(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	const op = "checkin.(Authenticator).refreshToken"
	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {a.config.ClientID},
		"client_secret": {string(a.config.ClientSecret)},
		"scope":         {strings.Join(a.config.Scopes, " ")},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.TokenURL(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create refresh request: %w", op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(url.QueryEscape(a.config.ClientID), url.QueryEscape(string(a.config.ClientSecret)))

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: refresh request failed: %w", op, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read refresh response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: token endpoint returned %d: %w", op, resp.StatusCode, ErrTokenEndpoint)
	}

	var reply struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int64  `json:"expires_in"`
		Scope        string `json:"scope"`
		IDToken      string `json:"id_token"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, fmt.Errorf("%s: unable to decode refresh response: %w", op, err)
	}
	tok := &oauth2.Token{
		AccessToken:  reply.AccessToken,
		RefreshToken: reply.RefreshToken,
		TokenType:    reply.TokenType,
	}
	if reply.ExpiresIn > 0 {
		tok.Expiry = a.config.now().Add(time.Duration(reply.ExpiresIn) * time.Second)
	}
	extra := map[string]interface{}{}
	if reply.Scope != "" {
		extra["scope"] = reply.Scope
	}
	if reply.IDToken != "" {
		extra["id_token"] = reply.IDToken
	}
	return tok.WithExtra(extra), nil
}
