package checkin

import (
	"time"

	"golang.org/x/oauth2"
)

// RefreshInfo keeps the fields of the last token endpoint response needed to
// decide when the next refresh is due.
type RefreshInfo struct {
	// ExpiryTime is the absolute access token expiry as a unix timestamp,
	// computed as now + expires_in when the token response was received.
	// Zero means the expiry is unknown and the token is treated as expiring.
	ExpiryTime int64 `json:"expiry_time"`

	// ExpiresIn is the raw expires_in from the token endpoint, in seconds.
	ExpiresIn int64 `json:"expires_in,omitempty"`

	TokenType string `json:"token_type,omitempty"`
	Scope     string `json:"scope,omitempty"`
	IDToken   string `json:"id_token,omitempty"`
}

// AuthState is the persisted per-session credential bundle. It's created at
// first successful authentication, mutated only by refresh and by the
// storage token broker, and persisted by the hosting platform as opaque
// JSON, so its fields are plain strings rather than redacted types.
type AuthState struct {
	// AccessToken is the federated Check-in access token. Always set after
	// a successful authenticate call.
	AccessToken string `json:"access_token"`

	// RefreshToken is required for refresh calls; its absence makes refresh
	// unavailable, which is a hard stop rather than an error.
	RefreshToken string `json:"refresh_token,omitempty"`

	// RefreshInfo carries the expiry bookkeeping from the last token
	// endpoint response.
	RefreshInfo *RefreshInfo `json:"refresh_info,omitempty"`

	// OnedataToken is the derived storage access token, set by the storage
	// token broker.
	OnedataToken string `json:"onedata_token,omitempty"`

	// OnedataUser is the storage-system user id owning OnedataToken.
	OnedataUser string `json:"onedata_user,omitempty"`
}

// TimeLeft returns how long the access token remains valid at now. An
// unknown expiry returns zero, which makes the token count as expiring.
func (s *AuthState) TimeLeft(now time.Time) time.Duration {
	if s == nil || s.RefreshInfo == nil || s.RefreshInfo.ExpiryTime == 0 {
		return 0
	}
	return time.Unix(s.RefreshInfo.ExpiryTime, 0).Sub(now)
}

// newRefreshInfo captures the fields of an oauth2 token response, anchoring
// the absolute expiry at now.
func newRefreshInfo(tok *oauth2.Token, now time.Time) *RefreshInfo {
	info := &RefreshInfo{
		TokenType: tok.TokenType,
	}
	if !tok.Expiry.IsZero() {
		info.ExpiryTime = tok.Expiry.Unix()
		if left := tok.Expiry.Sub(now); left > 0 {
			info.ExpiresIn = int64(left / time.Second)
		}
	}
	if scope, ok := tok.Extra("scope").(string); ok {
		info.Scope = scope
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		info.IDToken = idToken
	}
	return info
}
