package checkin

import (
	"fmt"
	"strings"
)

// ClaimSet is the set of string values an identity provider asserts about an
// authenticated identity under one claim key (entitlements, affiliations,
// etc). It's derived fresh from the userinfo response on each authentication
// and never persisted.
type ClaimSet []string

// Policy pairs a claim key with an allow-list of values authorized to login.
// An empty allow-list means the policy is inactive and passes trivially.
type Policy struct {
	// Claim is the userinfo claim key the policy evaluates.
	Claim string

	// Allowed is the allow-list of claim values. Matching is by containment:
	// an allowed value matches when it appears within a presented claim
	// value, since Check-in claim values can be composite strings (for
	// example urn:mace entitlements with group suffixes).
	Allowed []string
}

// Authorize reports whether the presented claims satisfy the policy. It has
// no side effects and treats a missing claim key (an empty ClaimSet) as
// simply not matching.
func (p Policy) Authorize(claims ClaimSet) bool {
	if len(p.Allowed) == 0 {
		return true
	}
	for _, want := range p.Allowed {
		for _, have := range claims {
			if strings.Contains(have, want) {
				return true
			}
		}
	}
	return false
}

// Active reports whether the policy restricts anything.
func (p Policy) Active() bool { return len(p.Allowed) > 0 }

// Identity is the verified local identity resolved from a Check-in userinfo
// response.
type Identity struct {
	// Username is the canonical (bounded-length) username.
	Username string

	// Raw is the userinfo response the identity was resolved from.
	Raw map[string]interface{}
}

// ClaimSet returns the claim values under key. A missing key or a value of
// an unexpected shape yields an empty set, never an error.
func (i *Identity) ClaimSet(key string) ClaimSet {
	if i == nil || i.Raw == nil {
		return nil
	}
	return claimValues(i.Raw[key])
}

// Authorized reports whether the identity satisfies every policy (logical
// AND). Inactive policies pass trivially.
func (i *Identity) Authorized(policies ...Policy) bool {
	for _, p := range policies {
		if !p.Authorize(i.ClaimSet(p.Claim)) {
			return false
		}
	}
	return true
}

// ResolveIdentity resolves the canonical username from the raw userinfo
// response using usernameClaim. The claim sets needed for authorization are
// read lazily via Identity.ClaimSet so that absent keys degrade to empty
// sets.
func ResolveIdentity(userinfo map[string]interface{}, usernameClaim string) (*Identity, error) {
	const op = "checkin.ResolveIdentity"
	if userinfo == nil {
		return nil, fmt.Errorf("%s: userinfo is nil: %w", op, ErrNilParameter)
	}
	if usernameClaim == "" {
		return nil, fmt.Errorf("%s: username claim is empty: %w", op, ErrInvalidParameter)
	}
	username, _ := userinfo[usernameClaim].(string)
	if username == "" {
		return nil, fmt.Errorf("%s: userinfo has no %q claim: %w", op, usernameClaim, ErrMissingClaim)
	}
	return &Identity{
		Username: username,
		Raw:      userinfo,
	}, nil
}

// claimValues flattens a decoded JSON claim value into a ClaimSet. Check-in
// returns entitlements and affiliations as arrays of strings, but a single
// string is tolerated too.
func claimValues(v interface{}) ClaimSet {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		return ClaimSet{v}
	case []string:
		return ClaimSet(v)
	case []interface{}:
		out := make(ClaimSet, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
