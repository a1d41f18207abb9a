package checkin

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

type configOptions struct {
	withHost          string
	withHostEnv       string
	withScopes        []string
	withAudiences     []string
	withProviderCA    string
	withSigningAlgs   []Alg
	withUsernameClaim string
	withEntitlements  Policy
	withAffiliations  Policy
	withRefreshAge    time.Duration
	withLogger        hclog.Logger
	withNowFunc       func() time.Time
}

func configDefaults() configOptions {
	return configOptions{
		withHostEnv:       DefaultHostEnv,
		withScopes:        DefaultScopes(),
		withSigningAlgs:   []Alg{RS256},
		withUsernameClaim: DefaultUsernameClaim,
		withEntitlements:  Policy{Claim: DefaultEntitlementsClaim},
		withAffiliations:  Policy{Claim: DefaultAffiliationsClaim},
		withRefreshAge:    DefaultRefreshAge,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithHost provides the Check-in hostname to use. When none is provided, the
// host is read from the host env var (see WithHostEnv) and falls back to
// DefaultHost.
func WithHost(host string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withHost = host
		}
	}
}

// WithHostEnv provides the name of the environment variable consulted for the
// Check-in hostname when no literal host is configured.
func WithHostEnv(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withHostEnv = name
		}
	}
}

// WithScopes provides an optional list of scopes to request. The required
// "openid" scope is injected during validation if it's absent from the list.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithAudiences provides an optional list of audiences used when verifying an
// id_token's "aud" claim.
func WithAudiences(auds ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAudiences = auds
		}
	}
}

// WithProviderCA provides an optional CA cert PEM used when making requests to
// the provider.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithSigningAlgs provides the signing algorithms accepted when verifying
// id_tokens.
func WithSigningAlgs(algs ...Alg) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withSigningAlgs = algs
		}
	}
}

// WithUsernameClaim provides the claim used for the canonical username.
// Check-in's "sub" is unique but too long to be used as an id for volumes, so
// the default is DefaultUsernameClaim.
func WithUsernameClaim(claim string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withUsernameClaim = claim
		}
	}
}

// WithEntitlementsPolicy provides the allow-list of entitlement claim values
// authorized to login. An empty allow-list disables the policy.
func WithEntitlementsPolicy(allowed ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withEntitlements.Allowed = allowed
		}
	}
}

// WithAffiliationsPolicy provides the allow-list of affiliation claim values
// authorized to login. An empty allow-list disables the policy.
func WithAffiliationsPolicy(allowed ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withAffiliations.Allowed = allowed
		}
	}
}

// WithPolicies replaces both authorization policies, including their claim
// keys.
func WithPolicies(entitlements, affiliations Policy) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withEntitlements = entitlements
			o.withAffiliations = affiliations
		}
	}
}

// WithRefreshAge provides the safety margin before token expiry under which a
// refresh call is actually performed.
func WithRefreshAge(age time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRefreshAge = age
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withLogger = l
		}
	}
}

// WithNowFunc provides an optional func for determining the current time.
func WithNowFunc(now func() time.Time) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withNowFunc = now
		}
	}
}
