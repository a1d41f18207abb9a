package checkin

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/EGI-Foundation/egi-notebooks-auth/internal/httpclient"
	"github.com/EGI-Foundation/egi-notebooks-auth/internal/strutils"
	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultHost is the EGI Check-in host used when neither a literal host
	// nor the host env var is set.
	DefaultHost = "aai.egi.eu"

	// DefaultHostEnv is the environment variable consulted for the Check-in
	// host.
	DefaultHostEnv = "EGICHECKIN_HOST"

	// DefaultClientIDEnv and DefaultClientSecretEnv are the environment
	// variables consulted for the relying party credentials when the literal
	// values are empty.
	DefaultClientIDEnv     = "EGICHECKIN_CLIENT_ID"
	DefaultClientSecretEnv = "EGICHECKIN_CLIENT_SECRET"

	// DefaultUsernameClaim is the claim used for the canonical username.
	// "sub" is unique but too long to be used as an id for storage volumes.
	DefaultUsernameClaim = "preferred_username"

	// DefaultEntitlementsClaim and DefaultAffiliationsClaim are the claim
	// keys evaluated by the two authorization policies.
	DefaultEntitlementsClaim = "edu_person_entitlements"
	DefaultAffiliationsClaim = "edu_person_scoped_affiliations"

	// DefaultRefreshAge is the safety margin before expiry under which a
	// refresh call is actually performed.
	DefaultRefreshAge = 300 * time.Second
)

// Fixed path suffixes under the Check-in host. Check-in runs a MITREid
// server, so there's no need for discovery.
const (
	authorizePath = "/oidc/authorize"
	tokenPath     = "/oidc/token"
	userinfoPath  = "/oidc/userinfo"
	jwksPath      = "/oidc/jwk"
	issuerPath    = "/oidc"
)

// DefaultScopes returns the scopes requested from Check-in by default.
//
// See https://wiki.egi.eu/wiki/AAI_guide_for_SPs#OpenID_Connect_Service_Provider
func DefaultScopes() []string {
	return []string{
		oidc.ScopeOpenID,
		"profile",
		"eduperson_scoped_affiliation",
		"eduperson_entitlement",
		"offline_access",
	}
}

// ClientSecret is a relying party secret.
type ClientSecret string

// RedactedClientSecret is the redacted string or json for an oauth client
// secret.
const RedactedClientSecret = "[REDACTED: client secret]"

// String will redact the client secret.
func (t ClientSecret) String() string {
	return RedactedClientSecret
}

// MarshalJSON will redact the client secret.
func (t ClientSecret) MarshalJSON() ([]byte, error) {
	return json.Marshal(RedactedClientSecret)
}

// Config represents the configuration for authenticating notebook users
// against EGI Check-in with the 3-legged OIDC authorization code flow and
// authorizing them by their federated claims.
type Config struct {
	// Host is the Check-in host. All provider endpoints are derived from it
	// using fixed path suffixes (/oidc/authorize, /oidc/token,
	// /oidc/userinfo, /oidc/jwk).
	Host string

	// HostEnv is the environment variable consulted for Host when Host is
	// empty.
	HostEnv string

	// ClientID is the relying party id.
	ClientID string

	// ClientSecret is the relying party secret.
	ClientSecret ClientSecret

	// RedirectURL is the URL Check-in redirects to after the user completes
	// authentication.
	RedirectURL string

	// Scopes is the list of oidc scopes to request. Validation injects the
	// required "openid" scope if it's absent.
	Scopes []string

	// SupportedSigningAlgs is a list of signing algorithms accepted when
	// verifying id_tokens. List of currently supported algs: RS256, RS384,
	// RS512, ES256, ES384, ES512, PS256, PS384, PS512
	SupportedSigningAlgs []Alg

	// Audiences is an optional list of case-sensitive strings used when
	// verifying an id_token's "aud" claim.
	Audiences []string

	// ProviderCA is an optional CA cert to use when sending requests to the
	// provider.
	ProviderCA string

	// UsernameClaim is the claim used for the canonical username.
	UsernameClaim string

	// Entitlements is the authorization policy evaluated against the user's
	// entitlement claims. An empty allow-list passes trivially.
	Entitlements Policy

	// Affiliations is the authorization policy evaluated against the user's
	// affiliation claims. An empty allow-list passes trivially. Both
	// policies must pass for login to succeed.
	Affiliations Policy

	// RefreshAge is the safety margin before token expiry under which a
	// refresh call is actually performed.
	RefreshAge time.Duration

	// Logger is an optional logger.
	Logger hclog.Logger

	// NowFunc is an optional func for determining the current time, handy
	// for tests.
	NowFunc func() time.Time
}

// NewConfig composes a new Check-in config. The client id and secret fall
// back to the EGICHECKIN_CLIENT_ID / EGICHECKIN_CLIENT_SECRET env vars when
// empty, matching how the hosting platform is usually deployed.
//
// Supported options: WithHost, WithHostEnv, WithScopes, WithAudiences,
// WithProviderCA, WithSigningAlgs, WithUsernameClaim,
// WithEntitlementsPolicy, WithAffiliationsPolicy, WithPolicies,
// WithRefreshAge, WithLogger, WithNowFunc
func NewConfig(clientID string, clientSecret ClientSecret, redirectURL string, opt ...Option) (*Config, error) {
	const op = "checkin.NewConfig"
	opts := getConfigOpts(opt...)
	if clientID == "" {
		clientID = os.Getenv(DefaultClientIDEnv)
	}
	if clientSecret == "" {
		clientSecret = ClientSecret(os.Getenv(DefaultClientSecretEnv))
	}
	host := opts.withHost
	if host == "" && opts.withHostEnv != "" {
		host = os.Getenv(opts.withHostEnv)
	}
	if host == "" {
		host = DefaultHost
	}
	c := &Config{
		Host:                 host,
		HostEnv:              opts.withHostEnv,
		ClientID:             clientID,
		ClientSecret:         clientSecret,
		RedirectURL:          redirectURL,
		Scopes:               opts.withScopes,
		SupportedSigningAlgs: opts.withSigningAlgs,
		Audiences:            opts.withAudiences,
		ProviderCA:           opts.withProviderCA,
		UsernameClaim:        opts.withUsernameClaim,
		Entitlements:         opts.withEntitlements,
		Affiliations:         opts.withAffiliations,
		RefreshAge:           opts.withRefreshAge,
		Logger:               opts.withLogger,
		NowFunc:              opts.withNowFunc,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Validate the config. All problems found are reported, not just the first.
// Validation also normalizes the scope list: the required "openid" scope is
// injected if absent and duplicates are removed.
func (c *Config) Validate() error {
	const op = "checkin.(Config).Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.ClientID == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter))
	}
	if c.ClientSecret == "" {
		result = multierror.Append(result, fmt.Errorf("%s: client secret is empty: %w", op, ErrInvalidParameter))
	}
	if c.RedirectURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: redirect URL is empty: %w", op, ErrInvalidParameter))
	}
	if c.Host == "" {
		result = multierror.Append(result, fmt.Errorf("%s: host is empty: %w", op, ErrInvalidParameter))
	}
	if c.UsernameClaim == "" {
		result = multierror.Append(result, fmt.Errorf("%s: username claim is empty: %w", op, ErrInvalidParameter))
	}
	if c.RefreshAge <= 0 {
		result = multierror.Append(result, fmt.Errorf("%s: refresh age is not greater than zero: %w", op, ErrInvalidParameter))
	}
	if len(c.SupportedSigningAlgs) == 0 {
		result = multierror.Append(result, fmt.Errorf("%s: supported algorithms is empty: %w", op, ErrInvalidParameter))
	}
	for _, a := range c.SupportedSigningAlgs {
		if !supportedAlgorithms[a] {
			result = multierror.Append(result, fmt.Errorf("%s: unsupported algorithm %s: %w", op, a, ErrInvalidParameter))
		}
	}
	if !strutils.StrListContains(c.Scopes, oidc.ScopeOpenID) {
		c.Scopes = append([]string{oidc.ScopeOpenID}, c.Scopes...)
	}
	c.Scopes = strutils.RemoveDuplicatesStable(c.Scopes, false)
	return result.ErrorOrNil()
}

// Issuer is the id_token issuer derived from the host.
func (c *Config) Issuer() string { return "https://" + c.Host + issuerPath }

// AuthURL is the authorization endpoint derived from the host.
func (c *Config) AuthURL() string { return "https://" + c.Host + authorizePath }

// TokenURL is the token endpoint derived from the host.
func (c *Config) TokenURL() string { return "https://" + c.Host + tokenPath }

// UserinfoURL is the userinfo endpoint derived from the host.
func (c *Config) UserinfoURL() string { return "https://" + c.Host + userinfoPath }

// JWKSURL is the signing key set endpoint derived from the host.
func (c *Config) JWKSURL() string { return "https://" + c.Host + jwksPath }

// HTTPClient is a helper function that creates a new http client for the
// provider configured.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "checkin.(Config).HTTPClient"
	client, err := httpclient.New(c.ProviderCA)
	if err != nil {
		if errors.Is(err, httpclient.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

func (c *Config) now() time.Time {
	if c.NowFunc != nil {
		return c.NowFunc()
	}
	return time.Now()
}

func (c *Config) logger() hclog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return hclog.NewNullLogger()
}
