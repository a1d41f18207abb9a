package checkin

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig(t *testing.T) {
	// pin the env fallbacks so ambient values can't leak into the table
	t.Setenv(DefaultHostEnv, "")
	t.Setenv(DefaultClientIDEnv, "")
	t.Setenv(DefaultClientSecretEnv, "")

	tests := []struct {
		name      string
		clientID  string
		secret    ClientSecret
		redirect  string
		opt       []Option
		want      func(t *testing.T, c *Config)
		wantErr   bool
		wantIsErr error
	}{
		{
			name:     "valid-with-defaults",
			clientID: "YOUR_CLIENT_ID",
			secret:   "YOUR_CLIENT_SECRET",
			redirect: "https://hub.example.org/callback",
			want: func(t *testing.T, c *Config) {
				assert := assert.New(t)
				assert.Equal(DefaultHost, c.Host)
				assert.Equal(DefaultScopes(), c.Scopes)
				assert.Equal(DefaultUsernameClaim, c.UsernameClaim)
				assert.Equal(DefaultEntitlementsClaim, c.Entitlements.Claim)
				assert.Equal(DefaultAffiliationsClaim, c.Affiliations.Claim)
				assert.Equal(DefaultRefreshAge, c.RefreshAge)
				assert.Equal([]Alg{RS256}, c.SupportedSigningAlgs)
			},
		},
		{
			name:     "valid-with-all-opts",
			clientID: "YOUR_CLIENT_ID",
			secret:   "YOUR_CLIENT_SECRET",
			redirect: "https://hub.example.org/callback",
			opt: []Option{
				WithHost("checkin.example.org"),
				WithScopes("email", "profile"),
				WithAudiences("YOUR_AUD"),
				WithSigningAlgs(ES256),
				WithUsernameClaim("sub"),
				WithEntitlementsPolicy("urn:mace:egi.eu:group:x"),
				WithAffiliationsPolicy("member@egi.eu"),
				WithRefreshAge(10 * time.Minute),
			},
			want: func(t *testing.T, c *Config) {
				assert := assert.New(t)
				assert.Equal("checkin.example.org", c.Host)
				// the required openid scope is injected up front
				assert.Equal([]string{"openid", "email", "profile"}, c.Scopes)
				assert.Equal([]string{"YOUR_AUD"}, c.Audiences)
				assert.Equal([]Alg{ES256}, c.SupportedSigningAlgs)
				assert.Equal("sub", c.UsernameClaim)
				assert.Equal([]string{"urn:mace:egi.eu:group:x"}, c.Entitlements.Allowed)
				assert.Equal([]string{"member@egi.eu"}, c.Affiliations.Allowed)
				assert.Equal(10*time.Minute, c.RefreshAge)
			},
		},
		{
			name:      "missing-redirect",
			clientID:  "YOUR_CLIENT_ID",
			secret:    "YOUR_CLIENT_SECRET",
			redirect:  "",
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "unsupported-alg",
			clientID:  "YOUR_CLIENT_ID",
			secret:    "YOUR_CLIENT_SECRET",
			redirect:  "https://hub.example.org/callback",
			opt:       []Option{WithSigningAlgs(Alg("none"))},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
		{
			name:      "zero-refresh-age",
			clientID:  "YOUR_CLIENT_ID",
			secret:    "YOUR_CLIENT_SECRET",
			redirect:  "https://hub.example.org/callback",
			opt:       []Option{WithRefreshAge(0)},
			wantErr:   true,
			wantIsErr: ErrInvalidParameter,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require := require.New(t)
			got, err := NewConfig(tt.clientID, tt.secret, tt.redirect, tt.opt...)
			if tt.wantErr {
				require.Error(err)
				if tt.wantIsErr != nil {
					require.True(errors.Is(err, tt.wantIsErr))
				}
				return
			}
			require.NoError(err)
			if tt.want != nil {
				tt.want(t, got)
			}
		})
	}
}

func TestNewConfig_EnvFallbacks(t *testing.T) {
	t.Setenv(DefaultClientIDEnv, "env-client-id")
	t.Setenv(DefaultClientSecretEnv, "env-client-secret")
	t.Setenv(DefaultHostEnv, "env.checkin.example.org")

	require := require.New(t)
	c, err := NewConfig("", "", "https://hub.example.org/callback")
	require.NoError(err)
	require.Equal("env-client-id", c.ClientID)
	require.Equal(ClientSecret("env-client-secret"), c.ClientSecret)
	require.Equal("env.checkin.example.org", c.Host)
}

func TestConfig_DerivedURLs(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	c, err := NewConfig("id", "secret", "https://hub.example.org/callback", WithHost("aai.egi.eu"))
	require.NoError(err)
	assert.Equal("https://aai.egi.eu/oidc", c.Issuer())
	assert.Equal("https://aai.egi.eu/oidc/authorize", c.AuthURL())
	assert.Equal("https://aai.egi.eu/oidc/token", c.TokenURL())
	assert.Equal("https://aai.egi.eu/oidc/userinfo", c.UserinfoURL())
	assert.Equal("https://aai.egi.eu/oidc/jwk", c.JWKSURL())
}

func TestConfig_Validate_CollectsAllProblems(t *testing.T) {
	t.Parallel()
	require := require.New(t)
	c := &Config{}
	err := c.Validate()
	require.Error(err)
	require.True(errors.Is(err, ErrInvalidParameter))
	// several independent problems are all reported
	require.Contains(err.Error(), "client id is empty")
	require.Contains(err.Error(), "client secret is empty")
	require.Contains(err.Error(), "redirect URL is empty")
	require.Contains(err.Error(), "host is empty")
}

func TestClientSecret_Redaction(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	secret := ClientSecret("bob's phone number")
	assert.Equal(RedactedClientSecret, secret.String())
	got, err := secret.MarshalJSON()
	require.NoError(err)
	assert.Equal(`"`+RedactedClientSecret+`"`, string(got))
}
