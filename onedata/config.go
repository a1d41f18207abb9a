package onedata

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/EGI-Foundation/egi-notebooks-auth/internal/httpclient"
	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
)

const (
	// DefaultOnezoneURL is the EGI DataHub onezone.
	DefaultOnezoneURL = "https://datahub.egi.eu"

	// DefaultOneproviderHost is the EGI DataHub oneprovider.
	DefaultOneproviderHost = "plg-cyfronet-01.datahub.egi.eu"

	// DefaultTokenName is the label of the named token reused across
	// logins. Reuse-by-name avoids accumulating duplicate tokens when the
	// same identity logs in repeatedly.
	DefaultTokenName = "egi-notebooks"

	// DefaultStorageUID is the fixed POSIX uid paired with every mapped
	// user.
	DefaultStorageUID = 1000

	// DefaultTokenEnv, DefaultOneproviderEnv and DefaultOnezoneEnv are the
	// environment variables the session process reads to reach the storage
	// backend directly.
	DefaultTokenEnv       = "ONECLIENT_ACCESS_TOKEN"
	DefaultOneproviderEnv = "ONEPROVIDER_HOST"
	DefaultOnezoneEnv     = "ONEZONE_URL"

	// onepanelPort is the fixed port the onepanel API listens on.
	onepanelPort = "9443"
)

// Config represents the configuration for brokering Onedata access tokens
// and mapping federated identities to storage credentials.
type Config struct {
	// OnezoneURL is the onezone base URL.
	OnezoneURL string

	// OneproviderHost is the oneprovider hostname handed to sessions.
	OneproviderHost string

	// TokenName is the label of the named token reused across logins.
	TokenName string

	// OnepanelURL optionally overrides the onepanel endpoint used for
	// identity mapping. When empty it's derived from OneproviderHost with
	// the fixed onepanel port.
	OnepanelURL string

	// OnepanelToken is the provider administrative token used by the
	// identity mapping API.
	OnepanelToken string

	// StorageID identifies the storage whose LUMA local feed receives the
	// mappings.
	StorageID string

	// StorageUID is the fixed POSIX uid paired with every mapped user.
	StorageUID int

	// MapUsers enables identity mapping at session-spawn time.
	MapUsers bool

	// TokenEnv and OneproviderEnv name the environment variables written
	// into the spawner.
	TokenEnv       string
	OneproviderEnv string

	// OnezoneEnv names the environment variable carrying the onezone URL.
	OnezoneEnv string

	// ProviderCA is an optional CA cert to use when sending requests to the
	// Onedata services.
	ProviderCA string

	// Logger is an optional logger.
	Logger hclog.Logger
}

// NewConfig composes a new Onedata config, defaulting to the EGI DataHub
// deployment.
//
// Supported options: WithOnezoneURL, WithOneproviderHost, WithTokenName,
// WithOnepanelURL, WithUserMapping, WithStorageUID, WithEnvNames,
// WithProviderCA, WithLogger
func NewConfig(opt ...Option) (*Config, error) {
	const op = "onedata.NewConfig"
	opts := getConfigOpts(opt...)
	c := &Config{
		OnezoneURL:      strings.TrimSuffix(opts.withOnezoneURL, "/"),
		OneproviderHost: opts.withOneproviderHost,
		TokenName:       opts.withTokenName,
		OnepanelURL:     strings.TrimSuffix(opts.withOnepanelURL, "/"),
		OnepanelToken:   opts.withOnepanelToken,
		StorageID:       opts.withStorageID,
		StorageUID:      opts.withStorageUID,
		MapUsers:        opts.withMapUsers,
		TokenEnv:        opts.withTokenEnv,
		OneproviderEnv:  opts.withOneproviderEnv,
		OnezoneEnv:      opts.withOnezoneEnv,
		ProviderCA:      opts.withProviderCA,
		Logger:          opts.withLogger,
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: invalid config: %w", op, err)
	}
	return c, nil
}

// Validate the config. All problems found are reported, not just the first.
func (c *Config) Validate() error {
	const op = "onedata.(Config).Validate"
	if c == nil {
		return fmt.Errorf("%s: config is nil: %w", op, ErrNilParameter)
	}
	var result *multierror.Error
	if c.OnezoneURL == "" {
		result = multierror.Append(result, fmt.Errorf("%s: onezone URL is empty: %w", op, ErrInvalidParameter))
	} else if u, err := url.Parse(c.OnezoneURL); err != nil || u.Scheme == "" || u.Host == "" {
		result = multierror.Append(result, fmt.Errorf("%s: onezone URL %q is invalid: %w", op, c.OnezoneURL, ErrInvalidParameter))
	}
	if c.TokenName == "" {
		result = multierror.Append(result, fmt.Errorf("%s: token name is empty: %w", op, ErrInvalidParameter))
	}
	if c.TokenEnv == "" || c.OneproviderEnv == "" {
		result = multierror.Append(result, fmt.Errorf("%s: environment variable names are empty: %w", op, ErrInvalidParameter))
	}
	if c.MapUsers {
		if c.OnepanelToken == "" {
			result = multierror.Append(result, fmt.Errorf("%s: user mapping is enabled without an onepanel token: %w", op, ErrInvalidParameter))
		}
		if c.StorageID == "" {
			result = multierror.Append(result, fmt.Errorf("%s: user mapping is enabled without a storage id: %w", op, ErrInvalidParameter))
		}
		if c.OnepanelURL == "" && c.OneproviderHost == "" {
			result = multierror.Append(result, fmt.Errorf("%s: user mapping needs an onepanel URL or an oneprovider host: %w", op, ErrInvalidParameter))
		}
		if c.StorageUID <= 0 {
			result = multierror.Append(result, fmt.Errorf("%s: storage uid is not greater than zero: %w", op, ErrInvalidParameter))
		}
	}
	return result.ErrorOrNil()
}

// HTTPClient is a helper function that creates a new http client for the
// Onedata services configured.
func (c *Config) HTTPClient() (*http.Client, error) {
	const op = "onedata.(Config).HTTPClient"
	client, err := httpclient.New(c.ProviderCA)
	if err != nil {
		if errors.Is(err, httpclient.ErrInvalidCertificatePem) {
			return nil, fmt.Errorf("%s: could not parse CA PEM value: %w", op, ErrInvalidCACert)
		}
		return nil, fmt.Errorf("%s: could not get an http client: %w", op, err)
	}
	return client, nil
}

// namedTokenURL is the lookup endpoint for the named token with the
// configured label.
func (c *Config) namedTokenURL() string {
	return c.OnezoneURL + "/api/v3/onezone/user/tokens/named/name/" + url.PathEscape(c.TokenName)
}

// namedTokensURL is the creation endpoint for named tokens.
func (c *Config) namedTokensURL() string {
	return c.OnezoneURL + "/api/v3/onezone/user/tokens/named"
}

// currentUserURL resolves the authenticated onezone user.
func (c *Config) currentUserURL() string {
	return c.OnezoneURL + "/api/v3/onezone/user"
}

// onepanelBase is the configured onepanel URL, or one derived from the
// oneprovider host with the fixed onepanel port.
func (c *Config) onepanelBase() string {
	if c.OnepanelURL != "" {
		return c.OnepanelURL
	}
	return "https://" + c.OneproviderHost + ":" + onepanelPort
}

// mappingURL is the LUMA local feed endpoint for user-to-credentials
// mappings; with a user id it addresses one mapping for lookup.
func (c *Config) mappingURL(onedataUserID string) string {
	u := c.onepanelBase() + "/api/v3/onepanel/provider/storages/" + url.PathEscape(c.StorageID) +
		"/luma/local_feed/storage_access/all/onedata_user_to_credentials"
	if onedataUserID != "" {
		u += "/" + url.PathEscape(onedataUserID)
	}
	return u
}

func (c *Config) logger() hclog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return hclog.NewNullLogger()
}
