package onedata

import (
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
	withOnezoneURL      string
	withOneproviderHost string
	withTokenName       string
	withOnepanelURL     string
	withOnepanelToken   string
	withStorageID       string
	withStorageUID      int
	withMapUsers        bool
	withTokenEnv        string
	withOneproviderEnv  string
	withOnezoneEnv      string
	withProviderCA      string
	withLogger          hclog.Logger
}

func configDefaults() configOptions {
	return configOptions{
		withOnezoneURL:      DefaultOnezoneURL,
		withOneproviderHost: DefaultOneproviderHost,
		withTokenName:       DefaultTokenName,
		withStorageUID:      DefaultStorageUID,
		withTokenEnv:        DefaultTokenEnv,
		withOneproviderEnv:  DefaultOneproviderEnv,
		withOnezoneEnv:      DefaultOnezoneEnv,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithOnezoneURL provides the Onedata onezone URL.
func WithOnezoneURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withOnezoneURL = u
		}
	}
}

// WithOneproviderHost provides the Onedata oneprovider hostname.
func WithOneproviderHost(host string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withOneproviderHost = host
		}
	}
}

// WithTokenName provides the label of the named token reused across logins.
func WithTokenName(name string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTokenName = name
		}
	}
}

// WithOnepanelURL overrides the onepanel URL used for identity mapping.
// When unset, the URL is derived from the oneprovider host with the fixed
// onepanel port.
func WithOnepanelURL(u string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withOnepanelURL = u
		}
	}
}

// WithUserMapping enables identity mapping at session-spawn time using the
// provider administrative token and the storage the mapping feeds.
func WithUserMapping(onepanelToken, storageID string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withMapUsers = true
			o.withOnepanelToken = onepanelToken
			o.withStorageID = storageID
		}
	}
}

// WithStorageUID provides the fixed POSIX uid paired with every mapped user.
func WithStorageUID(uid int) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withStorageUID = uid
		}
	}
}

// WithEnvNames overrides the names of the environment variables written into
// the spawner for the storage access token and the oneprovider host.
func WithEnvNames(tokenEnv, oneproviderEnv string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withTokenEnv = tokenEnv
			o.withOneproviderEnv = oneproviderEnv
		}
	}
}

// WithProviderCA provides an optional CA cert PEM used when making requests
// to the Onedata services.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProviderCA = cert
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
