package hub

import (
	"github.com/EGI-Foundation/egi-notebooks-auth/onedata"
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

type authenticatorOptions struct {
	withOnedata *onedata.Config
	withLogger  hclog.Logger
}

func authenticatorDefaults() authenticatorOptions {
	return authenticatorOptions{}
}

func getAuthenticatorOpts(opt ...Option) authenticatorOptions {
	opts := authenticatorDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithOnedata enables the Onedata stages: token brokering after every
// authentication and, when the config has user mapping enabled, identity
// mapping at session-spawn time.
func WithOnedata(conf *onedata.Config) Option {
	return func(o interface{}) {
		if o, ok := o.(*authenticatorOptions); ok {
			o.withOnedata = conf
		}
	}
}

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*authenticatorOptions); ok {
			o.withLogger = l
		}
	}
}
