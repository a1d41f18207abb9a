package onedata

import (
	"errors"
)

var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrNilParameter     = errors.New("nil parameter")
	ErrInvalidCACert    = errors.New("invalid CA certificate")

	// ErrNotFound classifies an HTTP 404 from a lookup call. It's an
	// expected control-flow signal that drives the create branch of the
	// reuse-or-create pattern, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrUpstream classifies any other non-2xx response from the Onedata
	// services. It fails authentication or session spawn closed.
	ErrUpstream = errors.New("upstream onedata error")
)
