package delta

import "errors"

var (
	// ErrUnknownScheme is returned for a scheme tag this package does
	// not implement.
	ErrUnknownScheme = errors.New("unknown delta scheme")
	// ErrMalformed is returned when a residual's header is truncated or
	// its magic does not match.
	ErrMalformed = errors.New("malformed residual")
	// ErrBaseMismatch is returned when the base supplied to Patch does
	// not match the base the residual was diffed against.
	ErrBaseMismatch = errors.New("base does not match residual")
)
