package types

import "errors"

var (
	// ErrInvalidCode is returned for malformed classification codes
	ErrInvalidCode = errors.New("invalid classification code")

	// ErrInvalidCountry is returned for origins / destinations that are not alpha-2 codes
	ErrInvalidCountry = errors.New("invalid country")

	// ErrProviderUnavailable is returned when every research provider is exhausted
	ErrProviderUnavailable = errors.New("research providers unavailable")

	// ErrParseFailure is returned when a research response is unparseable after repair
	ErrParseFailure = errors.New("unable to parse research response")

	// ErrTimeout is returned when the workflow deadline elapses before research completes
	ErrTimeout = errors.New("research timed out")

	// ErrPersistence wraps cache read / write failures
	ErrPersistence = errors.New("persistence failure")

	// ErrRateLimited is the provider-level signal for a rate-limit or overload response
	ErrRateLimited = errors.New("provider rate limited")
)
