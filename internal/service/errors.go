package service

import "errors"

// Service error kinds. Controllers match on these with errors.Is and map them
// to stable OAuth error codes; the cryptographic mismatch kinds are
// deliberately collapsed into one generic response at the HTTP boundary so
// callers cannot tell which check failed.
var (
	// Malformed input, rejected before any persistence.
	ErrMalformedCodeChallenge = errors.New("code challenge is not valid")
	ErrMissingField           = errors.New("required field is missing")

	// Policy violations.
	ErrCodeChallengeMethodMismatch = errors.New("code challenge method is not valid")
	ErrClientStateTooShort         = errors.New("client state is too short")
	ErrInvalidClient               = errors.New("client is not valid")
	ErrInvalidProvider             = errors.New("provider is not valid")
	ErrInvalidACR                  = errors.New("acr is not valid")

	// Persistence failures, translated so raw storage errors never leak.
	ErrStateMapping = errors.New("code challenge, state or client id is not valid")

	// State payload decode/verify failures.
	ErrInvalidStatePayload = errors.New("state payload is not valid")

	// Attribute validation failures at the identity provider trust boundary.
	ErrInvalidAttributes = errors.New("user attributes are not valid")

	// Cryptographic mismatches (PKCE proof, refresh token hash, anti-CSRF
	// token). All of them surface identically to callers.
	ErrInvalidGrant = errors.New("grant is not valid")

	// Reuse of an already-rotated refresh token. Fatal: the whole session
	// chain gets revoked before this is returned.
	ErrRefreshReplay = errors.New("refresh token reuse detected")

	// Expiry, distinct from structural invalidity.
	ErrGrantExpired = errors.New("grant is expired")
	ErrTokenExpired = errors.New("token is expired")

	// Access token validation failures.
	ErrInvalidToken = errors.New("token is not valid")
)
