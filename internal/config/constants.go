package config

// Protocol constants. The well-known discovery document is derived from these
// and must match what the services actually enforce.

const (
	CodeChallengeMethod        = "S256"
	GrantTypeAuthorizationCode = "authorization_code"
	ResponseTypeCode           = "code"
	SubjectType                = "public"
	TokenSigningAlg            = "RS256"
	ClientStateMinLength       = 22
)

// Client authentication types

const (
	AuthTypeCookie = "cookie"
	AuthTypeAPI    = "api"
	AuthTypeMock   = "mock"
)

var AuthenticationTypes = []string{AuthTypeCookie, AuthTypeAPI, AuthTypeMock}

// Requested assurance levels

const (
	ACRMin      = "min"
	ACRBasic    = "basic"
	ACRVerified = "verified"
)

var ACRValues = []string{ACRMin, ACRBasic, ACRVerified}

// Access token versions

const (
	AccessTokenVersionV1 = "v1"

	CurrentAccessTokenVersion = AccessTokenVersionV1
)

var AccessTokenVersions = []string{AccessTokenVersionV1}

func ValidAuthenticationType(authType string) bool {
	for _, t := range AuthenticationTypes {
		if t == authType {
			return true
		}
	}
	return false
}

func ValidACR(acr string) bool {
	for _, a := range ACRValues {
		if a == acr {
			return true
		}
	}
	return false
}

func ValidAccessTokenVersion(version string) bool {
	for _, v := range AccessTokenVersions {
		if v == version {
			return true
		}
	}
	return false
}
