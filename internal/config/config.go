package config

// Version information, set at build time

var Version = "development"
var CommitHash = "development"
var BuildTimestamp = "0000-00-00T00:00:00Z"

// Prefix for environment variable configuration (e.g. SIGNET_SERVER_PORT)

const DefaultNamePrefix = "SIGNET_"

// Cookie name templates

var AccessTokenCookieName = "signet-access-token"
var AntiCSRFCookieName = "signet-anti-csrf"
var InfoCookieName = "signet-info"

// Main app config

type Config struct {
	AppURL       string
	DatabasePath string
	KeyPath      string
	Server       ServerConfig
	Auth         AuthConfig
	Clients      map[string]ClientConfig
	Providers    map[string]ProviderConfig
	Log          LogConfig
	Experimental ExperimentalConfig
}

type ServerConfig struct {
	Port           int
	Address        string
	SocketPath     string
	TrustedProxies string
}

type AuthConfig struct {
	// Fallbacks used when a client does not configure its own durations,
	// all in seconds.
	AccessTokenExpiry  int
	RefreshTokenExpiry int
	StatePayloadExpiry int
	LoginCodeExpiry    int
	SecureCookie       bool
	AuditLogFile       string
	AuditLogJson       bool
}

// ClientConfig describes a registered client. Issuance policy (token
// durations, cookie vs API delivery) is dictated by the client, not by the
// token subsystem.
type ClientConfig struct {
	Name                 string
	Authentication       string
	AccessTokenDuration  int
	RefreshTokenDuration int
	RedirectURI          string
	Audience             string
}

// ProviderConfig describes an upstream identity provider. Assertions coming
// back from the provider redirect are HS256 JWTs signed with the shared
// secret.
type ProviderConfig struct {
	Name                string
	AuthorizeURL        string
	AssertionSecret     string
	AssertionSecretFile string
}

type LogConfig struct {
	Level string
	Json  bool
}

type ExperimentalConfig struct {
	ConfigFile string
}

// User attributes asserted by an identity provider, after validation.

type UserAttributes struct {
	SubjectID string
	Email     string
	Name      string
	ACR       string
	Provider  string
}

// UserContext is the per-request identity resolved from an access token.

type UserContext struct {
	UserUUID      string
	SubjectID     string
	ClientID      string
	SessionHandle string
	IsLoggedIn    bool
}
