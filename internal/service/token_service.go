package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/signet-auth/signet/internal/config"
	"github.com/signet-auth/signet/internal/model"
	"github.com/signet-auth/signet/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// AccessToken is the decoded form of a signed access token. It is built at
// issuance, validated before signing and reconstructed from claims at
// validation time. Tokens are never mutated; a refresh supersedes the old
// token with a new one.
type AccessToken struct {
	JTI                    string
	SessionHandle          string
	ClientID               string
	UserUUID               string
	Audience               string
	RefreshTokenHash       string
	ParentRefreshTokenHash string
	AntiCSRFToken          string
	LastRegenerationTime   time.Time
	Version                string
	ExpirationTime         time.Time
	CreatedTime            time.Time
}

// Validate reports the first missing required field, in declaration order.
// A blank version is defaulted to the current one before the enum check.
func (at *AccessToken) Validate() error {
	if at.Version == "" {
		at.Version = config.CurrentAccessTokenVersion
	}

	required := []struct {
		name    string
		missing bool
	}{
		{"session handle", at.SessionHandle == ""},
		{"client id", at.ClientID == ""},
		{"user uuid", at.UserUUID == ""},
		{"audience", at.Audience == ""},
		{"refresh token hash", at.RefreshTokenHash == ""},
		{"anti csrf token", at.AntiCSRFToken == ""},
		{"last regeneration time", at.LastRegenerationTime.IsZero()},
		{"expiration time", at.ExpirationTime.IsZero()},
		{"created time", at.CreatedTime.IsZero()},
	}

	for _, field := range required {
		if field.missing {
			return fmt.Errorf("%w: %s can't be blank", ErrMissingField, field.name)
		}
	}

	if !config.ValidAccessTokenVersion(at.Version) {
		return fmt.Errorf("%w: version %s is not supported", ErrMissingField, at.Version)
	}

	return nil
}

// TokenPair is what a successful exchange or refresh returns.
type TokenPair struct {
	AccessToken   string
	RefreshToken  string
	AntiCSRFToken string
	TokenType     string
	ExpiresIn     int
	ClientID      string
	UserUUID      string
}

type TokenServiceConfig struct {
	Issuer string
}

type TokenService struct {
	config   TokenServiceConfig
	database *gorm.DB
	clients  *ClientService
	keys     *KeyService
	audit    *AuditLogService
}

func NewTokenService(config TokenServiceConfig, clients *ClientService, keys *KeyService, audit *AuditLogService, database *gorm.DB) *TokenService {
	return &TokenService{
		config:   config,
		database: database,
		clients:  clients,
		keys:     keys,
		audit:    audit,
	}
}

func (ts *TokenService) Init() error {
	return nil
}

// ExchangeCode redeems a single-use login code with its PKCE proof and issues
// the first token pair of a new session. The code is consumed before the
// proof is checked, so a failed attempt burns it; single use means single
// attempt.
func (ts *TokenService) ExchangeCode(loginCode string, codeVerifier string, clientIP string) (TokenPair, error) {
	var codeMap model.UserCodeMap

	err := ts.database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("login_code = ?", loginCode).First(&codeMap).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidGrant
			}
			return err
		}

		result := tx.Where("login_code = ?", loginCode).Delete(&model.UserCodeMap{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			// A concurrent exchange already consumed the code.
			return ErrInvalidGrant
		}

		return nil
	})

	if err != nil {
		return TokenPair{}, err
	}

	if time.Now().Unix() > codeMap.ExpiresAt {
		return TokenPair{}, ErrGrantExpired
	}

	derived := utils.DeriveCodeChallenge(codeVerifier)
	if !utils.ConstantTimeEqual(derived, codeMap.CodeChallenge) {
		ts.audit.Log(AuditEvent{
			Event:    "token_exchange",
			ClientID: codeMap.ClientID,
			UserUUID: codeMap.UserUUID,
			ClientIP: clientIP,
			Success:  false,
			Message:  "PKCE verification failed",
		})
		return TokenPair{}, ErrInvalidGrant
	}

	client, err := ts.clients.GetClient(codeMap.ClientID)
	if err != nil {
		return TokenPair{}, err
	}

	session, refreshToken, err := ts.createSession(ts.database, codeMap.UserUUID, codeMap.ClientID, client)
	if err != nil {
		return TokenPair{}, err
	}

	pair, err := ts.issueTokenPair(session, client, refreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	ts.audit.Log(AuditEvent{
		Event:    "token_exchange",
		ClientID: codeMap.ClientID,
		UserUUID: codeMap.UserUUID,
		ClientIP: clientIP,
		Success:  true,
		Message:  "Login code exchanged for tokens",
	})

	return pair, nil
}

// Refresh rotates the refresh token and issues a new token pair. Refresh
// tokens carry their session handle, so every generation of a rotation chain
// locates the same session; a presented token whose hash no longer matches
// the stored one is a rotated-out copy and revokes the whole chain. Rotation
// itself is a compare-and-swap on the stored hash so two concurrent refreshes
// off the same token cannot both win.
func (ts *TokenService) Refresh(refreshToken string, antiCSRFToken string, clientIP string) (TokenPair, error) {
	handle, ok := sessionHandleFromToken(refreshToken)
	if !ok {
		return TokenPair{}, ErrInvalidGrant
	}

	var session model.Session
	err := ts.database.Where("handle = ?", handle).First(&session).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return TokenPair{}, ErrInvalidGrant
	}
	if err != nil {
		return TokenPair{}, err
	}

	hash := utils.HashToken(refreshToken)

	if !utils.ConstantTimeEqual(hash, session.HashedRefreshToken) {
		return TokenPair{}, ts.revokeReplayed(session, clientIP)
	}

	if time.Now().Unix() > session.ExpiresAt {
		ts.database.Where("handle = ?", session.Handle).Delete(&model.Session{})
		return TokenPair{}, ErrGrantExpired
	}

	client, err := ts.clients.GetClient(session.ClientID)
	if err != nil {
		return TokenPair{}, err
	}

	if client.Authentication == config.AuthTypeCookie && !utils.ConstantTimeEqual(antiCSRFToken, session.AntiCSRFToken) {
		return TokenPair{}, ErrInvalidGrant
	}

	newRefreshToken, err := newSessionToken(session.Handle)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to generate refresh token: %w", err)
	}

	newAntiCSRFToken, err := utils.GenerateRandomHex(16)
	if err != nil {
		return TokenPair{}, fmt.Errorf("failed to generate anti-CSRF token: %w", err)
	}

	now := time.Now().Unix()

	result := ts.database.Model(&model.Session{}).
		Where("handle = ? AND hashed_refresh_token = ?", session.Handle, hash).
		Updates(map[string]any{
			"hashed_refresh_token":      utils.HashToken(newRefreshToken),
			"parent_refresh_token_hash": hash,
			"anti_csrf_token":           newAntiCSRFToken,
			"refresh_count":             gorm.Expr("refresh_count + 1"),
			"expires_at":                now + int64(client.RefreshTokenDuration),
		})

	if result.Error != nil {
		return TokenPair{}, result.Error
	}

	if result.RowsAffected != 1 {
		// Lost the swap: another request rotated this token between our read
		// and the update. The losing presentation counts as replay.
		return TokenPair{}, ts.revokeReplayed(session, clientIP)
	}

	session.HashedRefreshToken = utils.HashToken(newRefreshToken)
	session.ParentRefreshTokenHash = hash
	session.AntiCSRFToken = newAntiCSRFToken

	pair, err := ts.issueTokenPair(session, client, newRefreshToken)
	if err != nil {
		return TokenPair{}, err
	}

	ts.audit.Log(AuditEvent{
		Event:    "token_refresh",
		ClientID: session.ClientID,
		UserUUID: session.UserUUID,
		ClientIP: clientIP,
		Success:  true,
		Message:  "Refresh token rotated",
	})

	return pair, nil
}

// revokeReplayed handles the presentation of a token that maps to a live
// session but no longer matches its stored hash. However old the copy, it
// signals theft of one of the chain's generations, so the session is revoked
// outright.
func (ts *TokenService) revokeReplayed(session model.Session, clientIP string) error {
	if err := ts.database.Where("handle = ?", session.Handle).Delete(&model.Session{}).Error; err != nil {
		return err
	}

	log.Warn().Str("client_id", session.ClientID).Str("user_uuid", session.UserUUID).Msg("Refresh token replay detected, session chain revoked")

	ts.audit.Log(AuditEvent{
		Event:    "refresh_replay",
		ClientID: session.ClientID,
		UserUUID: session.UserUUID,
		ClientIP: clientIP,
		Success:  false,
		Message:  "Rotated refresh token reused, session revoked",
	})

	return ErrRefreshReplay
}

// ValidateAccessToken checks signature, expiry and that the owning session is
// still live. Failures are rejections; there is no auto-refresh here.
func (ts *TokenService) ValidateAccessToken(encoded string) (AccessToken, error) {
	token, err := jwt.Parse(encoded, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ts.keys.PublicKey(), nil
	}, jwt.WithIssuer(ts.config.Issuer), jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return AccessToken{}, ErrTokenExpired
		}
		return AccessToken{}, ErrInvalidToken
	}

	if !token.Valid {
		return AccessToken{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return AccessToken{}, ErrInvalidToken
	}

	accessToken := AccessToken{
		JTI:                    getStringClaim(claims, "jti"),
		SessionHandle:          getStringClaim(claims, "session_handle"),
		ClientID:               getStringClaim(claims, "client_id"),
		UserUUID:               getStringClaim(claims, "sub"),
		Audience:               getStringClaim(claims, "aud"),
		RefreshTokenHash:       getStringClaim(claims, "refresh_token_hash"),
		ParentRefreshTokenHash: getStringClaim(claims, "parent_refresh_token_hash"),
		AntiCSRFToken:          getStringClaim(claims, "anti_csrf_token"),
		LastRegenerationTime:   timeClaim(claims, "last_regeneration_time"),
		Version:                getStringClaim(claims, "version"),
		ExpirationTime:         timeClaim(claims, "exp"),
		CreatedTime:            timeClaim(claims, "iat"),
	}

	if err := accessToken.Validate(); err != nil {
		return AccessToken{}, ErrInvalidToken
	}

	var session model.Session
	err = ts.database.Where("handle = ?", accessToken.SessionHandle).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return AccessToken{}, ErrInvalidToken
		}
		return AccessToken{}, err
	}

	return accessToken, nil
}

// RevokeSession revokes the session owning a refresh token. The current and
// the rotated-out copy both work, so logout survives a half-finished
// rotation; any older copy is treated as replay and revokes the chain too.
func (ts *TokenService) RevokeSession(refreshToken string, clientIP string) error {
	handle, ok := sessionHandleFromToken(refreshToken)
	if !ok {
		return ErrInvalidGrant
	}

	var session model.Session
	err := ts.database.Where("handle = ?", handle).First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrInvalidGrant
		}
		return err
	}

	hash := utils.HashToken(refreshToken)

	if !utils.ConstantTimeEqual(hash, session.HashedRefreshToken) && !utils.ConstantTimeEqual(hash, session.ParentRefreshTokenHash) {
		return ts.revokeReplayed(session, clientIP)
	}

	if err := ts.database.Where("handle = ?", session.Handle).Delete(&model.Session{}).Error; err != nil {
		return err
	}

	ts.audit.Log(AuditEvent{
		Event:    "revoke",
		ClientID: session.ClientID,
		UserUUID: session.UserUUID,
		ClientIP: clientIP,
		Success:  true,
		Message:  "Session revoked",
	})

	return nil
}

// RevokeAllSessions revokes every session of a user across all clients.
func (ts *TokenService) RevokeAllSessions(userUUID string, clientIP string) error {
	if err := ts.database.Where("user_uuid = ?", userUUID).Delete(&model.Session{}).Error; err != nil {
		return err
	}

	ts.audit.Log(AuditEvent{
		Event:    "revoke_all",
		UserUUID: userUUID,
		ClientIP: clientIP,
		Success:  true,
		Message:  "All sessions revoked",
	})

	return nil
}

// CleanupExpired removes expired sessions, login codes and state mappings.
func (ts *TokenService) CleanupExpired() error {
	now := time.Now().Unix()

	if err := ts.database.Where("expires_at < ?", now).Delete(&model.Session{}).Error; err != nil {
		return err
	}
	if err := ts.database.Where("expires_at < ?", now).Delete(&model.UserCodeMap{}).Error; err != nil {
		return err
	}
	if err := ts.database.Where("expires_at < ?", now).Delete(&model.CodeChallengeStateMap{}).Error; err != nil {
		return err
	}

	return nil
}

func (ts *TokenService) createSession(tx *gorm.DB, userUUID string, clientID string, client config.ClientConfig) (model.Session, string, error) {
	handle := uuid.New().String()

	refreshToken, err := newSessionToken(handle)
	if err != nil {
		return model.Session{}, "", fmt.Errorf("failed to generate refresh token: %w", err)
	}

	antiCSRFToken, err := utils.GenerateRandomHex(16)
	if err != nil {
		return model.Session{}, "", fmt.Errorf("failed to generate anti-CSRF token: %w", err)
	}

	now := time.Now().Unix()

	session := model.Session{
		Handle:             handle,
		UserUUID:           userUUID,
		ClientID:           clientID,
		HashedRefreshToken: utils.HashToken(refreshToken),
		AntiCSRFToken:      antiCSRFToken,
		CreatedAt:          now,
		ExpiresAt:          now + int64(client.RefreshTokenDuration),
	}

	if err := tx.Create(&session).Error; err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("Failed to create session")
		return model.Session{}, "", fmt.Errorf("failed to create session: %w", err)
	}

	return session, refreshToken, nil
}

func (ts *TokenService) issueTokenPair(session model.Session, client config.ClientConfig, refreshToken string) (TokenPair, error) {
	now := time.Now()

	accessToken := AccessToken{
		JTI:                    uuid.New().String(),
		SessionHandle:          session.Handle,
		ClientID:               session.ClientID,
		UserUUID:               session.UserUUID,
		Audience:               client.Audience,
		RefreshTokenHash:       session.HashedRefreshToken,
		ParentRefreshTokenHash: session.ParentRefreshTokenHash,
		AntiCSRFToken:          session.AntiCSRFToken,
		LastRegenerationTime:   now,
		Version:                config.CurrentAccessTokenVersion,
		ExpirationTime:         now.Add(time.Duration(client.AccessTokenDuration) * time.Second),
		CreatedTime:            now,
	}

	if err := accessToken.Validate(); err != nil {
		return TokenPair{}, err
	}

	signed, err := ts.signAccessToken(accessToken)
	if err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:   signed,
		RefreshToken:  refreshToken,
		AntiCSRFToken: session.AntiCSRFToken,
		TokenType:     "Bearer",
		ExpiresIn:     client.AccessTokenDuration,
		ClientID:      session.ClientID,
		UserUUID:      session.UserUUID,
	}, nil
}

func (ts *TokenService) signAccessToken(accessToken AccessToken) (string, error) {
	claims := jwt.MapClaims{
		"jti":                    accessToken.JTI,
		"iss":                    ts.config.Issuer,
		"sub":                    accessToken.UserUUID,
		"aud":                    accessToken.Audience,
		"client_id":              accessToken.ClientID,
		"session_handle":         accessToken.SessionHandle,
		"refresh_token_hash":     accessToken.RefreshTokenHash,
		"anti_csrf_token":        accessToken.AntiCSRFToken,
		"last_regeneration_time": accessToken.LastRegenerationTime.Unix(),
		"version":                accessToken.Version,
		"iat":                    accessToken.CreatedTime.Unix(),
		"exp":                    accessToken.ExpirationTime.Unix(),
	}

	if accessToken.ParentRefreshTokenHash != "" {
		claims["parent_refresh_token_hash"] = accessToken.ParentRefreshTokenHash
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(ts.keys.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, nil
}

// newSessionToken mints an opaque token bound to a session handle. The handle
// prefix lets any generation of a rotation chain locate its session; the
// secret half is what actually authenticates.
func newSessionToken(handle string) (string, error) {
	secret, err := utils.GenerateRandomHex(32)
	if err != nil {
		return "", err
	}
	return handle + "." + secret, nil
}

func sessionHandleFromToken(token string) (string, bool) {
	handle, secret, found := strings.Cut(token, ".")
	if !found || handle == "" || secret == "" {
		return "", false
	}
	return handle, true
}

func timeClaim(claims jwt.MapClaims, key string) time.Time {
	if val, ok := claims[key].(float64); ok && val > 0 {
		return time.Unix(int64(val), 0)
	}
	return time.Time{}
}
