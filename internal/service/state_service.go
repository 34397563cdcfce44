package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/signet-auth/signet/internal/config"
	"github.com/signet-auth/signet/internal/model"
	"github.com/signet-auth/signet/internal/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// StatePayload correlates the authorization leg with the provider callback.
// It travels through the provider redirect as a signed token, built once at
// authorization start and decoded exactly once at callback time.
type StatePayload struct {
	ClientID           string
	Type               string
	ACR                string
	CodeChallenge      string
	CodeChallengeState string
	ClientState        string
}

type StateServiceConfig struct {
	Issuer string

	// TTL in seconds for both the persisted state mapping and the encoded
	// payload.
	Expiry int
}

type StateService struct {
	config   StateServiceConfig
	database *gorm.DB
	keys     *KeyService
}

func NewStateService(config StateServiceConfig, keys *KeyService, database *gorm.DB) *StateService {
	return &StateService{
		config:   config,
		database: database,
		keys:     keys,
	}
}

func (ss *StateService) Init() error {
	if ss.config.Expiry <= 0 {
		ss.config.Expiry = 600
	}
	return nil
}

// MapCodeChallenge validates the PKCE challenge pair, generates a fresh
// unguessable state and persists the mapping for verification at callback
// time. Single attempt, fail closed.
func (ss *StateService) MapCodeChallenge(codeChallenge string, codeChallengeMethod string, clientID string, clientState string) (string, error) {
	if codeChallengeMethod != config.CodeChallengeMethod {
		return "", ErrCodeChallengeMethodMismatch
	}

	normalized, err := utils.NormalizeCodeChallenge(codeChallenge)
	if err != nil {
		return "", ErrMalformedCodeChallenge
	}

	if clientState != "" && len(clientState) < config.ClientStateMinLength {
		return "", ErrClientStateTooShort
	}

	state, err := utils.GenerateRandomHex(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate state: %w", err)
	}

	now := time.Now().Unix()

	row := model.CodeChallengeStateMap{
		State:         state,
		CodeChallenge: normalized,
		ClientID:      clientID,
		ClientState:   clientState,
		CreatedAt:     now,
		ExpiresAt:     now + int64(ss.config.Expiry),
	}

	if err := ss.database.Create(&row).Error; err != nil {
		log.Error().Err(err).Str("client_id", clientID).Msg("Failed to persist code challenge state map")
		return "", ErrStateMapping
	}

	return state, nil
}

// ConsumeState fetches and deletes the mapping for a state in one
// transaction, so a replayed callback cannot redeem it twice.
func (ss *StateService) ConsumeState(state string) (model.CodeChallengeStateMap, error) {
	var row model.CodeChallengeStateMap

	err := ss.database.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("state = ?", state).First(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidStatePayload
			}
			return err
		}

		result := tx.Where("state = ?", state).Delete(&model.CodeChallengeStateMap{})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected != 1 {
			return ErrInvalidStatePayload
		}

		return nil
	})

	if err != nil {
		return model.CodeChallengeStateMap{}, err
	}

	if time.Now().Unix() > row.ExpiresAt {
		return model.CodeChallengeStateMap{}, ErrInvalidStatePayload
	}

	return row, nil
}

// EncodeStatePayload signs the payload so any mutation in transit is
// detectable at decode time.
func (ss *StateService) EncodeStatePayload(payload StatePayload) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss":                  ss.config.Issuer,
		"client_id":            payload.ClientID,
		"type":                 payload.Type,
		"acr":                  payload.ACR,
		"code_challenge":       payload.CodeChallenge,
		"code_challenge_state": payload.CodeChallengeState,
		"client_state":         payload.ClientState,
		"iat":                  now.Unix(),
		"exp":                  now.Add(time.Duration(ss.config.Expiry) * time.Second).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	encoded, err := token.SignedString(ss.keys.PrivateKey())
	if err != nil {
		return "", fmt.Errorf("failed to sign state payload: %w", err)
	}

	return encoded, nil
}

// DecodeStatePayload verifies signature and expiry and requires every field
// to be present, or rejects the payload outright.
func (ss *StateService) DecodeStatePayload(encoded string) (StatePayload, error) {
	token, err := jwt.Parse(encoded, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return ss.keys.PublicKey(), nil
	}, jwt.WithIssuer(ss.config.Issuer), jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return StatePayload{}, ErrInvalidStatePayload
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return StatePayload{}, ErrInvalidStatePayload
	}

	payload := StatePayload{
		ClientID:           getStringClaim(claims, "client_id"),
		Type:               getStringClaim(claims, "type"),
		ACR:                getStringClaim(claims, "acr"),
		CodeChallenge:      getStringClaim(claims, "code_challenge"),
		CodeChallengeState: getStringClaim(claims, "code_challenge_state"),
		ClientState:        getStringClaim(claims, "client_state"),
	}

	if payload.ClientID == "" || payload.Type == "" || payload.ACR == "" || payload.CodeChallenge == "" || payload.CodeChallengeState == "" {
		return StatePayload{}, ErrInvalidStatePayload
	}

	return payload, nil
}

func getStringClaim(claims jwt.MapClaims, key string) string {
	if val, ok := claims[key].(string); ok {
		return val
	}
	return ""
}
