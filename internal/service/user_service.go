package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/signet-auth/signet/internal/config"
	"github.com/signet-auth/signet/internal/model"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type UserServiceConfig struct {
	Providers map[string]config.ProviderConfig

	// TTL in seconds for issued login codes.
	LoginCodeExpiry int
}

// UserService sits at the identity provider trust boundary: it validates
// provider-asserted attributes and turns them into durable user accounts and
// single-use login codes.
type UserService struct {
	config   UserServiceConfig
	database *gorm.DB
	audit    *AuditLogService
}

func NewUserService(config UserServiceConfig, database *gorm.DB, audit *AuditLogService) *UserService {
	return &UserService{
		config:   config,
		database: database,
		audit:    audit,
	}
}

func (us *UserService) Init() error {
	if us.config.LoginCodeExpiry <= 0 {
		us.config.LoginCodeExpiry = 300
	}
	return nil
}

// ValidateAttributes verifies the provider's signed assertion and checks the
// asserted attributes structurally. Attributes are never taken on faith; an
// unsigned, garbled or expired assertion is rejected.
func (us *UserService) ValidateAttributes(assertion string, providerType string) (config.UserAttributes, error) {
	provider, ok := us.config.Providers[providerType]
	if !ok {
		return config.UserAttributes{}, ErrInvalidProvider
	}

	token, err := jwt.Parse(assertion, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(provider.AssertionSecret), nil
	}, jwt.WithExpirationRequired())

	if err != nil || !token.Valid {
		return config.UserAttributes{}, ErrInvalidAttributes
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return config.UserAttributes{}, ErrInvalidAttributes
	}

	attributes := config.UserAttributes{
		SubjectID: getStringClaim(claims, "sub"),
		Email:     getStringClaim(claims, "email"),
		Name:      getStringClaim(claims, "name"),
		ACR:       getStringClaim(claims, "acr"),
		Provider:  providerType,
	}

	if attributes.SubjectID == "" {
		return config.UserAttributes{}, ErrInvalidAttributes
	}

	if attributes.ACR == "" {
		attributes.ACR = config.ACRMin
	}

	if !config.ValidACR(attributes.ACR) {
		return config.UserAttributes{}, ErrInvalidAttributes
	}

	return attributes, nil
}

// CreateUser resolves or creates the account for validated attributes and
// binds a fresh single-use login code to the code challenge carried by the
// state payload. Every call is a new login event.
func (us *UserService) CreateUser(attributes config.UserAttributes, payload StatePayload, clientIP string) (model.UserCodeMap, error) {
	now := time.Now().Unix()

	var account model.UserAccount
	err := us.database.Where("subject_id = ?", attributes.SubjectID).First(&account).Error

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		account = model.UserAccount{
			UUID:         uuid.New().String(),
			SubjectID:    attributes.SubjectID,
			Provider:     attributes.Provider,
			Email:        attributes.Email,
			Name:         attributes.Name,
			LastSignInIP: clientIP,
			LastSignInAt: now,
			CreatedAt:    now,
		}
		if err := us.database.Create(&account).Error; err != nil {
			log.Error().Err(err).Msg("Failed to create user account")
			return model.UserCodeMap{}, fmt.Errorf("failed to create user account: %w", err)
		}
		log.Info().Str("user_uuid", account.UUID).Str("provider", attributes.Provider).Msg("Created user account")
	case err != nil:
		return model.UserCodeMap{}, fmt.Errorf("failed to look up user account: %w", err)
	default:
		updates := map[string]any{
			"email":           attributes.Email,
			"name":            attributes.Name,
			"last_sign_in_ip": clientIP,
			"last_sign_in_at": now,
		}
		if err := us.database.Model(&account).Updates(updates).Error; err != nil {
			return model.UserCodeMap{}, fmt.Errorf("failed to update user account: %w", err)
		}
	}

	codeMap := model.UserCodeMap{
		LoginCode:     uuid.New().String(),
		ClientID:      payload.ClientID,
		ClientState:   payload.ClientState,
		UserUUID:      account.UUID,
		Type:          payload.Type,
		ACR:           attributes.ACR,
		CodeChallenge: payload.CodeChallenge,
		CreatedAt:     now,
		ExpiresAt:     now + int64(us.config.LoginCodeExpiry),
	}

	if err := us.database.Create(&codeMap).Error; err != nil {
		log.Error().Err(err).Msg("Failed to create user code map")
		return model.UserCodeMap{}, fmt.Errorf("failed to create user code map: %w", err)
	}

	us.audit.Log(AuditEvent{
		Event:     "login",
		ClientID:  payload.ClientID,
		UserUUID:  account.UUID,
		SubjectID: attributes.SubjectID,
		ClientIP:  clientIP,
		Success:   true,
		Message:   "User authenticated by identity provider",
	})

	return codeMap, nil
}

func (us *UserService) GetUser(userUUID string) (model.UserAccount, error) {
	var account model.UserAccount
	err := us.database.Where("uuid = ?", userUUID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.UserAccount{}, ErrInvalidToken
		}
		return model.UserAccount{}, err
	}
	return account, nil
}
