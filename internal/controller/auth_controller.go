package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/signet-auth/signet/internal/config"
	"github.com/signet-auth/signet/internal/service"
	"github.com/signet-auth/signet/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type TokenResponse struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`
	AntiCSRFToken string `json:"anti_csrf_token,omitempty"`
	TokenType     string `json:"token_type"`
	ExpiresIn     int    `json:"expires_in"`
}

type AuthControllerConfig struct {
	AppURL       string
	CookieDomain string
	SecureCookie bool
	Providers    map[string]config.ProviderConfig
}

type AuthController struct {
	config  AuthControllerConfig
	router  *gin.RouterGroup
	state   *service.StateService
	users   *service.UserService
	tokens  *service.TokenService
	clients *service.ClientService
}

func NewAuthController(config AuthControllerConfig, router *gin.RouterGroup, state *service.StateService, users *service.UserService, tokens *service.TokenService, clients *service.ClientService) *AuthController {
	return &AuthController{
		config:  config,
		router:  router,
		state:   state,
		users:   users,
		tokens:  tokens,
		clients: clients,
	}
}

func (controller *AuthController) SetupRoutes() {
	authGroup := controller.router.Group("/auth")
	authGroup.GET("/authorize", controller.authorizeHandler)
	authGroup.GET("/callback", controller.callbackHandler)
	authGroup.POST("/token", controller.tokenHandler)
	authGroup.POST("/refresh", controller.refreshHandler)
	authGroup.GET("/introspect", controller.introspectHandler)
	authGroup.POST("/revoke", controller.revokeHandler)
	authGroup.POST("/revoke_all", controller.revokeAllHandler)
}

// authorizeHandler starts an authorization flow: it validates the PKCE
// request, persists the code challenge mapping and redirects to the identity
// provider with a signed state payload.
func (controller *AuthController) authorizeHandler(c *gin.Context) {
	clientID := c.Query("client_id")
	codeChallenge := c.Query("code_challenge")
	codeChallengeMethod := c.Query("code_challenge_method")
	providerType := c.Query("type")
	acr := c.Query("acr")
	clientState := c.Query("client_state")

	if clientID == "" || codeChallenge == "" || codeChallengeMethod == "" || providerType == "" {
		controller.oauthError(c, http.StatusBadRequest, "invalid_request", "Missing required parameters")
		return
	}

	if _, err := controller.clients.GetClient(clientID); err != nil {
		controller.oauthError(c, http.StatusBadRequest, "invalid_client", "Client is not valid")
		return
	}

	provider, ok := controller.config.Providers[providerType]
	if !ok {
		controller.oauthError(c, http.StatusBadRequest, "invalid_request", "Type is not valid")
		return
	}

	if acr == "" {
		acr = config.ACRMin
	}

	if !config.ValidACR(acr) {
		controller.handleServiceError(c, service.ErrInvalidACR)
		return
	}

	state, err := controller.state.MapCodeChallenge(codeChallenge, codeChallengeMethod, clientID, clientState)
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	// MapCodeChallenge already vetted the challenge, so this cannot fail here.
	normalized, err := utils.NormalizeCodeChallenge(codeChallenge)
	if err != nil {
		controller.handleServiceError(c, service.ErrMalformedCodeChallenge)
		return
	}

	encoded, err := controller.state.EncodeStatePayload(service.StatePayload{
		ClientID:           clientID,
		Type:               providerType,
		ACR:                acr,
		CodeChallenge:      normalized,
		CodeChallengeState: state,
		ClientState:        clientState,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode state payload")
		controller.oauthError(c, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	redirectURL, err := url.Parse(provider.AuthorizeURL)
	if err != nil {
		log.Error().Err(err).Str("type", providerType).Msg("Invalid provider authorize URL")
		controller.oauthError(c, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	query := redirectURL.Query()
	query.Set("state", encoded)
	query.Set("acr", acr)
	redirectURL.RawQuery = query.Encode()

	c.Redirect(http.StatusFound, redirectURL.String())
}

// callbackHandler consumes the provider redirect: it verifies the state
// payload, burns the state mapping, validates the asserted attributes and
// hands the client a single-use login code on its redirect URI.
func (controller *AuthController) callbackHandler(c *gin.Context) {
	encodedState := c.Query("state")
	assertion := c.Query("assertion")

	if encodedState == "" || assertion == "" {
		controller.oauthError(c, http.StatusBadRequest, "invalid_request", "Missing required parameters")
		return
	}

	payload, err := controller.state.DecodeStatePayload(encodedState)
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	mapping, err := controller.state.ConsumeState(payload.CodeChallengeState)
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	// The mapping and the payload were created together; any divergence means
	// one of them was swapped.
	if mapping.ClientID != payload.ClientID || mapping.CodeChallenge != payload.CodeChallenge {
		controller.oauthError(c, http.StatusBadRequest, "invalid_request", "State payload is not valid")
		return
	}

	attributes, err := controller.users.ValidateAttributes(assertion, payload.Type)
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	codeMap, err := controller.users.CreateUser(attributes, payload, c.ClientIP())
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	client, err := controller.clients.GetClient(payload.ClientID)
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	redirectURL, err := url.Parse(client.RedirectURI)
	if err != nil {
		log.Error().Err(err).Str("client_id", payload.ClientID).Msg("Invalid client redirect URI")
		controller.oauthError(c, http.StatusInternalServerError, "server_error", "Internal server error")
		return
	}

	query := redirectURL.Query()
	query.Set("code", codeMap.LoginCode)
	if payload.ClientState != "" {
		query.Set("state", payload.ClientState)
	}
	redirectURL.RawQuery = query.Encode()

	c.Redirect(http.StatusFound, redirectURL.String())
}

// tokenHandler exchanges a login code plus PKCE verifier for a token pair.
func (controller *AuthController) tokenHandler(c *gin.Context) {
	grantType := c.PostForm("grant_type")

	if grantType != config.GrantTypeAuthorizationCode {
		controller.oauthError(c, http.StatusBadRequest, "unsupported_grant_type", "Only authorization_code grant type is supported")
		return
	}

	code := c.PostForm("code")
	codeVerifier := c.PostForm("code_verifier")

	if code == "" || codeVerifier == "" {
		controller.oauthError(c, http.StatusBadRequest, "invalid_request", "Missing required parameters")
		return
	}

	pair, err := controller.tokens.ExchangeCode(code, codeVerifier, c.ClientIP())
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	controller.respondWithTokens(c, pair)
}

// refreshHandler rotates a refresh token. Cookie clients must also present
// their anti-CSRF token.
func (controller *AuthController) refreshHandler(c *gin.Context) {
	refreshToken := c.PostForm("refresh_token")
	antiCSRFToken := c.PostForm("anti_csrf_token")

	if antiCSRFToken == "" {
		antiCSRFToken = c.GetHeader("X-CSRF-Token")
	}

	if refreshToken == "" {
		controller.oauthError(c, http.StatusBadRequest, "invalid_request", "Missing required parameters")
		return
	}

	pair, err := controller.tokens.Refresh(refreshToken, antiCSRFToken, c.ClientIP())
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	controller.respondWithTokens(c, pair)
}

// introspectHandler returns the identity behind a valid access token.
func (controller *AuthController) introspectHandler(c *gin.Context) {
	userContext, err := utils.GetContext(c)
	if err != nil || !userContext.IsLoggedIn {
		controller.oauthError(c, http.StatusUnauthorized, "invalid_token", "Token is not valid")
		return
	}

	account, err := controller.users.GetUser(userContext.UserUUID)
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sub":            account.UUID,
		"subject_id":     account.SubjectID,
		"email":          account.Email,
		"name":           account.Name,
		"provider":       account.Provider,
		"client_id":      userContext.ClientID,
		"session_handle": userContext.SessionHandle,
	})
}

func (controller *AuthController) revokeHandler(c *gin.Context) {
	refreshToken := c.PostForm("refresh_token")

	if refreshToken == "" {
		controller.oauthError(c, http.StatusBadRequest, "invalid_request", "Missing required parameters")
		return
	}

	if err := controller.tokens.RevokeSession(refreshToken, c.ClientIP()); err != nil {
		controller.handleServiceError(c, err)
		return
	}

	controller.clearCookies(c)

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "Session revoked",
	})
}

func (controller *AuthController) revokeAllHandler(c *gin.Context) {
	userContext, err := utils.GetContext(c)
	if err != nil || !userContext.IsLoggedIn {
		controller.oauthError(c, http.StatusUnauthorized, "invalid_token", "Token is not valid")
		return
	}

	if err := controller.tokens.RevokeAllSessions(userContext.UserUUID, c.ClientIP()); err != nil {
		controller.handleServiceError(c, err)
		return
	}

	controller.clearCookies(c)

	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"message": "All sessions revoked",
	})
}

// Helper functions

func (controller *AuthController) respondWithTokens(c *gin.Context, pair service.TokenPair) {
	client, err := controller.clients.GetClient(pair.ClientID)
	if err != nil {
		controller.handleServiceError(c, err)
		return
	}

	if client.Authentication == config.AuthTypeCookie {
		c.SetCookie(config.AccessTokenCookieName, pair.AccessToken, pair.ExpiresIn, "/", controller.config.CookieDomain, controller.config.SecureCookie, true)
		c.SetCookie(config.AntiCSRFCookieName, pair.AntiCSRFToken, client.RefreshTokenDuration, "/", controller.config.CookieDomain, controller.config.SecureCookie, true)

		info, err := json.Marshal(gin.H{
			"access_token_expiration": time.Now().Add(time.Duration(pair.ExpiresIn) * time.Second).Unix(),
			"token_type":              pair.TokenType,
		})
		if err == nil {
			// Readable by the frontend, so deliberately not HttpOnly.
			c.SetCookie(config.InfoCookieName, string(info), pair.ExpiresIn, "/", controller.config.CookieDomain, controller.config.SecureCookie, false)
		}
	}

	c.JSON(http.StatusOK, TokenResponse{
		AccessToken:   pair.AccessToken,
		RefreshToken:  pair.RefreshToken,
		AntiCSRFToken: pair.AntiCSRFToken,
		TokenType:     pair.TokenType,
		ExpiresIn:     pair.ExpiresIn,
	})
}

func (controller *AuthController) clearCookies(c *gin.Context) {
	c.SetCookie(config.AccessTokenCookieName, "", -1, "/", controller.config.CookieDomain, controller.config.SecureCookie, true)
	c.SetCookie(config.AntiCSRFCookieName, "", -1, "/", controller.config.CookieDomain, controller.config.SecureCookie, true)
	c.SetCookie(config.InfoCookieName, "", -1, "/", controller.config.CookieDomain, controller.config.SecureCookie, false)
}

// handleServiceError maps service error kinds onto stable OAuth error codes.
// The cryptographic mismatch kinds all collapse into one generic invalid_grant
// response so callers cannot tell which check failed.
func (controller *AuthController) handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCodeChallengeMethodMismatch),
		errors.Is(err, service.ErrMalformedCodeChallenge),
		errors.Is(err, service.ErrClientStateTooShort),
		errors.Is(err, service.ErrInvalidACR),
		errors.Is(err, service.ErrInvalidProvider),
		errors.Is(err, service.ErrInvalidStatePayload):
		controller.oauthError(c, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, service.ErrInvalidClient):
		controller.oauthError(c, http.StatusBadRequest, "invalid_client", "Client is not valid")
	case errors.Is(err, service.ErrInvalidAttributes):
		controller.oauthError(c, http.StatusBadRequest, "access_denied", "User attributes are not valid")
	case errors.Is(err, service.ErrStateMapping):
		controller.oauthError(c, http.StatusBadRequest, "invalid_request", "Code challenge, state or client id is not valid")
	case errors.Is(err, service.ErrInvalidGrant),
		errors.Is(err, service.ErrGrantExpired),
		errors.Is(err, service.ErrRefreshReplay):
		controller.oauthError(c, http.StatusBadRequest, "invalid_grant", "Grant is not valid")
	case errors.Is(err, service.ErrTokenExpired),
		errors.Is(err, service.ErrInvalidToken):
		controller.oauthError(c, http.StatusUnauthorized, "invalid_token", "Token is not valid")
	default:
		log.Error().Err(err).Msg("Unexpected service error")
		controller.oauthError(c, http.StatusInternalServerError, "server_error", "Internal server error")
	}
}

func (controller *AuthController) oauthError(c *gin.Context, status int, errorCode string, errorDescription string) {
	c.JSON(status, gin.H{
		"error":             errorCode,
		"error_description": errorDescription,
	})
}
