package controller_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/signet-auth/signet/internal/config"
	"github.com/signet-auth/signet/internal/controller"
	"github.com/signet-auth/signet/internal/middleware"
	"github.com/signet-auth/signet/internal/service"
	"github.com/signet-auth/signet/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-querystring/query"
	"gotest.tools/v3/assert"
)

const (
	testAppURL    = "https://signet.example.com"
	testVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	testSecret    = "super-secret-assertion-key-for-tests"
	testChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
)

var authTestClients = map[string]config.ClientConfig{
	"web": {
		Name:           "Web",
		Authentication: config.AuthTypeCookie,
		RedirectURI:    "https://app.example.com/auth/callback",
	},
	"mobile": {
		Name:           "Mobile",
		Authentication: config.AuthTypeAPI,
		RedirectURI:    "example://auth/callback",
	},
}

var authTestProviders = map[string]config.ProviderConfig{
	"idme": {
		Name:            "ID.me",
		AuthorizeURL:    "https://provider.example.com/authorize",
		AssertionSecret: testSecret,
	},
}

type authorizeRequest struct {
	ClientID            string `url:"client_id"`
	CodeChallenge       string `url:"code_challenge"`
	CodeChallengeMethod string `url:"code_challenge_method"`
	Type                string `url:"type"`
	ACR                 string `url:"acr,omitempty"`
	ClientState         string `url:"client_state,omitempty"`
}

type tokenResponse struct {
	AccessToken   string `json:"access_token"`
	RefreshToken  string `json:"refresh_token"`
	AntiCSRFToken string `json:"anti_csrf_token"`
	TokenType     string `json:"token_type"`
	ExpiresIn     int    `json:"expires_in"`
}

func getRouter(t *testing.T) *gin.Engine {
	t.Helper()

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: filepath.Join(t.TempDir(), "signet_test.db"),
	})
	assert.NilError(t, databaseService.Init())
	database := databaseService.GetDatabase()

	keyService := service.NewKeyService(service.KeyServiceConfig{})
	assert.NilError(t, keyService.Init())

	auditService := service.NewAuditLogService(&service.AuditLogServiceConfig{})
	assert.NilError(t, auditService.Init())

	clientService := service.NewClientService(service.ClientServiceConfig{
		Clients:            authTestClients,
		AccessTokenExpiry:  300,
		RefreshTokenExpiry: 3600,
	})
	assert.NilError(t, clientService.Init())

	stateService := service.NewStateService(service.StateServiceConfig{
		Issuer: testAppURL,
		Expiry: 600,
	}, keyService, database)
	assert.NilError(t, stateService.Init())

	userService := service.NewUserService(service.UserServiceConfig{
		Providers:       authTestProviders,
		LoginCodeExpiry: 300,
	}, database, auditService)
	assert.NilError(t, userService.Init())

	tokenService := service.NewTokenService(service.TokenServiceConfig{
		Issuer: testAppURL,
	}, clientService, keyService, auditService, database)
	assert.NilError(t, tokenService.Init())

	gin.SetMode(gin.TestMode)
	router := gin.New()

	contextMiddleware := middleware.NewContextMiddleware(tokenService)
	router.Use(contextMiddleware.Middleware())

	group := router.Group("/api")

	authController := controller.NewAuthController(controller.AuthControllerConfig{
		AppURL:       testAppURL,
		CookieDomain: "signet.example.com",
		SecureCookie: false,
		Providers:    authTestProviders,
	}, group, stateService, userService, tokenService, clientService)
	authController.SetupRoutes()

	return router
}

func signTestAssertion(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()

	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Minute).Unix()
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	assert.NilError(t, err)

	return assertion
}

// authorize runs the authorize leg and returns the encoded state payload from
// the provider redirect.
func authorize(t *testing.T, router *gin.Engine, request authorizeRequest) string {
	t.Helper()

	params, err := query.Values(request)
	assert.NilError(t, err)

	recorder := httptest.NewRecorder()
	req, err := http.NewRequest("GET", "/api/auth/authorize?"+params.Encode(), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusFound, recorder.Code)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, "provider.example.com", location.Host)

	state := location.Query().Get("state")
	assert.Assert(t, state != "")

	return state
}

// callback runs the provider callback leg and returns the login code from the
// client redirect.
func callback(t *testing.T, router *gin.Engine, state string, assertion string) string {
	t.Helper()

	recorder := httptest.NewRecorder()
	req, err := http.NewRequest("GET", fmt.Sprintf("/api/auth/callback?state=%s&assertion=%s", url.QueryEscape(state), url.QueryEscape(assertion)), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusFound, recorder.Code)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)

	code := location.Query().Get("code")
	assert.Assert(t, code != "")

	return code
}

func exchange(t *testing.T, router *gin.Engine, code string) (*httptest.ResponseRecorder, tokenResponse) {
	t.Helper()

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("code_verifier", testVerifier)

	recorder := httptest.NewRecorder()
	req, err := http.NewRequest("POST", "/api/auth/token", strings.NewReader(form.Encode()))
	assert.NilError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	router.ServeHTTP(recorder, req)

	var tokens tokenResponse
	if recorder.Code == http.StatusOK {
		assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &tokens))
	}

	return recorder, tokens
}

func TestAuthorizationCodeFlow(t *testing.T) {
	router := getRouter(t)

	clientState := strings.Repeat("a", 22)

	state := authorize(t, router, authorizeRequest{
		ClientID:            "web",
		CodeChallenge:       utils.DeriveCodeChallenge(testVerifier),
		CodeChallengeMethod: "S256",
		Type:                "idme",
		ACR:                 "min",
		ClientState:         clientState,
	})

	assertion := signTestAssertion(t, testSecret, jwt.MapClaims{
		"sub":   "subject-123",
		"email": "user@example.com",
		"name":  "Some User",
	})

	// Callback redirects to the client with the code and the client state
	recorder := httptest.NewRecorder()
	req, err := http.NewRequest("GET", fmt.Sprintf("/api/auth/callback?state=%s&assertion=%s", url.QueryEscape(state), url.QueryEscape(assertion)), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusFound, recorder.Code)

	location, err := url.Parse(recorder.Header().Get("Location"))
	assert.NilError(t, err)
	assert.Equal(t, "app.example.com", location.Host)
	assert.Equal(t, clientState, location.Query().Get("state"))

	code := location.Query().Get("code")
	assert.Assert(t, code != "")

	// Exchange the code for tokens
	recorder, tokens := exchange(t, router, code)
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Assert(t, tokens.AccessToken != "")
	assert.Assert(t, tokens.RefreshToken != "")
	assert.Equal(t, "Bearer", tokens.TokenType)
	assert.Equal(t, 300, tokens.ExpiresIn)

	// Cookie client gets its cookies
	cookies := recorder.Header().Values("Set-Cookie")
	assert.Assert(t, len(cookies) >= 3)

	// The code is single use
	recorder, _ = exchange(t, router, code)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	errJson := map[string]any{}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &errJson))
	assert.Equal(t, "invalid_grant", errJson["error"])

	// The state payload is single use as well
	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("GET", fmt.Sprintf("/api/auth/callback?state=%s&assertion=%s", url.QueryEscape(state), url.QueryEscape(assertion)), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestAuthorizeValidation(t *testing.T) {
	router := getRouter(t)

	// Missing parameters
	recorder := httptest.NewRecorder()
	req, err := http.NewRequest("GET", "/api/auth/authorize?client_id=web", nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// Unknown client
	params, err := query.Values(authorizeRequest{
		ClientID:            "unknown",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: "S256",
		Type:                "idme",
	})
	assert.NilError(t, err)

	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("GET", "/api/auth/authorize?"+params.Encode(), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	errJson := map[string]any{}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &errJson))
	assert.Equal(t, "invalid_client", errJson["error"])

	// Unsupported challenge method
	params, err = query.Values(authorizeRequest{
		ClientID:            "web",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: "plain",
		Type:                "idme",
	})
	assert.NilError(t, err)

	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("GET", "/api/auth/authorize?"+params.Encode(), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// Unknown provider type
	params, err = query.Values(authorizeRequest{
		ClientID:            "web",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: "S256",
		Type:                "unknown",
	})
	assert.NilError(t, err)

	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("GET", "/api/auth/authorize?"+params.Encode(), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	// Unknown ACR value
	params, err = query.Values(authorizeRequest{
		ClientID:            "web",
		CodeChallenge:       testChallenge,
		CodeChallengeMethod: "S256",
		Type:                "idme",
		ACR:                 "platinum",
	})
	assert.NilError(t, err)

	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("GET", "/api/auth/authorize?"+params.Encode(), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	errJson = map[string]any{}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &errJson))
	assert.Equal(t, "invalid_request", errJson["error"])
	assert.Equal(t, "acr is not valid", errJson["error_description"])
}

func TestCallbackBadAssertion(t *testing.T) {
	router := getRouter(t)

	state := authorize(t, router, authorizeRequest{
		ClientID:            "web",
		CodeChallenge:       utils.DeriveCodeChallenge(testVerifier),
		CodeChallengeMethod: "S256",
		Type:                "idme",
	})

	// Assertion signed with the wrong secret
	assertion := signTestAssertion(t, "wrong-secret", jwt.MapClaims{"sub": "subject-123"})

	recorder := httptest.NewRecorder()
	req, err := http.NewRequest("GET", fmt.Sprintf("/api/auth/callback?state=%s&assertion=%s", url.QueryEscape(state), url.QueryEscape(assertion)), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	errJson := map[string]any{}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &errJson))
	assert.Equal(t, "access_denied", errJson["error"])

	// Tampered state payload
	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("GET", "/api/auth/callback?state=garbage&assertion="+url.QueryEscape(assertion), nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestTokenValidation(t *testing.T) {
	router := getRouter(t)

	// Unsupported grant type
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	recorder := httptest.NewRecorder()
	req, err := http.NewRequest("POST", "/api/auth/token", strings.NewReader(form.Encode()))
	assert.NilError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	errJson := map[string]any{}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &errJson))
	assert.Equal(t, "unsupported_grant_type", errJson["error"])

	// Unknown code
	recorder, _ = exchange(t, router, "does-not-exist")
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRefreshFlow(t *testing.T) {
	router := getRouter(t)

	state := authorize(t, router, authorizeRequest{
		ClientID:            "web",
		CodeChallenge:       utils.DeriveCodeChallenge(testVerifier),
		CodeChallengeMethod: "S256",
		Type:                "idme",
	})

	assertion := signTestAssertion(t, testSecret, jwt.MapClaims{"sub": "subject-123"})
	code := callback(t, router, state, assertion)

	recorder, first := exchange(t, router, code)
	assert.Equal(t, http.StatusOK, recorder.Code)

	// Rotate the refresh token
	form := url.Values{}
	form.Set("refresh_token", first.RefreshToken)
	form.Set("anti_csrf_token", first.AntiCSRFToken)

	recorder = httptest.NewRecorder()
	req, err := http.NewRequest("POST", "/api/auth/refresh", strings.NewReader(form.Encode()))
	assert.NilError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)

	var second tokenResponse
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &second))
	assert.Assert(t, second.RefreshToken != first.RefreshToken)

	// Replaying the old refresh token fails and revokes the chain
	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("POST", "/api/auth/refresh", strings.NewReader(form.Encode()))
	assert.NilError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	errJson := map[string]any{}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &errJson))
	assert.Equal(t, "invalid_grant", errJson["error"])

	// The rotated-in token died with the chain
	form = url.Values{}
	form.Set("refresh_token", second.RefreshToken)
	form.Set("anti_csrf_token", second.AntiCSRFToken)

	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("POST", "/api/auth/refresh", strings.NewReader(form.Encode()))
	assert.NilError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestIntrospectAndRevoke(t *testing.T) {
	router := getRouter(t)

	state := authorize(t, router, authorizeRequest{
		ClientID:            "mobile",
		CodeChallenge:       utils.DeriveCodeChallenge(testVerifier),
		CodeChallengeMethod: "S256",
		Type:                "idme",
	})

	assertion := signTestAssertion(t, testSecret, jwt.MapClaims{
		"sub":   "subject-123",
		"email": "user@example.com",
	})
	code := callback(t, router, state, assertion)

	recorder, tokens := exchange(t, router, code)
	assert.Equal(t, http.StatusOK, recorder.Code)

	// Introspect with the bearer token
	recorder = httptest.NewRecorder()
	req, err := http.NewRequest("GET", "/api/auth/introspect", nil)
	assert.NilError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)

	resJson := map[string]any{}
	assert.NilError(t, json.Unmarshal(recorder.Body.Bytes(), &resJson))
	assert.Equal(t, "subject-123", resJson["subject_id"])
	assert.Equal(t, "mobile", resJson["client_id"])

	// Introspect without a token
	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("GET", "/api/auth/introspect", nil)
	assert.NilError(t, err)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	// Revoke the session
	form := url.Values{}
	form.Set("refresh_token", tokens.RefreshToken)

	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("POST", "/api/auth/revoke", strings.NewReader(form.Encode()))
	assert.NilError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)

	// The access token is dead now
	recorder = httptest.NewRecorder()
	req, err = http.NewRequest("GET", "/api/auth/introspect", nil)
	assert.NilError(t, err)
	req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestRevokeAll(t *testing.T) {
	router := getRouter(t)

	assertion := signTestAssertion(t, testSecret, jwt.MapClaims{"sub": "subject-123"})

	var pairs []tokenResponse

	for _, clientID := range []string{"web", "mobile"} {
		state := authorize(t, router, authorizeRequest{
			ClientID:            clientID,
			CodeChallenge:       utils.DeriveCodeChallenge(testVerifier),
			CodeChallengeMethod: "S256",
			Type:                "idme",
		})

		code := callback(t, router, state, assertion)

		recorder, tokens := exchange(t, router, code)
		assert.Equal(t, http.StatusOK, recorder.Code)
		pairs = append(pairs, tokens)
	}

	// Revoke everything with the mobile token
	recorder := httptest.NewRecorder()
	req, err := http.NewRequest("POST", "/api/auth/revoke_all", nil)
	assert.NilError(t, err)
	req.Header.Set("Authorization", "Bearer "+pairs[1].AccessToken)

	router.ServeHTTP(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)

	// Both sessions are gone
	for _, pair := range pairs {
		form := url.Values{}
		form.Set("refresh_token", pair.RefreshToken)
		form.Set("anti_csrf_token", pair.AntiCSRFToken)

		recorder = httptest.NewRecorder()
		req, err = http.NewRequest("POST", "/api/auth/refresh", strings.NewReader(form.Encode()))
		assert.NilError(t, err)
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		router.ServeHTTP(recorder, req)
		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	}
}
