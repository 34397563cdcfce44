package controller

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/signet-auth/signet/internal/config"

	"github.com/gin-gonic/gin"
)

// OpenIDConfiguration is the discovery document. Every supported-value list
// comes from the same constants the services enforce, so the document cannot
// drift from actual behavior.
type OpenIDConfiguration struct {
	Issuer                         string   `json:"issuer"`
	AuthorizationEndpoint          string   `json:"authorization_endpoint"`
	TokenEndpoint                  string   `json:"token_endpoint"`
	TokenRefreshEndpoint           string   `json:"token_refresh_endpoint"`
	IntrospectionEndpoint          string   `json:"introspection_endpoint"`
	RevocationEndpoint             string   `json:"revocation_endpoint"`
	RevocationAllEndpoint          string   `json:"revocation_all_endpoint"`
	ResponseTypesSupported         []string `json:"response_types_supported"`
	GrantTypesSupported            []string `json:"grant_types_supported"`
	ACRValuesSupported             []string `json:"acr_values_supported"`
	SubjectTypesSupported          []string `json:"subject_types_supported"`
	TokenSigningAlgValuesSupported []string `json:"token_signing_alg_values_supported"`
	CodeChallengeMethodsSupported  []string `json:"code_challenge_methods_supported"`
}

type WellKnownControllerConfig struct {
	AppURL string
}

type WellKnownController struct {
	config WellKnownControllerConfig
	router *gin.RouterGroup
}

func NewWellKnownController(config WellKnownControllerConfig, router *gin.RouterGroup) *WellKnownController {
	return &WellKnownController{
		config: config,
		router: router,
	}
}

func (controller *WellKnownController) SetupRoutes() {
	controller.router.GET("/.well-known/openid-configuration", controller.openIDConfigurationHandler)
}

func (controller *WellKnownController) openIDConfigurationHandler(c *gin.Context) {
	baseURL := strings.TrimSuffix(controller.config.AppURL, "/")

	c.JSON(http.StatusOK, OpenIDConfiguration{
		Issuer:                         baseURL,
		AuthorizationEndpoint:          fmt.Sprintf("%s/api/auth/authorize", baseURL),
		TokenEndpoint:                  fmt.Sprintf("%s/api/auth/token", baseURL),
		TokenRefreshEndpoint:           fmt.Sprintf("%s/api/auth/refresh", baseURL),
		IntrospectionEndpoint:          fmt.Sprintf("%s/api/auth/introspect", baseURL),
		RevocationEndpoint:             fmt.Sprintf("%s/api/auth/revoke", baseURL),
		RevocationAllEndpoint:          fmt.Sprintf("%s/api/auth/revoke_all", baseURL),
		ResponseTypesSupported:         []string{config.ResponseTypeCode},
		GrantTypesSupported:            []string{config.GrantTypeAuthorizationCode},
		ACRValuesSupported:             config.ACRValues,
		SubjectTypesSupported:          []string{config.SubjectType},
		TokenSigningAlgValuesSupported: []string{config.TokenSigningAlg},
		CodeChallengeMethodsSupported:  []string{config.CodeChallengeMethod},
	})
}
