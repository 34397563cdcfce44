package service_test

import (
	"path/filepath"
	"testing"

	"github.com/signet-auth/signet/internal/config"
	"github.com/signet-auth/signet/internal/service"

	"gorm.io/gorm"
	"gotest.tools/v3/assert"
)

var testClients = map[string]config.ClientConfig{
	"web": {
		Name:           "Web",
		Authentication: config.AuthTypeCookie,
		RedirectURI:    "https://example.com/auth/callback",
	},
	"mobile": {
		Name:           "Mobile",
		Authentication: config.AuthTypeAPI,
		RedirectURI:    "example://auth/callback",
	},
}

var testProviders = map[string]config.ProviderConfig{
	"idme": {
		Name:            "ID.me",
		AuthorizeURL:    "https://provider.example.com/authorize",
		AssertionSecret: "super-secret-assertion-key-for-tests",
	},
}

func newTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: filepath.Join(t.TempDir(), "signet_test.db"),
	})

	err := databaseService.Init()
	assert.NilError(t, err)

	return databaseService.GetDatabase()
}

func newTestKeys(t *testing.T) *service.KeyService {
	t.Helper()

	keyService := service.NewKeyService(service.KeyServiceConfig{})

	err := keyService.Init()
	assert.NilError(t, err)

	return keyService
}

func newTestAudit(t *testing.T) *service.AuditLogService {
	t.Helper()

	auditService := service.NewAuditLogService(&service.AuditLogServiceConfig{})

	err := auditService.Init()
	assert.NilError(t, err)

	return auditService
}

func newTestClients(t *testing.T) *service.ClientService {
	t.Helper()

	clientService := service.NewClientService(service.ClientServiceConfig{
		Clients:            testClients,
		AccessTokenExpiry:  300,
		RefreshTokenExpiry: 3600,
	})

	err := clientService.Init()
	assert.NilError(t, err)

	return clientService
}
