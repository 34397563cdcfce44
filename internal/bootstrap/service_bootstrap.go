package bootstrap

import (
	"github.com/signet-auth/signet/internal/service"
)

type Services struct {
	databaseService *service.DatabaseService
	keyService      *service.KeyService
	clientService   *service.ClientService
	auditLogService *service.AuditLogService
	stateService    *service.StateService
	userService     *service.UserService
	tokenService    *service.TokenService
}

func (app *BootstrapApp) initServices() (Services, error) {
	services := Services{}

	databaseService := service.NewDatabaseService(service.DatabaseServiceConfig{
		DatabasePath: app.config.DatabasePath,
	})

	err := databaseService.Init()

	if err != nil {
		return Services{}, err
	}

	services.databaseService = databaseService

	keyService := service.NewKeyService(service.KeyServiceConfig{
		KeyPath: app.config.KeyPath,
	})

	err = keyService.Init()

	if err != nil {
		return Services{}, err
	}

	services.keyService = keyService

	clientService := service.NewClientService(service.ClientServiceConfig{
		Clients:            app.config.Clients,
		AccessTokenExpiry:  app.config.Auth.AccessTokenExpiry,
		RefreshTokenExpiry: app.config.Auth.RefreshTokenExpiry,
	})

	err = clientService.Init()

	if err != nil {
		return Services{}, err
	}

	services.clientService = clientService

	auditLogService := service.NewAuditLogService(&service.AuditLogServiceConfig{
		LogFile: app.config.Auth.AuditLogFile,
		LogJson: app.config.Auth.AuditLogJson,
	})

	err = auditLogService.Init()

	if err != nil {
		return Services{}, err
	}

	services.auditLogService = auditLogService

	stateService := service.NewStateService(service.StateServiceConfig{
		Issuer: app.config.AppURL,
		Expiry: app.config.Auth.StatePayloadExpiry,
	}, keyService, databaseService.GetDatabase())

	err = stateService.Init()

	if err != nil {
		return Services{}, err
	}

	services.stateService = stateService

	userService := service.NewUserService(service.UserServiceConfig{
		Providers:       app.context.providers,
		LoginCodeExpiry: app.config.Auth.LoginCodeExpiry,
	}, databaseService.GetDatabase(), auditLogService)

	err = userService.Init()

	if err != nil {
		return Services{}, err
	}

	services.userService = userService

	tokenService := service.NewTokenService(service.TokenServiceConfig{
		Issuer: app.config.AppURL,
	}, clientService, keyService, auditLogService, databaseService.GetDatabase())

	err = tokenService.Init()

	if err != nil {
		return Services{}, err
	}

	services.tokenService = tokenService

	return services, nil
}
