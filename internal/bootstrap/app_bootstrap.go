package bootstrap

import (
	"fmt"
	"os"
	"time"

	"github.com/signet-auth/signet/internal/config"
	"github.com/signet-auth/signet/internal/utils"

	"github.com/rs/zerolog/log"
)

type BootstrapApp struct {
	config  config.Config
	context struct {
		cookieDomain string
		providers    map[string]config.ProviderConfig
	}
	services Services
}

func NewBootstrapApp(config config.Config) *BootstrapApp {
	return &BootstrapApp{
		config: config,
	}
}

func (app *BootstrapApp) Setup() error {
	// Resolve provider secrets
	app.context.providers = app.config.Providers

	for id, provider := range app.context.providers {
		secret := utils.GetSecret(provider.AssertionSecret, provider.AssertionSecretFile)

		if secret == "" {
			return fmt.Errorf("provider %s has no assertion secret configured", id)
		}

		provider.AssertionSecret = secret
		provider.AssertionSecretFile = ""

		if provider.Name == "" {
			provider.Name = id
		}

		app.context.providers[id] = provider
	}

	if len(app.context.providers) == 0 {
		return fmt.Errorf("no identity providers configured")
	}

	// Get cookie domain
	cookieDomain, err := utils.GetCookieDomain(app.config.AppURL)

	if err != nil {
		return err
	}

	app.context.cookieDomain = cookieDomain

	// Dumps
	log.Trace().Interface("config", app.config).Msg("Config dump")
	log.Trace().Str("cookieDomain", app.context.cookieDomain).Msg("Cookie domain")

	// Services
	services, err := app.initServices()

	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}

	app.services = services

	// Setup router
	router, err := app.setupRouter()

	if err != nil {
		return fmt.Errorf("failed to setup routes: %w", err)
	}

	// Start db cleanup routine
	log.Debug().Msg("Starting database cleanup routine")
	go app.dbCleanup()

	// If we have an socket path, bind to it
	if app.config.Server.SocketPath != "" {
		if _, err := os.Stat(app.config.Server.SocketPath); err == nil {
			log.Info().Msgf("Removing existing socket file %s", app.config.Server.SocketPath)
			err := os.Remove(app.config.Server.SocketPath)
			if err != nil {
				return fmt.Errorf("failed to remove existing socket file: %w", err)
			}
		}

		log.Info().Msgf("Starting server on unix socket %s", app.config.Server.SocketPath)
		if err := router.RunUnix(app.config.Server.SocketPath); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}

		return nil
	}

	// Start server
	address := fmt.Sprintf("%s:%d", app.config.Server.Address, app.config.Server.Port)
	log.Info().Msgf("Starting server on %s", address)
	if err := router.Run(address); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}

	return nil
}

func (app *BootstrapApp) dbCleanup() {
	ticker := time.NewTicker(time.Duration(30) * time.Minute)
	defer ticker.Stop()

	for ; true; <-ticker.C {
		log.Debug().Msg("Cleaning up expired grants and sessions")
		err := app.services.tokenService.CleanupExpired()
		if err != nil {
			log.Error().Err(err).Msg("Failed to clean up expired grants and sessions")
		}
	}
}
