package signet

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/signet-auth/signet/internal/bootstrap"
	"github.com/signet-auth/signet/internal/config"
	"github.com/signet-auth/signet/internal/utils/loaders"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/traefik/paerser/cli"
)

func NewSignetCmdConfiguration() *config.Config {
	return &config.Config{
		DatabasePath: "./signet.db",
		Server: config.ServerConfig{
			Port:    3000,
			Address: "0.0.0.0",
		},
		Auth: config.AuthConfig{
			AccessTokenExpiry:  300,
			RefreshTokenExpiry: 2592000,
			StatePayloadExpiry: 600,
			LoginCodeExpiry:    300,
			SecureCookie:       false,
		},
		Log: config.LogConfig{
			Level: "info",
			Json:  false,
		},
		Experimental: config.ExperimentalConfig{
			ConfigFile: "",
		},
	}
}

func Main() {
	tConfig := NewSignetCmdConfiguration()

	loaders := []cli.ResourceLoader{
		&loaders.FileLoader{},
		&loaders.FlagLoader{},
		&loaders.EnvLoader{},
	}

	cmdSignet := &cli.Command{
		Name:          "signet",
		Description:   "A small PKCE token issuance and validation service.",
		Configuration: tConfig,
		Resources:     loaders,
		Run: func(_ []string) error {
			return runCmd(*tConfig)
		},
	}

	err := cmdSignet.AddCommand(versionCmd())

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add version command")
	}

	err = cmdSignet.AddCommand(healthcheckCmd())

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add healthcheck command")
	}

	err = cmdSignet.AddCommand(generateKeyCmd())

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to add generate-key command")
	}

	err = cli.Execute(cmdSignet)

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}

func runCmd(cfg config.Config) error {
	logLevel, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level))

	if err != nil {
		log.Error().Err(err).Msg("Invalid or missing log level, defaulting to info")
		logLevel = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(logLevel)

	if cfg.Log.Json {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Caller().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()
	}

	log.Info().Str("version", config.Version).Msg("Starting signet")

	app := bootstrap.NewBootstrapApp(cfg)

	err = app.Setup()

	if err != nil {
		return fmt.Errorf("failed to bootstrap app: %w", err)
	}

	return nil
}
