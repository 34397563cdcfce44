package signet

import (
	"errors"
	"fmt"

	"github.com/signet-auth/signet/internal/service"

	"github.com/rs/zerolog/log"
	"github.com/traefik/paerser/cli"
)

type GenerateKeyConfig struct {
	KeyPath string `description:"Path where the RSA signing key will be written."`
}

func NewGenerateKeyConfig() *GenerateKeyConfig {
	return &GenerateKeyConfig{
		KeyPath: "",
	}
}

func generateKeyCmd() *cli.Command {
	tCfg := NewGenerateKeyConfig()

	loaders := []cli.ResourceLoader{
		&cli.FlagLoader{},
	}

	return &cli.Command{
		Name:          "generate-key",
		Description:   "Generate an RSA signing key",
		Configuration: tCfg,
		Resources:     loaders,
		Run: func(_ []string) error {
			if tCfg.KeyPath == "" {
				return errors.New("key path cannot be empty")
			}

			keyService := service.NewKeyService(service.KeyServiceConfig{
				KeyPath: tCfg.KeyPath,
			})

			err := keyService.Init()

			if err != nil {
				return fmt.Errorf("failed to generate key: %w", err)
			}

			log.Info().Str("path", tCfg.KeyPath).Msg("Signing key ready")

			return nil
		},
	}
}
