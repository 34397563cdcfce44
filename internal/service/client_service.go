package service

import (
	"fmt"

	"github.com/signet-auth/signet/internal/config"

	"github.com/rs/zerolog/log"
)

type ClientServiceConfig struct {
	Clients map[string]config.ClientConfig

	// Fallback durations in seconds for clients that do not set their own.
	AccessTokenExpiry  int
	RefreshTokenExpiry int
}

// ClientService is the registry of known clients and their issuance policy.
// Clients come from configuration, validated and defaulted once at startup.
type ClientService struct {
	config  ClientServiceConfig
	clients map[string]config.ClientConfig
}

func NewClientService(config ClientServiceConfig) *ClientService {
	return &ClientService{
		config: config,
	}
}

func (cs *ClientService) Init() error {
	cs.clients = make(map[string]config.ClientConfig)

	for id, client := range cs.config.Clients {
		if !config.ValidAuthenticationType(client.Authentication) {
			return fmt.Errorf("client %s has invalid authentication type %q", id, client.Authentication)
		}

		if client.RedirectURI == "" {
			return fmt.Errorf("client %s has no redirect URI", id)
		}

		if client.Name == "" {
			client.Name = id
		}

		if client.Audience == "" {
			client.Audience = id
		}

		if client.AccessTokenDuration <= 0 {
			client.AccessTokenDuration = cs.config.AccessTokenExpiry
		}

		if client.RefreshTokenDuration <= 0 {
			client.RefreshTokenDuration = cs.config.RefreshTokenExpiry
		}

		cs.clients[id] = client
		log.Debug().Str("client_id", id).Str("authentication", client.Authentication).Msg("Registered client")
	}

	if len(cs.clients) == 0 {
		return fmt.Errorf("no clients configured")
	}

	return nil
}

func (cs *ClientService) GetClient(clientID string) (config.ClientConfig, error) {
	client, ok := cs.clients[clientID]
	if !ok {
		return config.ClientConfig{}, ErrInvalidClient
	}
	return client, nil
}
