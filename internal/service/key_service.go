package service

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
)

type KeyServiceConfig struct {
	KeyPath string
}

// KeyService owns the RSA key pair used for signing access tokens and state
// payloads. The key is loaded from disk when present so tokens survive
// restarts; with no path configured an ephemeral key is generated.
type KeyService struct {
	config     KeyServiceConfig
	privateKey *rsa.PrivateKey
}

func NewKeyService(config KeyServiceConfig) *KeyService {
	return &KeyService{
		config: config,
	}
}

func (ks *KeyService) Init() error {
	if ks.config.KeyPath == "" {
		privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
		if err != nil {
			return fmt.Errorf("failed to generate RSA key: %w", err)
		}
		ks.privateKey = privateKey
		log.Warn().Msg("No key path configured, using an ephemeral signing key")
		return nil
	}

	key, err := ks.loadKey(ks.config.KeyPath)

	if err == nil {
		ks.privateKey = key
		log.Debug().Str("path", ks.config.KeyPath).Msg("Loaded signing key")
		return nil
	}

	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to load signing key: %w", err)
	}

	key, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return fmt.Errorf("failed to generate RSA key: %w", err)
	}

	if err := ks.writeKey(ks.config.KeyPath, key); err != nil {
		return fmt.Errorf("failed to write signing key: %w", err)
	}

	ks.privateKey = key
	log.Info().Str("path", ks.config.KeyPath).Msg("Generated new signing key")
	return nil
}

func (ks *KeyService) loadKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != "RSA PRIVATE KEY" {
		return nil, errors.New("no RSA private key found in PEM data")
	}

	return x509.ParsePKCS1PrivateKey(block.Bytes)
}

func (ks *KeyService) writeKey(path string, key *rsa.PrivateKey) error {
	dir := filepath.Dir(path)

	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	data := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	return os.WriteFile(path, data, 0600)
}

func (ks *KeyService) PrivateKey() *rsa.PrivateKey {
	return ks.privateKey
}

func (ks *KeyService) PublicKey() *rsa.PublicKey {
	return &ks.privateKey.PublicKey
}
