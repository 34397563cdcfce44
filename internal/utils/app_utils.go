package utils

import (
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/signet-auth/signet/internal/config"

	"github.com/gin-gonic/gin"
)

// GetCookieDomain parses the app URL and returns the hostname cookies should
// be scoped to. IP addresses are allowed (useful for local development) but
// get an empty domain so the browser falls back to host-only cookies.
func GetCookieDomain(appURL string) (string, error) {
	parsed, err := url.Parse(appURL)
	if err != nil {
		return "", err
	}

	host := parsed.Hostname()

	if host == "" {
		return "", errors.New("app URL has no hostname")
	}

	if netIP := net.ParseIP(host); netIP != nil {
		return "", nil
	}

	if !strings.Contains(host, ".") {
		return "", nil
	}

	return host, nil
}

func GetContext(c *gin.Context) (config.UserContext, error) {
	userContextValue, exists := c.Get("context")

	if !exists {
		return config.UserContext{}, errors.New("no user context in request")
	}

	userContext, ok := userContextValue.(*config.UserContext)

	if !ok {
		return config.UserContext{}, errors.New("invalid user context in request")
	}

	return *userContext, nil
}

func GetSecret(conf string, file string) string {
	if conf == "" && file == "" {
		return ""
	}

	if conf != "" {
		return conf
	}

	contents, err := ReadFile(file)
	if err != nil {
		return ""
	}

	return ParseSecretFile(contents)
}

func ParseSecretFile(contents string) string {
	lines := strings.Split(contents, "\n")

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		return strings.TrimSpace(line)
	}

	return ""
}
