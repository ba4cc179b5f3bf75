package secret

import (
	"context"

	"github.com/sirupsen/logrus"
)

// DevJWTSecret signs sessions when no signing key is configured.
const DevJWTSecret = "default-dev-secret"

// Names are the parameter names of the process secrets.
type Names struct {
	GoogleClientSecret string
	JWTSecret          string
	APIGatewaySecret   string
}

// Bundle holds the resolved process secrets.
type Bundle struct {
	GoogleClientSecret string
	JWTSecret          string
	APIGatewaySecret   string
}

// Load resolves every secret in names. Missing secrets are logged and left
// empty, except the JWT secret which falls back to DevJWTSecret.
func Load(ctx context.Context, r Resolver, names Names, logger *logrus.Logger) Bundle {
	if logger == nil {
		logger = logrus.New()
	}

	get := func(param, def string) string {
		val, err := GetOrDefault(ctx, r, param, def)
		if err != nil {
			logger.WithError(err).WithField("param", param).Warn("secret not resolved")
		}
		return val
	}

	return Bundle{
		GoogleClientSecret: get(names.GoogleClientSecret, ""),
		JWTSecret:          get(names.JWTSecret, DevJWTSecret),
		APIGatewaySecret:   get(names.APIGatewaySecret, ""),
	}
}
