package secret

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
)

// EnvResolver reads secrets from environment variables in dev mode.
type EnvResolver struct {
	lookup func(string) (string, bool)
}

func NewEnvResolver() *EnvResolver {
	return &EnvResolver{lookup: os.LookupEnv}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	key := EnvName(name)
	if val, ok := r.lookup(key); ok && val != "" {
		return val, nil
	}
	return "", fmt.Errorf("secret %s: %s is not set", name, key)
}

// EnvName maps a parameter name to the variable holding it in dev mode:
// "/apiautome/google-client-secret" is read from GOOGLE_CLIENT_SECRET.
func EnvName(param string) string {
	return strings.ToUpper(strings.ReplaceAll(path.Base(param), "-", "_"))
}
