package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret reads a secret using the *_FILE convention: when
// envName+"_FILE" is set the secret is the trimmed content of that file,
// otherwise it is the value of envName. Neither set yields "".
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}
	return os.Getenv(envName), nil
}

// resolveSecrets overrides credentials from the environment. Values in the
// file are kept when no variable is set.
func (c *Config) resolveSecrets() error {
	secrets := map[string]*string{
		"POSTGRES_PASSWORD": &c.Storage.Postgres.Password,
		"REDIS_PASSWORD":    &c.Storage.Redis.Password,
		"MQTT_PASSWORD":     &c.MQTT.Password,
		"EDITOR_USER":       &c.Auth.EditorUser,
		"EDITOR_PASS":       &c.Auth.EditorPass,
		"VIEWER_USER":       &c.Auth.ViewerUser,
		"VIEWER_PASS":       &c.Auth.ViewerPass,
	}
	for name, dst := range secrets {
		v, err := ResolveSecret(EnvPrefix + name)
		if err != nil {
			return err
		}
		if v != "" {
			*dst = v
		}
	}
	return nil
}
