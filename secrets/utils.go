package _secrets

import (
	"os"

	"github.com/infisical/go-sdk/packages/models"
)

// Resolve returns the value for name, preferring the loaded secret set over
// the process environment. The push credentials (PAT, GIT_ACTOR) go through
// here so they are never baked into config files.
func Resolve(secrets []models.Secret, name string) string {
	for _, s := range secrets {
		if s.SecretKey == name && s.SecretValue != "" {
			return s.SecretValue
		}
	}
	return os.Getenv(name)
}
