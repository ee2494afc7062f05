package keys

import (
	"context"
	"fmt"
	"log"
	"os"

	infisical "github.com/infisical/go-sdk"
	"github.com/infisical/go-sdk/packages/models"
)

// NewInfisicalSecrets loads the project's secrets (the PAT among them) from
// Infisical and attaches them to the process environment so config.Load
// picks them up. When exitOnError is false a failed load degrades to
// env-only configuration.
func NewInfisicalSecrets(exitOnError bool) ([]models.Secret, error) {
	client := infisical.NewInfisicalClient(context.Background(), infisical.Config{
		SiteUrl:          os.Getenv("INFISICAL_API_URL"), // Optional, default is https://app.infisical.com
		AutoTokenRefresh: true,
	})

	_, err := client.Auth().UniversalAuthLogin(os.Getenv("INFISICAL_CLIENT_ID"), os.Getenv("INFISICAL_CLIENT_SECRET"))
	if err != nil {
		if exitOnError {
			log.Printf("infisical auth failed: %v", err)
			os.Exit(1)
		}
		return nil, fmt.Errorf("failed to authenticate with Infisical: %w", err)
	}

	sec, err := client.Secrets().List(infisical.ListSecretsOptions{
		ProjectID:          os.Getenv("INFISICAL_PROJECT_ID"),
		Environment:        os.Getenv("INFISICAL_ENV"),
		AttachToProcessEnv: true,
	})
	if err != nil {
		if exitOnError {
			log.Printf("infisical secrets load failed: %v", err)
			os.Exit(1)
		}
		return nil, fmt.Errorf("failed to load secrets from Infisical: %w", err)
	}

	return sec, nil
}
