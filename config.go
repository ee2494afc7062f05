package config

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.yaml.in/yaml/v3"
)

// Source describes one JPX page to scrape and the file it yields.
type Source struct {
	Name    string `yaml:"name"`
	Page    string `yaml:"page"`
	Match   string `yaml:"match"`   // href substring, e.g. ".csv"
	Section string `yaml:"section"` // optional heading text that anchors the link
	Prefix  string `yaml:"prefix"`  // output filename prefix
}

type Identity struct {
	Name  string
	Email string
}

type Config struct {
	CronSpec string

	RepoPath string
	RepoURL  string
	Branch   string
	DataDir  string

	Actor         string
	Token         string
	Author        Identity
	MessagePrefix string

	// Downloader selects how the fetch step runs: native, script or cloudrun.
	Downloader       string
	DownloaderScript string

	GCPProjectID        string
	GCPRegion           string
	JobsImage           string
	ServiceAccountEmail string

	Store struct {
		Driver string
		Path   string
	}

	SourcesFile string
	Sources     []Source

	Environment string
}

func Load() (*Config, error) {
	// let's load the config from the .env file
	err := godotenv.Load()
	if err != nil {
		log.Printf("Error loading .env file: %v", err)
	}

	c := &Config{
		CronSpec:         getEnv("CRON_SPEC", "0 8 * * 1-5"),
		RepoPath:         getEnv("REPO_PATH", "."),
		RepoURL:          os.Getenv("REPO_URL"),
		Branch:           getEnv("BRANCH", "main"),
		DataDir:          getEnv("DATA_DIR", "jpx_data"),
		Actor:            os.Getenv("GIT_ACTOR"),
		Token:            os.Getenv("PAT"),
		MessagePrefix:    getEnv("COMMIT_MESSAGE_PREFIX", "Automatic JPX CSV update"),
		Downloader:       getEnv("DOWNLOADER", "native"),
		DownloaderScript: getEnv("DOWNLOADER_SCRIPT", "./jpx_downloader"),
		GCPProjectID:     os.Getenv("GCP_PROJECT_ID"),
		GCPRegion:        getEnv("GCP_REGION", "asia-northeast1"),
		JobsImage:        os.Getenv("JOBS_IMAGE"),
		SourcesFile:      getEnv("SOURCES_FILE", "jpxsync.yaml"),
		Environment:      getEnv("ENVIRONMENT", "development"),
	}
	c.ServiceAccountEmail = os.Getenv("SERVICE_ACCOUNT_EMAIL")
	c.Author = Identity{
		Name:  getEnv("COMMIT_AUTHOR_NAME", "GitHub Actions"),
		Email: getEnv("COMMIT_AUTHOR_EMAIL", "actions@github.com"),
	}
	c.Store.Driver = getEnv("STORE_DRIVER", "sqlite")
	c.Store.Path = getEnv("STORE_PATH", "jpxsync.db")

	sources, err := loadSources(c.SourcesFile)
	if err != nil {
		return nil, err
	}
	c.Sources = sources

	return c, nil
}

// loadSources reads the scrape targets from the yaml file, falling back to
// the built-in JPX pages when the file is absent.
func loadSources(path string) ([]Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSources(), nil
		}
		return nil, fmt.Errorf("failed to read sources file %s: %w", path, err)
	}
	var doc struct {
		Sources []Source `yaml:"sources"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sources file %s: %w", path, err)
	}
	if len(doc.Sources) == 0 {
		return DefaultSources(), nil
	}
	return doc.Sources, nil
}

// DefaultSources mirrors the two JPX publications the service tracks.
func DefaultSources() []Source {
	return []Source{
		{
			Name:   "derivatives_csv",
			Page:   "https://www.jpx.co.jp/english/markets/derivatives/settlement-price/index.html",
			Match:  ".csv",
			Prefix: "jpx_settlement_prices",
		},
		{
			Name:    "irs_rates_pdf",
			Page:    "https://www.jpx.co.jp/jscc/en/interest_rate_swap.html",
			Match:   ".pdf",
			Section: "Settlement Rates for Interest Rate Swap(Daily)",
			Prefix:  "irs_settlement_rates",
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
