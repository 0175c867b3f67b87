package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type StoreConfig struct {
	Driver      string
	DatabaseURL string
	SQLitePath  string
}

type APIConfig struct {
	Addr          string
	Store         StoreConfig
	CatalogPath   string
	AdminToken    string
	ResearchRate  float64
	ResearchBurst int
	CORSOrigins   []string
}

type WorkerConfig struct {
	Store       StoreConfig
	CatalogPath string
	TurnEvery   time.Duration
	TurnIncome  int64
	RunOnce     bool
}

type CLIConfig struct {
	APIBaseURL string
	NationID   string
	AdminToken string
}

func LoadAPIFromEnv() (APIConfig, error) {
	addr := os.Getenv("PORT")
	if addr != "" {
		if !strings.HasPrefix(addr, ":") {
			addr = ":" + addr
		}
	} else {
		addr = envDefault("VIAU_API_ADDR", ":8080")
	}

	store, err := loadStore()
	if err != nil {
		return APIConfig{}, err
	}
	cfg := APIConfig{
		Addr:          addr,
		Store:         store,
		CatalogPath:   strings.TrimSpace(os.Getenv("VIAU_CATALOG_PATH")),
		AdminToken:    strings.TrimSpace(os.Getenv("VIAU_ADMIN_TOKEN")),
		ResearchRate:  envFloatDefault("VIAU_RESEARCH_RATE", 5),
		ResearchBurst: int(envIntDefault("VIAU_RESEARCH_BURST", 10)),
		CORSOrigins:   envListDefault("VIAU_CORS_ORIGINS", []string{"*"}),
	}
	if cfg.ResearchRate <= 0 {
		return cfg, fmt.Errorf("VIAU_RESEARCH_RATE must be > 0")
	}
	if cfg.ResearchBurst <= 0 {
		return cfg, fmt.Errorf("VIAU_RESEARCH_BURST must be > 0")
	}
	return cfg, nil
}

func LoadWorkerFromEnv() (WorkerConfig, error) {
	store, err := loadStore()
	if err != nil {
		return WorkerConfig{}, err
	}
	cfg := WorkerConfig{
		Store:       store,
		CatalogPath: strings.TrimSpace(os.Getenv("VIAU_CATALOG_PATH")),
		TurnEvery:   envDurationDefault("VIAU_TURN_EVERY", 10*time.Minute),
		TurnIncome:  envIntDefault("VIAU_TURN_RESEARCH_INCOME", 25),
		RunOnce:     envBoolDefault("VIAU_WORKER_RUN_ONCE", false),
	}
	if cfg.TurnIncome <= 0 {
		return cfg, fmt.Errorf("VIAU_TURN_RESEARCH_INCOME must be > 0")
	}
	return cfg, nil
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("TECHTREE_API_BASE_URL", "http://localhost:8080"), "/"),
		NationID:   strings.TrimSpace(os.Getenv("TECHTREE_NATION")),
		AdminToken: strings.TrimSpace(os.Getenv("TECHTREE_ADMIN_TOKEN")),
	}
}

func loadStore() (StoreConfig, error) {
	cfg := StoreConfig{
		Driver:      strings.ToLower(envDefault("VIAU_STORE", StorePostgres)),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		SQLitePath:  envDefault("VIAU_SQLITE_PATH", "./data/viau.db"),
	}
	switch cfg.Driver {
	case StorePostgres:
		if cfg.DatabaseURL == "" {
			return cfg, fmt.Errorf("DATABASE_URL is required")
		}
	case StoreSQLite:
	default:
		return cfg, fmt.Errorf("VIAU_STORE must be %s or %s, got %q", StorePostgres, StoreSQLite, cfg.Driver)
	}
	return cfg, nil
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func envFloatDefault(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func envIntDefault(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
