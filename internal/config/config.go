package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"subs_engine/internal/auth"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	Env       string          `yaml:"env" env-default:"development"`
	Server    ServerConfig    `yaml:"http_server"`
	Pg        PgConfig        `yaml:"postgres"`
	Storage   StorageConfig   `yaml:"storage"`
	Auth      AuthConfig      `yaml:"auth"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Engine    EngineConfig    `yaml:"engine"`
	Ledger    LedgerConfig    `yaml:"ledger"`
}

type ServerConfig struct {
	Host        string        `yaml:"host"`
	Port        int           `yaml:"port"`
	Timeout     time.Duration `yaml:"timeout"`
	CORSOrigins []string      `yaml:"cors_origins"`
}

type PgConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Db       string `yaml:"db"`
	SSLMode  string `yaml:"sslmode"`
}

type StorageConfig struct {
	// Driver - "postgres" or "memory"
	Driver         string `yaml:"driver"`
	Migrations     string `yaml:"migrations"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type EngineConfig struct {
	MaxBatch int `yaml:"max_batch"`
}

type LedgerConfig struct {
	// Seed - initial balances, applied only with memory storage
	Seed map[string]int64 `yaml:"seed"`
}

func resolvePath(cwd, p string) string {
	if p == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	if up, ok := findUp(cwd, p, 8); ok {
		return up
	}
	return filepath.Join(cwd, p)
}

func findUp(start, rel string, max int) (string, bool) {
	dir := start
	for i := 0; i <= max; i++ {
		p := filepath.Join(dir, rel)
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}

func LoadConfig() *Config {
	cfg := Config{
		Storage: StorageConfig{Driver: StoragePostgres, Migrations: "migrations"},
		Auth:    AuthConfig{TokenTTL: 24 * time.Hour},
		Engine:  EngineConfig{MaxBatch: 500},
	}
	cwd, _ := os.Getwd()

	// 1) .env
	envPath := os.Getenv("CONFIG_PG_PATH")
	if envPath == "" {
		if up, ok := findUp(cwd, ".env/local_pg.env", 8); ok {
			envPath = up
		}
	} else {
		envPath = resolvePath(cwd, envPath)
	}
	if envPath != "" {
		_ = godotenv.Overload(envPath)
	}

	// 2) YAML
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if up, ok := findUp(cwd, "configs/local.yaml", 8); ok {
			path = up
		} else if up, ok := findUp(cwd, ".env/local.yaml", 8); ok {
			path = up
		} else {
			log.Fatal("CONFIG_PATH not set and local.yaml not found")
		}
	} else {
		path = resolvePath(cwd, path)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Fatalf("read config: %v", err)
	}

	expanded := os.ExpandEnv(string(raw))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		log.Fatalf("unmarshal config: %v", err)
	}
	if cfg.Storage.Migrations != "" && cfg.Storage.Driver == StoragePostgres {
		cfg.Storage.Migrations = resolvePath(cwd, cfg.Storage.Migrations)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	return &cfg
}

// Validate rejects settings the server must not start with
func (c *Config) Validate() error {
	if err := auth.CheckSecret(c.Auth.JWTSecret); err != nil {
		return fmt.Errorf("auth.jwt_secret: %w", err)
	}
	return nil
}
