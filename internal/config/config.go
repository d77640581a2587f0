// Package config loads process configuration from the environment,
// optionally seeded from a .env file via joho/godotenv - a dependency the
// teacher repo declared in go.mod but never called from anywhere, since
// it never grew a main package. This wires it in the conventional way:
// load .env best-effort, then read from the real environment.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-derived setting spec.md §6 names.
type Config struct {
	Port         string
	MongoURI     string
	MongoDB      string
	AllowOrigins []string
}

// Load reads configuration from the environment, falling back to a .env
// file in the working directory if present. MONGODB_URI is required; its
// absence is a fatal startup condition (spec §7: "the only fatal
// condition is failure to bind the persistent store at startup").
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config] no .env file loaded: %v", err)
	}

	cfg := &Config{
		Port:     getEnv("PORT", "4000"),
		MongoDB:  getEnv("MONGODB_DATABASE", "scrawl"),
		MongoURI: os.Getenv("MONGODB_URI"),
	}
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("config: MONGODB_URI is required")
	}

	origins := getEnv("CORS_ALLOWED_ORIGINS", "*")
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

