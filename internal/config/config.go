package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds service configuration.
type Config struct {
	MongoURI     string
	MongoDB      string
	ServerAddr   string
	StoreTimeout time.Duration
}

// Load reads configuration from environment. A .env file in the working
// directory is loaded first when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		MongoURI:     getenv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:      getenv("MONGO_DB", "community_hub"),
		ServerAddr:   getenv("SERVER_ADDR", "0.0.0.0:8080"),
		StoreTimeout: parseDuration(getenv("STORE_TIMEOUT", "10s"), 10*time.Second),
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}
