// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// The gateway only listens on registered ports.
const (
	MinPort = 1024
	MaxPort = 49151
)

// EnvFile is the dotenv file loaded before the environment is read.
const EnvFile = "Wheatley.env"

// Config holds all gateway configuration. It is read-only after startup.
type Config struct {
	Wheatley WheatleyConfig
	Geofence GeofenceConfig
	// Port is the listen port. Zero means ask on stdin at startup.
	Port int
}

// WheatleyConfig contains the backend connection settings. The credential
// pair authenticates the gateway itself; per-user apikeys ride along in
// request payloads.
type WheatleyConfig struct {
	BaseURL  string
	Username string
	Password string
}

// GeofenceConfig is the delivery radius policy: deliveries may only go out
// within MaxKm of headquarters.
type GeofenceConfig struct {
	HQLat float64
	HQLng float64
	MaxKm float64
}

// Load reads Wheatley.env if present, then the environment. The backend
// base URL and credential pair are required.
func Load() (*Config, error) {
	// A missing env file is fine; the environment may carry everything.
	_ = godotenv.Load(EnvFile)

	cfg := &Config{
		Wheatley: WheatleyConfig{
			BaseURL:  getEnv("WHEATLEY_BASE_URL", ""),
			Username: getEnv("WHEATLEY_USER", ""),
			Password: getEnv("WHEATLEY_PASS", ""),
		},
		Geofence: GeofenceConfig{},
	}

	var err error
	if cfg.Geofence.HQLat, err = getEnvFloat("HQ_LAT", 25.7472); err != nil {
		return nil, err
	}
	if cfg.Geofence.HQLng, err = getEnvFloat("HQ_LNG", 28.2511); err != nil {
		return nil, err
	}
	if cfg.Geofence.MaxKm, err = getEnvFloat("MAX_DELIVERY_KM", 5.0); err != nil {
		return nil, err
	}
	if cfg.Port, err = getEnvInt("GATEWAY_PORT", 0); err != nil {
		return nil, err
	}

	if cfg.Wheatley.BaseURL == "" {
		return nil, fmt.Errorf("WHEATLEY_BASE_URL is not set")
	}
	if cfg.Wheatley.Username == "" || cfg.Wheatley.Password == "" {
		return nil, fmt.Errorf("WHEATLEY_USER and WHEATLEY_PASS must be set")
	}
	if cfg.Port != 0 && (cfg.Port < MinPort || cfg.Port > MaxPort) {
		return nil, fmt.Errorf("GATEWAY_PORT %d outside range %d-%d", cfg.Port, MinPort, MaxPort)
	}

	return cfg, nil
}

// String masks the credential pair.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Wheatley: %s as %s, HQ: (%.4f, %.4f), MaxKm: %g}",
		c.Wheatley.BaseURL, c.Wheatley.Username, c.Geofence.HQLat, c.Geofence.HQLng, c.Geofence.MaxKm)
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	if value, exists := os.LookupEnv(key); exists {
		intVal, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return intVal, nil
	}
	return defaultVal, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	if value, exists := os.LookupEnv(key); exists {
		floatVal, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number for %s: %w", key, err)
		}
		return floatVal, nil
	}
	return defaultVal, nil
}
