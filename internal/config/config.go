// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

// Config holds every setting of the API server.
type Config struct {
	Port string

	MongoURI          string
	MongoDB           string
	MongoTransactions bool
	StoreBackend      string

	DraftBackend    string
	DraftSQLitePath string
	DraftPrefix     string
	DraftTTL        time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	MQTTBroker   string
	MQTTClientID string
	MQTTTopic    string

	InspectionBudget                time.Duration
	RequireNonConformingObservation bool

	JWTSecret     string
	JWTExpiry     time.Duration
	AdminEmail    string
	AdminPassword string

	LogLevel  string
	LogFormat string
}

// Load reads an optional .env file then the environment. Variables already
// set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var errs []error
	c := &Config{
		Port:            getEnv("PORT", "8080"),
		MongoURI:        os.Getenv("MONGO_URI"),
		MongoDB:         getEnv("MONGO_DB", "inspections"),
		StoreBackend:    strings.ToLower(getEnv("STORE_BACKEND", "mongo")),
		DraftBackend:    strings.ToLower(getEnv("DRAFT_BACKEND", "memory")),
		DraftSQLitePath: getEnv("DRAFT_SQLITE_PATH", "drafts.db"),
		DraftPrefix:     getEnv("DRAFT_PREFIX", "draft"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		MQTTBroker:      os.Getenv("MQTT_BROKER"),
		MQTTClientID:    getEnv("MQTT_CLIENT_ID", "truck-inspection-api"),
		MQTTTopic:       getEnv("MQTT_TOPIC", "inspections/completed"),
		JWTSecret:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		AdminEmail:      os.Getenv("ADMIN_EMAIL"),
		AdminPassword:   os.Getenv("ADMIN_PASSWORD"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       strings.ToLower(getEnv("LOG_FORMAT", "text")),
	}
	c.MongoTransactions = getBool("MONGO_TRANSACTIONS", false, &errs)
	c.RequireNonConformingObservation = getBool("REQUIRE_NONCONFORMING_OBSERVATION", false, &errs)
	c.RedisDB = getInt("REDIS_DB", 0, &errs)
	c.DraftTTL = getDuration("DRAFT_TTL", 0, &errs)
	c.InspectionBudget = getDuration("INSPECTION_BUDGET", 10*time.Minute, &errs)
	c.JWTExpiry = getDuration("JWT_EXPIRY", 24*time.Hour, &errs)

	switch c.StoreBackend {
	case "mongo", "memory":
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be mongo or memory, got %q", c.StoreBackend))
	}
	switch c.DraftBackend {
	case "memory", "sqlite", "redis":
	default:
		errs = append(errs, fmt.Errorf("DRAFT_BACKEND must be memory, sqlite or redis, got %q", c.DraftBackend))
	}
	if c.InspectionBudget <= 0 {
		errs = append(errs, fmt.Errorf("INSPECTION_BUDGET must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// ConfigureLogging applies the level and format to the standard logger.
func (c *Config) ConfigureLogging() {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		log.WithField("level", c.LogLevel).Warn("unknown log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getBool(key string, def bool, errs *[]error) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func getInt(key string, def int, errs *[]error) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

// getDuration accepts Go durations ("10m") or a plain number of seconds.
func getDuration(key string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return d
}
