package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Demo     DemoConfig
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DemoConfig carries the defaults for the synthetic data generator. Every
// field maps onto engine.Config; see internal/demodata/engine.
type DemoConfig struct {
	Device                        string
	InitialGlucose                float64
	MinGlucose                    float64
	MaxGlucose                    float64
	TargetGlucose                 float64
	CarbRatio                     float64
	CorrectionFactor              float64
	BasalRate                     float64
	InsulinPeakMinutes            float64
	InsulinDurationMinutes        float64
	InsulinSensitivityFactor      float64
	CarbAbsorptionPeakMinutes     float64
	CarbAbsorptionDurationMinutes float64
	HistoryDays                   int
	WalkVariance                  float64
	Seed                          int64
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "nocturne"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Demo: DemoConfig{
			Device:                        getEnv("DEMO_DEVICE", "nocturne-demo"),
			InitialGlucose:                getEnvAsFloat("DEMO_INITIAL_GLUCOSE", 120),
			MinGlucose:                    getEnvAsFloat("DEMO_MIN_GLUCOSE", 40),
			MaxGlucose:                    getEnvAsFloat("DEMO_MAX_GLUCOSE", 400),
			TargetGlucose:                 getEnvAsFloat("DEMO_TARGET_GLUCOSE", 110),
			CarbRatio:                     getEnvAsFloat("DEMO_CARB_RATIO", 10),
			CorrectionFactor:              getEnvAsFloat("DEMO_CORRECTION_FACTOR", 50),
			BasalRate:                     getEnvAsFloat("DEMO_BASAL_RATE", 1.0),
			InsulinPeakMinutes:            getEnvAsFloat("DEMO_INSULIN_PEAK_MINUTES", 75),
			InsulinDurationMinutes:        getEnvAsFloat("DEMO_INSULIN_DURATION_MINUTES", 300),
			InsulinSensitivityFactor:      getEnvAsFloat("DEMO_INSULIN_SENSITIVITY", 50),
			CarbAbsorptionPeakMinutes:     getEnvAsFloat("DEMO_CARB_PEAK_MINUTES", 45),
			CarbAbsorptionDurationMinutes: getEnvAsFloat("DEMO_CARB_DURATION_MINUTES", 180),
			HistoryDays:                   getEnvAsInt("DEMO_HISTORY_DAYS", 30),
			WalkVariance:                  getEnvAsFloat("DEMO_WALK_VARIANCE", 1.0),
			Seed:                          int64(getEnvAsInt("DEMO_SEED", 0)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required")
	}

	return nil
}

// DSN builds a pgx connection string from the database settings.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
		return defaultValue
	}

	return value
}
