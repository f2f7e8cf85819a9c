package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config collects every environment knob used by the storefront client and
// the dev stand-in server. Unset fields keep their zero value and callers
// apply their own defaults.
type Config struct {
	API_BASE_URL     string
	LOCAL_STORE_PATH string
	LOG_LEVEL        string

	REFRESH_PERIOD       time.Duration
	INACTIVITY_THRESHOLD time.Duration

	PORT        string
	DB_HOST     string
	DB_PORT     string
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string
	DB_FILE     string

	JWT_SECRET     string
	REFRESH_SECRET string

	KAFKA_ADDRESS string
	ES_URL        string
	ES_USER       string
	ES_PASSWORD   string

	RATE_LIMIT_RPS   float64
	RATE_LIMIT_BURST int
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		API_BASE_URL:         os.Getenv("API_BASE_URL"),
		LOCAL_STORE_PATH:     os.Getenv("LOCAL_STORE_PATH"),
		LOG_LEVEL:            os.Getenv("LOG_LEVEL"),
		REFRESH_PERIOD:       durationEnv("REFRESH_PERIOD_SECONDS", 10*time.Minute),
		INACTIVITY_THRESHOLD: durationEnv("INACTIVITY_SECONDS", 30*time.Minute),
		PORT:                 os.Getenv("PORT"),
		DB_HOST:              os.Getenv("DB_HOST"),
		DB_PORT:              os.Getenv("DB_PORT"),
		DB_USER:              os.Getenv("DB_USER"),
		DB_PASSWORD:          os.Getenv("DB_PASSWORD"),
		DB_NAME:              os.Getenv("DB_NAME"),
		DB_FILE:              os.Getenv("DB_FILE"),
		JWT_SECRET:           os.Getenv("JWT_SECRET"),
		REFRESH_SECRET:       os.Getenv("REFRESH_SECRET"),
		KAFKA_ADDRESS:        os.Getenv("KAFKA_ADDRESS"),
		ES_URL:               os.Getenv("ES_URL"),
		ES_USER:              os.Getenv("ES_USER"),
		ES_PASSWORD:          os.Getenv("ES_PASSWORD"),
		RATE_LIMIT_RPS:       floatEnv("RATE_LIMIT_RPS", 0),
		RATE_LIMIT_BURST:     intEnv("RATE_LIMIT_BURST", 20),
	}

	if config.API_BASE_URL == "" {
		config.API_BASE_URL = "http://localhost:8080/api/v1"
	}
	if config.LOCAL_STORE_PATH == "" {
		config.LOCAL_STORE_PATH = "shopfront.db"
	}
	if config.PORT == "" {
		config.PORT = "8080"
	}
	if config.DB_FILE == "" {
		config.DB_FILE = "devserver.db"
	}

	return config, nil
}

func durationEnv(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		log.Printf("Notice: invalid %s=%q, using default", key, raw)
		return def
	}
	return time.Duration(secs) * time.Second
}

func intEnv(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func floatEnv(key string, def float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return def
	}
	return f
}
