package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	AuthSecret            string
	AccessTokenTTLMinutes int
	Policy                Policy
}

// Policy holds the store-level checkout rules the service enforces.
type Policy struct {
	TaxRatePercent          float64
	MaxDiscountPercent      float64
	MaxDiscountAmountCents  int64
	MaxPriceOverridePercent float64
	RequireOverrideReason   bool
	AllowNegativeStock      bool
	LowStockThreshold       int
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "480"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		Policy:                loadPolicy(),
	}

	return cfg
}

func loadPolicy() Policy {
	return Policy{
		TaxRatePercent:          getEnvFloat("TAX_RATE_PERCENT", 10),
		MaxDiscountPercent:      getEnvFloat("MAX_DISCOUNT_PERCENT", 50),
		MaxDiscountAmountCents:  getEnvInt64("MAX_DISCOUNT_AMOUNT_CENTS", 100000),
		MaxPriceOverridePercent: getEnvFloat("MAX_PRICE_OVERRIDE_PERCENT", 30),
		RequireOverrideReason:   getEnvBool("REQUIRE_OVERRIDE_REASON", true),
		AllowNegativeStock:      getEnvBool("ALLOW_NEGATIVE_STOCK", false),
		LowStockThreshold:       int(getEnvInt64("LOW_STOCK_THRESHOLD", 10)),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getEnvFloat(key string, fallback float64) float64 {
	val, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}

func getEnvInt64(key string, fallback int64) int64 {
	val, err := strconv.ParseInt(getEnv(key, ""), 10, 64)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}

func getEnvBool(key string, fallback bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
