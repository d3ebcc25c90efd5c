// File: internal/config/config.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

// Package config loads daemon settings from the environment, with an
// optional .env file for development setups.
package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file when present. Missing files are not an
// error; the environment always wins over file values.
func Load() {
	_ = godotenv.Load()
}

// GetEnv returns the value of key or def when unset or empty.
func GetEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// GetEnvInt returns the integer value of key or def when unset or not
// a number.
func GetEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

// GetEnvInt64 returns the 64 bit integer value of key or def.
func GetEnvInt64(key string, def int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return def
}
