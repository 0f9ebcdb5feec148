package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envOr parses the variable at key, falling back to def when it is unset
// or does not parse.
func envOr[T any](key string, def T, parse func(string) (T, error)) T {
	value, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	v, err := parse(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return v
}

func getEnv(key, defaultVal string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	return envOr(key, defaultVal, strconv.Atoi)
}

func getEnvAsBool(key string, defaultVal bool) bool {
	return envOr(key, defaultVal, strconv.ParseBool)
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	return envOr(key, defaultVal, time.ParseDuration)
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	return envOr(key, defaultVal, func(s string) (float64, error) {
		return strconv.ParseFloat(s, 64)
	})
}

// getEnvAsStringSlice splits a comma separated list, dropping blanks.
func getEnvAsStringSlice(key string, defaults []string) []string {
	return envOr(key, defaults, func(value string) ([]string, error) {
		var out []string
		for _, part := range strings.Split(value, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
		if len(out) == 0 {
			return defaults, nil
		}
		return out, nil
	})
}
