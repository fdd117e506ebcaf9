package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Config holds application configuration values.
type Config struct {
	Secret      string
	HTTPPort    string
	DBDriver    string
	DatabaseDSN string
	TokenTTL    time.Duration
	BcryptCost  int

	APIPrefix   string
	UploadDir   string
	CORSOrigins []string
	MaxUpload   int64
	Location    *time.Location

	LogLevel  string
	LogFormat string

	KafkaBrokers []string
	KafkaTopic   string

	LoginRate  float64
	LoginBurst int
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Enable only behind a reverse proxy that overwrites those headers.
	TrustProxy bool

	AdminUsername string
	AdminPassword string
	MedicineCSV   string
}

// Load reads configuration from environment variables with reasonable defaults.
func Load() Config {
	cfg := Config{
		Secret:        getenv("SECRET", "dev_secret"),
		HTTPPort:      getenv("HTTP_PORT", "8080"),
		DBDriver:      strings.ToLower(getenv("DB_DRIVER", "sqlite")),
		TokenTTL:      durationEnv("TOKEN_TTL", time.Hour),
		BcryptCost:    intEnv("BCRYPT_COST", 10),
		APIPrefix:     getenv("API_PREFIX", "/api"),
		UploadDir:     getenv("UPLOAD_DIR", "static/uploads"),
		CORSOrigins:   splitList(getenv("CORS_ORIGINS", "*")),
		MaxUpload:     int64(intEnv("MAX_UPLOAD_MB", 5)) << 20,
		Location:      time.Local,
		LogLevel:      getenv("LOG_LEVEL", "info"),
		LogFormat:     getenv("LOG_FORMAT", "json"),
		KafkaBrokers:  splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getenv("KAFKA_TOPIC", "sale-events"),
		LoginRate:     floatEnv("LOGIN_RATE", 1),
		LoginBurst:    intEnv("LOGIN_BURST", 5),
		TrustProxy:    boolEnv("TRUSTED_PROXY", false),
		AdminUsername: getenv("ADMIN_USERNAME", "admin"),
		AdminPassword: getenv("ADMIN_PASSWORD", "admin123"),
		MedicineCSV:   os.Getenv("MEDICINE_CSV"),
	}

	// Validate that port is numeric.
	if _, err := strconv.Atoi(cfg.HTTPPort); err != nil {
		log.Warn().Msgf("invalid HTTP_PORT value %q, defaulting to 8080", cfg.HTTPPort)
		cfg.HTTPPort = "8080"
	}

	if cfg.DBDriver != "sqlite" && cfg.DBDriver != "mysql" {
		log.Warn().Msgf("unsupported DB_DRIVER %q, defaulting to sqlite", cfg.DBDriver)
		cfg.DBDriver = "sqlite"
	}

	cfg.DatabaseDSN = os.Getenv("DATABASE_DSN")
	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = defaultDSN(cfg.DBDriver)
	}

	if tz := os.Getenv("TIMEZONE"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			log.Warn().Err(err).Msgf("invalid TIMEZONE %q, using local time", tz)
		} else {
			cfg.Location = loc
		}
	}

	if cfg.APIPrefix != "" && !strings.HasPrefix(cfg.APIPrefix, "/") {
		cfg.APIPrefix = "/" + cfg.APIPrefix
	}
	cfg.APIPrefix = strings.TrimRight(cfg.APIPrefix, "/")

	return cfg
}

func defaultDSN(driver string) string {
	if driver == "sqlite" {
		return "file:apotek.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	}
	host := getenv("DB_HOST", "localhost")
	port := getenv("DB_PORT", "3306")
	user := getenv("DB_USER", "root")
	password := os.Getenv("DB_PASSWORD")
	name := getenv("DB_NAME", "apotek_db")
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC", user, password, host, port, name)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func intEnv(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		log.Warn().Msgf("invalid %s value %q, defaulting to %d", key, v, fallback)
		return fallback
	}
	return i
}

func floatEnv(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		log.Warn().Msgf("invalid %s value %q, defaulting to %g", key, v, fallback)
		return fallback
	}
	return f
}

func boolEnv(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Warn().Msgf("invalid %s value %q, defaulting to %t", key, v, fallback)
		return fallback
	}
	return b
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		log.Warn().Msgf("invalid %s value %q, defaulting to %s", key, v, fallback)
		return fallback
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
