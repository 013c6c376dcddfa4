package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env             string
	HTTPPort        string
	APIBaseURL      string
	APITimeout      time.Duration
	SubmitTimeout   time.Duration
	GeoProvider     string
	GeoLatitude     float64
	GeoLongitude    float64
	GeoAccuracy     float64
	GeoLookupURL    string
	GeoTimeout      time.Duration
	GeoHighAccuracy bool
	CameraDevice    string
	CameraSource    string
	CameraCommand   string
	StateBackend    string
	RedisAddr       string
	JournalDSN      string
	JournalKeep     time.Duration
	EventsBackend   string
	RateLimitPerMin int
	CORSOrigins     []string
	Timezone        string
	LogLevel        string
	LogFormat       string
}

// Load returns application config populated from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func Load() App {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("config: reading .env failed: %v", err)
	}

	return App{
		Env:             getEnv("APP_ENV", "dev"),
		HTTPPort:        getEnv("HTTP_PORT", "8090"),
		APIBaseURL:      getEnv("API_BASE_URL", "http://localhost:3000"),
		APITimeout:      durationEnv("API_TIMEOUT", 15*time.Second),
		SubmitTimeout:   durationEnv("SUBMIT_TIMEOUT", 60*time.Second),
		GeoProvider:     getEnv("GEO_PROVIDER", "static"),
		GeoLatitude:     floatEnv("GEO_LATITUDE", 0),
		GeoLongitude:    floatEnv("GEO_LONGITUDE", 0),
		GeoAccuracy:     floatEnv("GEO_ACCURACY", 25),
		GeoLookupURL:    getEnv("GEO_LOOKUP_URL", "http://ip-api.com/json/"),
		GeoTimeout:      durationEnv("GEO_TIMEOUT", 5*time.Second),
		GeoHighAccuracy: boolEnv("GEO_HIGH_ACCURACY", true),
		CameraDevice:    getEnv("CAMERA_DEVICE", "command"),
		CameraSource:    getEnv("CAMERA_SOURCE", "/dev/video0"),
		CameraCommand:   getEnv("CAMERA_COMMAND", "ffmpeg -loglevel error -f v4l2 -i {source} -frames:v 1 -f image2pipe -vcodec mjpeg -"),
		StateBackend:    getEnv("STATE_BACKEND", "memory"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		JournalDSN:      getEnv("JOURNAL_DSN", "sqlite3://./attendclient.db"),
		JournalKeep:     durationEnv("JOURNAL_KEEP", 30*24*time.Hour),
		EventsBackend:   getEnv("EVENTS_BACKEND", "memory"),
		RateLimitPerMin: intEnv("RATE_LIMIT_PER_MIN", 120),
		CORSOrigins:     listEnv("CORS_ORIGINS"),
		Timezone:        getEnv("APP_TIMEZONE", "Local"),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFormat:       getEnv("LOG_FORMAT", "text"),
	}
}

// Location resolves Timezone, falling back to the host zone.
func (a App) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		log.Printf("invalid timezone %q: %v, using local time", a.Timezone, err)
		return time.Local
	}
	return loc
}

// IsProduction reports whether the console should run gin in release mode.
func (a App) IsProduction() bool {
	return a.Env == "production" || a.Env == "prod"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			log.Printf("invalid duration for %s: %v, using fallback %s", key, err, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func boolEnv(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			log.Printf("invalid bool for %s, using fallback %v", key, fallback)
			return fallback
		}
		return parsed
	}
	return fallback
}

func listEnv(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		log.Printf("invalid int for %s, using fallback %d", key, fallback)
	}
	return fallback
}

func floatEnv(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		parsed, err := strconv.ParseFloat(val, 64)
		if err != nil {
			log.Printf("invalid float for %s, using fallback %v", key, fallback)
			return fallback
		}
		return parsed
	}
	return fallback
}
