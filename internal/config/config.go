package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host     string
	Port     int
	LogLevel string

	DevMode        bool
	CORSOrigins    []string // exact origins or hostnames; ignored in dev mode
	WSReadBuf      int
	WSWriteBuf     int
	WSMaxMsg       int64
	Heartbeat      time.Duration
	WSWriteTimeout time.Duration

	WSRatePerMin   int
	HTTPRatePerMin int
	MetricsRoute   string

	DailyAPIKey string
	DailyAPIURL string

	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration

	TLSCertFile string
	TLSKeyFile  string
}

// Load reads an optional .env file from the working directory and then the environment.
// Variables already set in the environment win over the file.
func Load() Config {
	_ = godotenv.Load()
	return FromEnv()
}

func FromEnv() Config {
	return Config{
		Host:     getenv("HOST", "0.0.0.0"),
		Port:     getenvInt("PORT", 8080),
		LogLevel: getenv("LOG_LEVEL", "info"),

		DevMode:        getenv("DEV_MODE", "0") == "1",
		CORSOrigins:    getenvList("CORS_ORIGINS"),
		WSReadBuf:      getenvInt("WS_READ_BUF", 64<<10),
		WSWriteBuf:     getenvInt("WS_WRITE_BUF", 64<<10),
		WSMaxMsg:       int64(getenvInt("WS_MAX_MSG", 1<<20)),
		Heartbeat:      getenvDur("HEARTBEAT", 60*time.Second),
		WSWriteTimeout: getenvDur("WS_WRITE_TIMEOUT", 10*time.Second),

		WSRatePerMin:   getenvInt("WS_RATE_PER_MIN", 0),
		HTTPRatePerMin: getenvInt("HTTP_RATE_PER_MIN", 0),
		MetricsRoute:   getenv("METRICS_ROUTE", "/metrics"),

		DailyAPIKey: getenv("DAILY_API_KEY", ""),
		DailyAPIURL: getenv("DAILY_API_URL", "https://api.daily.co/v1"),

		ReadHeaderTimeout: getenvDur("READ_HEADER_TIMEOUT", 5*time.Second),
		WriteTimeout:      getenvDur("WRITE_TIMEOUT", 0),
		IdleTimeout:       getenvDur("IDLE_TIMEOUT", 120*time.Second),
		ShutdownTimeout:   getenvDur("SHUTDOWN_TIMEOUT", 10*time.Second),

		TLSCertFile: getenv("TLS_CERT_FILE", ""),
		TLSKeyFile:  getenv("TLS_KEY_FILE", ""),
	}
}

func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT out of range: %d", c.Port))
	}
	if c.Heartbeat <= 0 {
		errs = append(errs, errors.New("HEARTBEAT must be positive"))
	}
	if c.WSMaxMsg <= 0 {
		errs = append(errs, errors.New("WS_MAX_MSG must be positive"))
	}
	if (c.TLSCertFile == "") != (c.TLSKeyFile == "") {
		errs = append(errs, errors.New("TLS_CERT_FILE and TLS_KEY_FILE must be set together"))
	}
	return errors.Join(errs...)
}

func (c Config) BindAddr() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// helpers

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func getenvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
func getenvDur(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
func getenvList(k string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(k), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
