package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/i474232898/regional-weather/internal/common"
	"github.com/i474232898/regional-weather/internal/weather"
	"github.com/i474232898/regional-weather/internal/weather/providers"
)

// Store backends.
const (
	StoreFile   = "file"
	StoreMemory = "memory"
)

type AppConfig struct {
	Port string

	// Regional store.
	StoreBackend string
	DataDir      string

	// Provider selection and credentials.
	Provider          string
	WeatherAPIKey     string
	WeatherAPIURL     string
	OpenWeatherAPIKey string
	OpenWeatherAPIURL string
	OpenWeatherGeoURL string
	RestCountriesURL  string
	GeocoderAPIKey    string
	OpenMeteoAPIURL   string

	// HTTPTimeout bounds a single outbound HTTP exchange; FetchTimeout bounds
	// a whole provider call for one city, retries included.
	HTTPTimeout  time.Duration
	FetchTimeout time.Duration

	CityConcurrency int
	TemperatureMin  float64
	TemperatureMax  float64

	// Task gateway.
	TaskWorkers     int
	TaskQueueSize   int
	TaskMaxAttempts int
	TaskRunTimeout  time.Duration
	TaskResultTTL   time.Duration

	// Redis status backend; empty address keeps task state in memory.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// FetchInterval controls how often the scheduled cities are ingested (0 = off).
	FetchInterval   time.Duration
	ScheduledCities []string

	LogLevel  string
	LogFormat string
}

var defaults = map[string]any{
	"PORT":              "8080",
	"STORE_BACKEND":     StoreFile,
	"DATA_DIR":          "weather_data",
	"WEATHER_PROVIDER":  providers.KindAuto,
	"HTTP_TIMEOUT":      "10s",
	"FETCH_TIMEOUT":     "15s",
	"CITY_CONCURRENCY":  "4",
	"TEMP_MIN_C":        strconv.FormatFloat(weather.DefaultMinTemperatureC, 'f', -1, 64),
	"TEMP_MAX_C":        strconv.FormatFloat(weather.DefaultMaxTemperatureC, 'f', -1, 64),
	"TASK_WORKERS":      "4",
	"TASK_QUEUE_SIZE":   "100",
	"TASK_MAX_ATTEMPTS": "1",
	"TASK_RUN_TIMEOUT":  "5m",
	"TASK_RESULT_TTL":   "24h",
	"REDIS_DB":          "0",
	"FETCH_INTERVAL":    "0",
	"LOG_LEVEL":         "info",
	"LOG_FORMAT":        "text",
}

// Load reads configuration from the environment (and a .env file, if any)
// with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.AutomaticEnv()

	r := reader{v: v}
	cfg := &AppConfig{
		Port:              v.GetString("PORT"),
		StoreBackend:      strings.ToLower(v.GetString("STORE_BACKEND")),
		DataDir:           v.GetString("DATA_DIR"),
		Provider:          v.GetString("WEATHER_PROVIDER"),
		WeatherAPIKey:     v.GetString("WEATHERAPI_API_KEY"),
		WeatherAPIURL:     v.GetString("WEATHERAPI_API_URL"),
		OpenWeatherAPIKey: v.GetString("OPENWEATHER_API_KEY"),
		OpenWeatherAPIURL: v.GetString("OPENWEATHER_API_URL"),
		OpenWeatherGeoURL: v.GetString("OPENWEATHER_GEO_URL"),
		RestCountriesURL:  v.GetString("RESTCOUNTRIES_URL"),
		GeocoderAPIKey:    v.GetString("GEOCODER_API_KEY"),
		OpenMeteoAPIURL:   v.GetString("OPENMETEO_API_URL"),

		HTTPTimeout:  r.duration("HTTP_TIMEOUT"),
		FetchTimeout: r.duration("FETCH_TIMEOUT"),

		CityConcurrency: r.positiveInt("CITY_CONCURRENCY"),
		TemperatureMin:  r.float("TEMP_MIN_C"),
		TemperatureMax:  r.float("TEMP_MAX_C"),

		TaskWorkers:     r.positiveInt("TASK_WORKERS"),
		TaskQueueSize:   r.positiveInt("TASK_QUEUE_SIZE"),
		TaskMaxAttempts: r.positiveInt("TASK_MAX_ATTEMPTS"),
		TaskRunTimeout:  r.duration("TASK_RUN_TIMEOUT"),
		TaskResultTTL:   r.duration("TASK_RESULT_TTL"),

		RedisAddr:     v.GetString("REDIS_ADDR"),
		RedisPassword: v.GetString("REDIS_PASSWORD"),
		RedisDB:       r.int("REDIS_DB"),

		FetchInterval:   r.duration("FETCH_INTERVAL"),
		ScheduledCities: common.SplitList(v.GetString("SCHEDULED_CITIES")),

		LogLevel:  v.GetString("LOG_LEVEL"),
		LogFormat: v.GetString("LOG_FORMAT"),
	}
	if r.err != nil {
		return nil, r.err
	}

	if cfg.StoreBackend != StoreFile && cfg.StoreBackend != StoreMemory {
		return nil, fmt.Errorf("invalid STORE_BACKEND %q: use %q or %q", cfg.StoreBackend, StoreFile, StoreMemory)
	}
	if cfg.StoreBackend == StoreFile && cfg.DataDir == "" {
		return nil, fmt.Errorf("DATA_DIR must not be empty")
	}
	if cfg.TemperatureMin >= cfg.TemperatureMax {
		return nil, fmt.Errorf("TEMP_MIN_C (%g) must be lower than TEMP_MAX_C (%g)", cfg.TemperatureMin, cfg.TemperatureMax)
	}

	return cfg, nil
}

// TemperatureRange returns the accepted reading range.
func (c *AppConfig) TemperatureRange() weather.TemperatureRange {
	return weather.TemperatureRange{Min: c.TemperatureMin, Max: c.TemperatureMax}
}

// ProviderSettings returns the settings for providers.Build.
func (c *AppConfig) ProviderSettings() providers.Settings {
	return providers.Settings{
		Kind:              c.Provider,
		WeatherAPIKey:     c.WeatherAPIKey,
		WeatherAPIURL:     c.WeatherAPIURL,
		OpenWeatherAPIKey: c.OpenWeatherAPIKey,
		OpenWeatherURL:    c.OpenWeatherAPIURL,
		OpenWeatherGeoURL: c.OpenWeatherGeoURL,
		CountriesURL:      c.RestCountriesURL,
		GeocoderAPIKey:    c.GeocoderAPIKey,
		OpenMeteoURL:      c.OpenMeteoAPIURL,
	}
}

// reader parses typed values and keeps the first error.
type reader struct {
	v   *viper.Viper
	err error
}

func (r *reader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("invalid %s: %w", key, err)
	}
}

func (r *reader) duration(key string) time.Duration {
	s := r.v.GetString(key)
	if s == "0" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		r.fail(key, err)
		return 0
	}
	if d < 0 {
		r.fail(key, fmt.Errorf("negative duration %s", d))
	}
	return d
}

func (r *reader) int(key string) int {
	n, err := strconv.Atoi(strings.TrimSpace(r.v.GetString(key)))
	if err != nil {
		r.fail(key, err)
	}
	return n
}

func (r *reader) positiveInt(key string) int {
	n := r.int(key)
	if n <= 0 {
		r.fail(key, fmt.Errorf("must be positive, got %d", n))
	}
	return n
}

func (r *reader) float(key string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(r.v.GetString(key)), 64)
	if err != nil {
		r.fail(key, err)
	}
	return f
}
