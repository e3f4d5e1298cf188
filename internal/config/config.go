package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// AppConfig is built once at start-up and passed to every component.
type AppConfig struct {
	// Location is the place name observations are requested for.
	Location string `yaml:"location" env:"WEATHER_LOCATION" validate:"required"`

	// Provider selects the observation source.
	Provider string `yaml:"provider" env:"WEATHER_PROVIDER" validate:"oneof=fmi openmeteo"`

	// FetchInterval is the sleep between poll cycles.
	FetchInterval time.Duration `yaml:"fetch_interval" env:"FETCH_INTERVAL"`

	// FetchSchedule is an optional cron expression. When set it replaces
	// the fixed sleep between cycles.
	FetchSchedule string `yaml:"fetch_schedule" env:"FETCH_SCHEDULE"`

	// HTTPTimeout bounds every outbound provider request.
	HTTPTimeout time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`

	Database  DatabaseConfig  `yaml:"database"`
	FMI       FMIConfig       `yaml:"fmi"`
	OpenMeteo OpenMeteoConfig `yaml:"openmeteo"`
	Logging   LoggingConfig   `yaml:"logging"`
	API       APIConfig       `yaml:"api"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
}

// DatabaseConfig describes the relational store observations are written to.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"DB_DRIVER" validate:"oneof=pgx sqlite3"`
	Name     string `yaml:"name" env:"DBNAME" validate:"required"`
	User     string `yaml:"user" env:"DBUSER" validate:"required"`
	Host     string `yaml:"host" env:"DB_HOST"`
	Port     int    `yaml:"port" env:"DB_PORT" validate:"gte=0,lte=65535"`
	Password string `yaml:"password" env:"DB_PASSWORD"`
	Table    string `yaml:"table" env:"DB_TABLE" validate:"required"`

	// ConnectAttempts is the total number of connection tries per operation.
	ConnectAttempts int `yaml:"connect_attempts" env:"DB_CONNECT_ATTEMPTS" validate:"gte=1"`
	// ConnectBackoff is the fixed wait between connection tries.
	ConnectBackoff time.Duration `yaml:"connect_backoff" env:"DB_CONNECT_BACKOFF"`
}

// FMIConfig configures the FMI Open Data WFS client.
type FMIConfig struct {
	BaseURL     string `yaml:"base_url" env:"FMI_BASE_URL" validate:"required,url"`
	StoredQuery string `yaml:"stored_query" env:"FMI_STORED_QUERY" validate:"required"`
}

// OpenMeteoConfig configures the Open-Meteo client.
type OpenMeteoConfig struct {
	BaseURL      string `yaml:"base_url" env:"OPENMETEO_BASE_URL" validate:"required,url"`
	GeocodingURL string `yaml:"geocoding_url" env:"OPENMETEO_GEOCODING_URL" validate:"required,url"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level string `yaml:"level" env:"LOG_LEVEL"`
}

// APIConfig configures the optional read API. An empty Port disables it.
type APIConfig struct {
	Port string `yaml:"port" env:"PORT" validate:"omitempty,numeric"`
}

// InfluxDBConfig configures the optional InfluxDB mirror. An empty URL disables it.
type InfluxDBConfig struct {
	URL    string `yaml:"url" env:"INFLUXDB_URL" validate:"omitempty,url"`
	Token  string `yaml:"token" env:"INFLUXDB_TOKEN" validate:"required_with=URL"`
	Org    string `yaml:"org" env:"INFLUXDB_ORG" validate:"required_with=URL"`
	Bucket string `yaml:"bucket" env:"INFLUXDB_BUCKET" validate:"required_with=URL"`
}

// MQTTConfig configures the optional MQTT mirror. An empty Broker disables it.
type MQTTConfig struct {
	Broker      string `yaml:"broker" env:"MQTT_BROKER"`
	ClientID    string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
	TopicPrefix string `yaml:"topic_prefix" env:"MQTT_TOPIC_PREFIX"`
	Username    string `yaml:"username" env:"MQTT_USERNAME"`
	Password    string `yaml:"password" env:"MQTT_PASSWORD"`
	QoS         int    `yaml:"qos" env:"MQTT_QOS" validate:"gte=0,lte=2"`
}

var (
	validate = newValidator()

	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func newValidator() *validator.Validate {
	v := validator.New()
	// Report the environment variable name for failing fields.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return fld.Tag.Get("env")
	})
	return v
}

// Load reads configuration with the following precedence (lowest first):
//  1. Defaults
//  2. YAML file named by CONFIG_FILE, if set
//  3. Environment variables (a .env file in the working directory is loaded first)
func Load() (*AppConfig, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a configuration with every optional setting filled in.
func Default() *AppConfig {
	return &AppConfig{
		Location:      "Kirkkonummi",
		Provider:      "fmi",
		FetchInterval: 15 * time.Minute,
		HTTPTimeout:   30 * time.Second,
		Database: DatabaseConfig{
			Driver:          "pgx",
			Table:           "temperature",
			ConnectAttempts: 5,
			ConnectBackoff:  2 * time.Second,
		},
		FMI: FMIConfig{
			BaseURL:     "https://opendata.fmi.fi/wfs",
			StoredQuery: "fmi::observations::weather::timevaluepair",
		},
		OpenMeteo: OpenMeteoConfig{
			BaseURL:      "https://api.open-meteo.com/v1/forecast",
			GeocodingURL: "https://geocoding-api.open-meteo.com/v1/search",
		},
		Logging: LoggingConfig{Level: "info"},
		MQTT: MQTTConfig{
			ClientID:    "fmi-temperature-logger",
			TopicPrefix: "weather",
			QoS:         1,
		},
	}
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func (c *AppConfig) applyEnv() error {
	setString(&c.Location, "WEATHER_LOCATION")
	setString(&c.Provider, "WEATHER_PROVIDER")
	setString(&c.FetchSchedule, "FETCH_SCHEDULE")

	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.Name, "DBNAME")
	setString(&c.Database.User, "DBUSER")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Table, "DB_TABLE")

	setString(&c.FMI.BaseURL, "FMI_BASE_URL")
	setString(&c.FMI.StoredQuery, "FMI_STORED_QUERY")
	setString(&c.OpenMeteo.BaseURL, "OPENMETEO_BASE_URL")
	setString(&c.OpenMeteo.GeocodingURL, "OPENMETEO_GEOCODING_URL")

	setString(&c.Logging.Level, "LOG_LEVEL")
	setString(&c.API.Port, "PORT")

	setString(&c.InfluxDB.URL, "INFLUXDB_URL")
	setString(&c.InfluxDB.Token, "INFLUXDB_TOKEN")
	setString(&c.InfluxDB.Org, "INFLUXDB_ORG")
	setString(&c.InfluxDB.Bucket, "INFLUXDB_BUCKET")

	setString(&c.MQTT.Broker, "MQTT_BROKER")
	setString(&c.MQTT.ClientID, "MQTT_CLIENT_ID")
	setString(&c.MQTT.TopicPrefix, "MQTT_TOPIC_PREFIX")
	setString(&c.MQTT.Username, "MQTT_USERNAME")
	setString(&c.MQTT.Password, "MQTT_PASSWORD")

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"FETCH_INTERVAL", &c.FetchInterval},
		{"HTTP_TIMEOUT", &c.HTTPTimeout},
		{"DB_CONNECT_BACKOFF", &c.Database.ConnectBackoff},
	}
	for _, d := range durations {
		if err := setDuration(d.dst, d.key); err != nil {
			return err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"DB_PORT", &c.Database.Port},
		{"DB_CONNECT_ATTEMPTS", &c.Database.ConnectAttempts},
		{"MQTT_QOS", &c.MQTT.QoS},
	}
	for _, i := range ints {
		if err := setInt(i.dst, i.key); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks required settings and value ranges.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				if fe.Tag() == "required" {
					msgs = append(msgs, "missing required setting "+fe.Field())
					continue
				}
				msgs = append(msgs, fmt.Sprintf("invalid %s: failed %q check", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("invalid configuration: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.FetchInterval <= 0 {
		return fmt.Errorf("invalid configuration: FETCH_INTERVAL must be positive, got %s", c.FetchInterval)
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("invalid configuration: HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if c.Database.ConnectBackoff < 0 {
		return fmt.Errorf("invalid configuration: DB_CONNECT_BACKOFF must not be negative")
	}
	if !identifierRe.MatchString(c.Database.Table) {
		return fmt.Errorf("invalid configuration: DB_TABLE %q is not a plain SQL identifier", c.Database.Table)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}
