package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	// Admin connection. Host empty means the RDS instance is provisioned and its
	// endpoint used.
	PGPassword string
	PGHost     string
	PGPort     int
	PGUser     string
	PGDatabase string
	PGSSLMode  string

	// RDS provisioning.
	AWSRegion        string
	RDSInstance      string
	SecurityGroupIDs []string
	SubnetGroup      string

	// Trip archives.
	S3Bucket          string
	S3Prefix          string
	CSVDir            string
	AllowUnknownShape bool

	// Open-Meteo historical archive.
	WeatherURL       string
	WeatherTimeout   time.Duration
	WeatherLatitude  float64
	WeatherLongitude float64
	WeatherStartDate string
	WeatherEndDate   string
	WeatherTimezone  string

	// Read-only analytics role.
	ROUser            string
	ROPassword        string
	ROConnectionLimit int

	// Optional ops surfaces. Empty disables them.
	HTTPAddr     string
	KafkaBrokers []string
	KafkaTopic   string
	OTLPEndpoint string

	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

const dateLayout = "2006-01-02"

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	weatherTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("WEATHER_TIMEOUT", "60s"))
	if err != nil || weatherTimeout <= 0 {
		return nil, errors.New("invalid WEATHER_TIMEOUT")
	}

	pgPort, err := parsePositiveInt("PG_PORT", "5432")
	if err != nil {
		return nil, err
	}
	connLimit, err := parsePositiveInt("RO_CONNECTION_LIMIT", "10")
	if err != nil {
		return nil, err
	}
	lat, err := parseFloat("WEATHER_LATITUDE", "38.8951")
	if err != nil {
		return nil, err
	}
	lon, err := parseFloat("WEATHER_LONGITUDE", "-77.0364")
	if err != nil {
		return nil, err
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	cfg := &Config{
		PGPassword: os.Getenv("PGPW"),
		PGHost:     os.Getenv("PG_HOST"),
		PGPort:     pgPort,
		PGUser:     sharedcfg.EnvOrDefault("PG_USER", "postgres"),
		PGDatabase: sharedcfg.EnvOrDefault("PG_DATABASE", "bikesharedb"),
		PGSSLMode:  sharedcfg.EnvOrDefault("PG_SSLMODE", "require"),

		AWSRegion:        sharedcfg.EnvOrDefault("AWS_REGION", "us-east-1"),
		RDSInstance:      sharedcfg.EnvOrDefault("RDS_INSTANCE", "bikesharedb"),
		SecurityGroupIDs: splitList(os.Getenv("RDS_SECURITY_GROUP_IDS")),
		SubnetGroup:      os.Getenv("RDS_SUBNET_GROUP"),

		S3Bucket:          sharedcfg.EnvOrDefault("S3_BUCKET", "capitalbikeshare-data"),
		S3Prefix:          os.Getenv("S3_PREFIX"),
		CSVDir:            sharedcfg.EnvOrDefault("CSV_DIR", "bikeshare_csv"),
		AllowUnknownShape: os.Getenv("TRIPS_ALLOW_UNKNOWN_SHAPE") == "true",

		WeatherURL:       sharedcfg.EnvOrDefault("WEATHER_URL", "https://archive-api.open-meteo.com/v1/archive"),
		WeatherTimeout:   weatherTimeout,
		WeatherLatitude:  lat,
		WeatherLongitude: lon,
		WeatherStartDate: sharedcfg.EnvOrDefault("WEATHER_START_DATE", "2010-10-20"),
		WeatherEndDate:   sharedcfg.EnvOrDefault("WEATHER_END_DATE", "2025-11-30"),
		WeatherTimezone:  sharedcfg.EnvOrDefault("WEATHER_TIMEZONE", "America/New_York"),

		ROUser:            sharedcfg.EnvOrDefault("RO_ROLE", "rouser"),
		ROPassword:        os.Getenv("ROUSRPW"),
		ROConnectionLimit: connLimit,

		HTTPAddr:     os.Getenv("HTTP_ADDR"),
		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "bikeshare-etl-stages"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
	}

	if cfg.PGPassword == "" {
		return nil, errors.New("PGPW is required")
	}
	if cfg.ROPassword == "" {
		return nil, errors.New("ROUSRPW is required")
	}
	if cfg.S3Bucket == "" {
		return nil, errors.New("S3_BUCKET is required")
	}
	if cfg.ROUser == "" {
		return nil, errors.New("RO_ROLE is required")
	}
	start, err := time.Parse(dateLayout, cfg.WeatherStartDate)
	if err != nil {
		return nil, errors.New("invalid WEATHER_START_DATE")
	}
	end, err := time.Parse(dateLayout, cfg.WeatherEndDate)
	if err != nil {
		return nil, errors.New("invalid WEATHER_END_DATE")
	}
	if end.Before(start) {
		return nil, errors.New("WEATHER_END_DATE is before WEATHER_START_DATE")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// ProvisionDatabase reports whether the RDS instance is managed by this run.
func (c *Config) ProvisionDatabase() bool {
	return c.PGHost == ""
}

func parsePositiveInt(key, def string) (int, error) {
	n, err := strconv.Atoi(sharedcfg.EnvOrDefault(key, def))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}

func parseFloat(key, def string) (float64, error) {
	f, err := strconv.ParseFloat(sharedcfg.EnvOrDefault(key, def), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return f, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
