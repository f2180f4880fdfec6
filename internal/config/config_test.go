package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAdminPassword = "admin-secret"
	testROPassword    = "ro-secret"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PGPW", testAdminPassword)
	t.Setenv("ROUSRPW", testROPassword)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, testAdminPassword, cfg.PGPassword)
	assert.Empty(t, cfg.PGHost)
	assert.True(t, cfg.ProvisionDatabase())
	assert.Equal(t, 5432, cfg.PGPort)
	assert.Equal(t, "postgres", cfg.PGUser)
	assert.Equal(t, "bikesharedb", cfg.PGDatabase)
	assert.Equal(t, "require", cfg.PGSSLMode)
	assert.Equal(t, "us-east-1", cfg.AWSRegion)
	assert.Equal(t, "bikesharedb", cfg.RDSInstance)
	assert.Empty(t, cfg.SecurityGroupIDs)
	assert.Equal(t, "capitalbikeshare-data", cfg.S3Bucket)
	assert.Equal(t, "bikeshare_csv", cfg.CSVDir)
	assert.False(t, cfg.AllowUnknownShape)
	assert.Equal(t, "https://archive-api.open-meteo.com/v1/archive", cfg.WeatherURL)
	assert.Equal(t, 60*time.Second, cfg.WeatherTimeout)
	assert.InDelta(t, 38.8951, cfg.WeatherLatitude, 1e-9)
	assert.InDelta(t, -77.0364, cfg.WeatherLongitude, 1e-9)
	assert.Equal(t, "2010-10-20", cfg.WeatherStartDate)
	assert.Equal(t, "2025-11-30", cfg.WeatherEndDate)
	assert.Equal(t, "America/New_York", cfg.WeatherTimezone)
	assert.Equal(t, "rouser", cfg.ROUser)
	assert.Equal(t, testROPassword, cfg.ROPassword)
	assert.Equal(t, 10, cfg.ROConnectionLimit)
	assert.Empty(t, cfg.HTTPAddr)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "bikeshare-etl-stages", cfg.KafkaTopic)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_CustomEnv(t *testing.T) {
	setRequired(t)
	t.Setenv("PG_HOST", "localhost")
	t.Setenv("PG_PORT", "15432")
	t.Setenv("PG_SSLMODE", "disable")
	t.Setenv("RDS_SECURITY_GROUP_IDS", "sg-1, sg-2,")
	t.Setenv("S3_PREFIX", "2020")
	t.Setenv("CSV_DIR", "/tmp/trips")
	t.Setenv("TRIPS_ALLOW_UNKNOWN_SHAPE", "true")
	t.Setenv("WEATHER_TIMEOUT", "5s")
	t.Setenv("WEATHER_START_DATE", "2020-01-01")
	t.Setenv("WEATHER_END_DATE", "2020-01-31")
	t.Setenv("RO_ROLE", "analyst")
	t.Setenv("RO_CONNECTION_LIMIT", "3")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://collector:4318")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.PGHost)
	assert.False(t, cfg.ProvisionDatabase())
	assert.Equal(t, 15432, cfg.PGPort)
	assert.Equal(t, "disable", cfg.PGSSLMode)
	assert.Equal(t, []string{"sg-1", "sg-2"}, cfg.SecurityGroupIDs)
	assert.Equal(t, "2020", cfg.S3Prefix)
	assert.Equal(t, "/tmp/trips", cfg.CSVDir)
	assert.True(t, cfg.AllowUnknownShape)
	assert.Equal(t, 5*time.Second, cfg.WeatherTimeout)
	assert.Equal(t, "2020-01-01", cfg.WeatherStartDate)
	assert.Equal(t, "2020-01-31", cfg.WeatherEndDate)
	assert.Equal(t, "analyst", cfg.ROUser)
	assert.Equal(t, 3, cfg.ROConnectionLimit)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "http://collector:4318", cfg.OTLPEndpoint)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoad_MissingAdminPassword(t *testing.T) {
	t.Setenv("PGPW", "")
	t.Setenv("ROUSRPW", testROPassword)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PGPW")
}

func TestLoad_MissingReadOnlyPassword(t *testing.T) {
	t.Setenv("PGPW", testAdminPassword)
	t.Setenv("ROUSRPW", "")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ROUSRPW")
}

func TestLoad_InvalidShutdownTimeout(t *testing.T) {
	setRequired(t)
	t.Setenv("SHUTDOWN_TIMEOUT", "not-a-duration")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SHUTDOWN_TIMEOUT")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"WEATHER_TIMEOUT", "bad", "WEATHER_TIMEOUT"},
		{"WEATHER_TIMEOUT", "-1s", "WEATHER_TIMEOUT"},
		{"PG_PORT", "port", "PG_PORT"},
		{"RO_CONNECTION_LIMIT", "0", "RO_CONNECTION_LIMIT"},
		{"WEATHER_LATITUDE", "north", "WEATHER_LATITUDE"},
		{"WEATHER_START_DATE", "10/20/2010", "WEATHER_START_DATE"},
		{"WEATHER_END_DATE", "2009-01-01", "WEATHER_END_DATE"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
