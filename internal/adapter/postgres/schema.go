package postgres

import (
	"context"
	"fmt"

	"github.com/couchcryptid/bikeshare-etl/internal/domain"
)

const createRidesRaw = `CREATE TABLE IF NOT EXISTS rides_raw (
    started_at           TIMESTAMP,
    ended_at             TIMESTAMP,
    start_station_id     INTEGER,
    start_station_name   TEXT,
    end_station_id       INTEGER,
    end_station_name     TEXT,
    start_lat            NUMERIC(9,6),
    start_lng            NUMERIC(9,6),
    end_lat              NUMERIC(9,6),
    end_lng              NUMERIC(9,6),
    rideable_type        TEXT,
    member_casual        TEXT
)`

const createDailyWeather = `CREATE TABLE IF NOT EXISTS daily_weather (
    time DATE,
    weather_code INTEGER,
    temperature_2m_mean NUMERIC(4,1),
    temperature_2m_max  NUMERIC(4,1),
    temperature_2m_min  NUMERIC(4,1),
    apparent_temperature_mean NUMERIC(4,1),
    apparent_temperature_max  NUMERIC(4,1),
    apparent_temperature_min  NUMERIC(4,1),
    sunrise TIMESTAMP,
    sunset  TIMESTAMP,
    daylight_duration NUMERIC(8,2),
    sunshine_duration NUMERIC(8,2),
    precipitation_sum NUMERIC(5,2),
    rain_sum          NUMERIC(5,2),
    snowfall_sum      NUMERIC(5,2),
    precipitation_hours NUMERIC(4,1),
    wind_speed_10m_max NUMERIC(4,1),
    wind_gusts_10m_max NUMERIC(4,1),
    wind_direction_10m_dominant INTEGER,
    wind_gusts_10m_mean NUMERIC(4,1),
    wind_speed_10m_mean NUMERIC(4,1),
    wind_gusts_10m_min  NUMERIC(4,1),
    wind_speed_10m_min  NUMERIC(4,1),
    winddirection_10m_dominant INTEGER,
    dew_point_2m_mean NUMERIC(4,1),
    cloud_cover_mean INTEGER,
    cloud_cover_max  INTEGER,
    cloud_cover_min  INTEGER,
    relative_humidity_2m_mean INTEGER,
    relative_humidity_2m_max  INTEGER,
    relative_humidity_2m_min  INTEGER,
    pressure_msl_mean     NUMERIC(6,1),
    surface_pressure_mean NUMERIC(6,1)
)`

const createHourlyWeather = `CREATE TABLE IF NOT EXISTS hourly_weather (
    time TIMESTAMP,
    temperature_2m NUMERIC(4,1),
    weather_code INTEGER,
    relative_humidity_2m INTEGER,
    apparent_temperature NUMERIC(4,1),
    precipitation NUMERIC(5,2),
    rain          NUMERIC(5,2),
    snowfall      NUMERIC(5,2),
    snow_depth    NUMERIC(5,2),
    pressure_msl     NUMERIC(6,1),
    surface_pressure NUMERIC(6,1),
    cloud_cover INTEGER,
    wind_speed_10m NUMERIC(4,1),
    wind_direction_10m INTEGER,
    wind_direction_100m INTEGER,
    wind_gusts_10m NUMERIC(4,1),
    wind_speed_100m NUMERIC(4,1),
    is_day INTEGER,
    dew_point_2m NUMERIC(4,1),
    cloud_cover_low INTEGER,
    cloud_cover_mid INTEGER,
    cloud_cover_high INTEGER,
    sunshine_duration NUMERIC(6,1)
)`

var tableDDL = []struct {
	table string
	ddl   string
}{
	{domain.TripsTable, createRidesRaw},
	{domain.DailyWeatherTable, createDailyWeather},
	{domain.HourlyWeatherTable, createHourlyWeather},
}

// CreateTables creates the trip and weather tables if they do not exist.
func (d *DB) CreateTables(ctx context.Context) error {
	for _, t := range tableDDL {
		if _, err := d.q.ExecContext(ctx, t.ddl); err != nil {
			return fmt.Errorf("create table %s: %w", t.table, err)
		}
	}
	d.logger.Info("tables ready")
	return nil
}

// IsPopulated reports whether table exists in schema public and has at least
// one row.
func (d *DB) IsPopulated(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := d.q.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = 'public' AND table_name = $1)`,
		table,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s exists: %w", table, err)
	}
	if !exists {
		d.logger.Info("table does not exist", "table", table)
		return false, nil
	}

	var hasRows bool
	err = d.q.QueryRowContext(ctx,
		fmt.Sprintf("SELECT EXISTS (SELECT 1 FROM %s LIMIT 1)", quoteIdent(table)),
	).Scan(&hasRows)
	if err != nil {
		return false, fmt.Errorf("check table %s rows: %w", table, err)
	}
	return hasRows, nil
}
