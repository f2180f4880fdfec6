package domain

// Weather destination tables.
const (
	DailyWeatherTable  = "daily_weather"
	HourlyWeatherTable = "hourly_weather"
)

// TimeColumn keys both weather tables and leads every weather series.
const TimeColumn = "time"

// DailyMetrics are the daily Open-Meteo variables requested and stored.
var DailyMetrics = []string{
	"weather_code",
	"temperature_2m_mean",
	"temperature_2m_max",
	"temperature_2m_min",
	"apparent_temperature_mean",
	"apparent_temperature_max",
	"apparent_temperature_min",
	"sunrise",
	"sunset",
	"daylight_duration",
	"sunshine_duration",
	"precipitation_sum",
	"rain_sum",
	"snowfall_sum",
	"precipitation_hours",
	"wind_speed_10m_max",
	"wind_gusts_10m_max",
	"wind_direction_10m_dominant",
	"wind_gusts_10m_mean",
	"wind_speed_10m_mean",
	"wind_gusts_10m_min",
	"wind_speed_10m_min",
	"winddirection_10m_dominant",
	"dew_point_2m_mean",
	"cloud_cover_mean",
	"cloud_cover_max",
	"cloud_cover_min",
	"relative_humidity_2m_mean",
	"relative_humidity_2m_max",
	"relative_humidity_2m_min",
	"pressure_msl_mean",
	"surface_pressure_mean",
}

// HourlyMetrics are the hourly Open-Meteo variables requested and stored.
var HourlyMetrics = []string{
	"temperature_2m",
	"weather_code",
	"relative_humidity_2m",
	"apparent_temperature",
	"precipitation",
	"rain",
	"snowfall",
	"snow_depth",
	"pressure_msl",
	"surface_pressure",
	"cloud_cover",
	"wind_speed_10m",
	"wind_direction_10m",
	"wind_direction_100m",
	"wind_gusts_10m",
	"wind_speed_100m",
	"is_day",
	"dew_point_2m",
	"cloud_cover_low",
	"cloud_cover_mid",
	"cloud_cover_high",
	"sunshine_duration",
}

// DailyColumns is the daily_weather column order.
var DailyColumns = append([]string{TimeColumn}, DailyMetrics...)

// HourlyColumns is the hourly_weather column order.
var HourlyColumns = append([]string{TimeColumn}, HourlyMetrics...)
