// Package domain models Capital Bikeshare trip history and Open-Meteo weather
// data as stored in the analytics database.
//
// # Data Sources
//
// Trip history is published by Lyft as zip archives in the public
// "capitalbikeshare-data" S3 bucket, one archive per quarter (2010-2017) or per
// month (2018 onward). Each archive holds one or more CSV files at its top
// level, sometimes alongside a "__MACOSX/" metadata folder. The same CSV name
// occasionally appears in more than one archive.
//
// Weather comes from the Open-Meteo historical archive API as a single JSON
// document with a "daily" and an "hourly" series.
//
// # Trip Layouts
//
// Two export layouts exist. Files from before the 2020 system change use
// verbose headers:
//
//	Duration, Start date, End date, Start station number, Start station,
//	End station number, End station, Bike number, Member type
//
// Later files use the canonical snake_case layout:
//
//	ride_id, rideable_type, started_at, ended_at, start_station_name,
//	start_station_id, end_station_name, end_station_id, start_lat, start_lng,
//	end_lat, end_lng, member_casual
//
// [DetectShape] keys on the "Start date" header to pick the legacy mapping.
// Legacy files have no coordinates and no vehicle type; those fields are null.
//
// # Coercion Rules
//
// Values that do not parse become null and the row is kept:
//
//	started_at, ended_at         lenient timestamp parse (ISO, RFC 3339, US m/d/yyyy)
//	start/end_station_id         integer, or an integral float such as "31208.0", within int32
//	start/end_lat, start/end_lng float rounded half-to-even at 6 decimals, below 1000 in magnitude
//	rideable_type, member_casual trimmed and lowercased ("Member" -> "member")
//
// Member type casing is inconsistent in the source ("Member", "member") so tag
// columns are folded before storage.
package domain
