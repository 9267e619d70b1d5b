// Package domain models satellite and ground-station air-quality observations
// and the records derived from them: feature vectors, 24-hour PM2.5 forecasts,
// and per-prediction attributions.
//
// # Data Source
//
// Observations come from the bundled historical archive, a gzip-compressed CSV
// with one row per (timestamp, location, source) reading. The source column
// distinguishes the two collection paths:
//
//	satellite — aerosol optical depth (AOD) and a 0–3 smoke-plume intensity
//	            index retrieved from polar-orbit overpasses.
//	ground    — PM2.5 concentration (µg/m³) plus meteorological covariates
//	            (temperature, humidity, wind speed) from fixed monitors.
//
// Ground rows may additionally carry actual_pm25, the PM2.5 concentration
// observed 24 hours after the row's timestamp. It is the historical label the
// model was trained against and is used only for error reporting, never as a
// model input.
//
// # Plume Velocity
//
// Plume velocity is the rate of change of ground PM2.5 between consecutive
// readings at the same monitor:
//
//	velocity_t = (pm25_t − pm25_t−1) / Δt    [µg/m³ per hour]
//
// The first reading at a monitor has no predecessor, so its velocity is
// undefined and carried as nil. It must stay nil through feature assembly;
// converting it to zero would fabricate a "perfectly stable" signal. The
// model adapter imputes nil values at scoring time using the same policy the
// model was trained with (see the schema manifest).
//
// # Hazard Classification
//
// A prediction is flagged hazardous when it exceeds the configured threshold,
// by default 35 µg/m³ — the EPA 24-hour PM2.5 standard.
//
// # ID Generation
//
// Record IDs are deterministic SHA-256 hashes of location|source|timestamp,
// so reloading the same archive reproduces the same IDs. See [ObservationID].
package domain
