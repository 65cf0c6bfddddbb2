// Package domain models buoy telemetry and the NDBC XML exchange format.
//
// # Data Source
//
// Observations come from an ERDDAP server's tabledap endpoint. Each buoy
// (station) publishes one dataset per instrument: meteorological packages
// (METBK, up to two per buoy) and a directional wave sensor (WAVSS). A dataset
// row holds a UTC timestamp and one column per variable; absent readings are
// JSON nulls or "NaN".
//
// # Sensor Types and Channels
//
// A sensor type names a fixed set of upstream variables (channels):
//
//	METBK1 / METBK2: air_temperature, barometric_pressure, relative_humidity,
//	                 longwave_irradiance, shortwave_irradiance,
//	                 eastward_wind_velocity, northward_wind_velocity,
//	                 sea_surface_temperature, sea_water_practical_salinity
//	WAVSS:           significant_wave_height, significant_wave_period,
//	                 mean_wave_direction
//
// Some channels are derived before mapping (see [DeriveChannels]):
//
//	wind_speed      = sqrt(u² + v²)
//	wind_direction  = atan2(-u, -v) in degrees, meteorological convention, [0, 360)
//	sea_level_pressure = p / exp(-h / ((T + 273.15) * 29.263))
//
// where h is the sensor height above sea level in metres.
//
// # Resampling
//
// NDBC expects 10-minute observations. Readings are grouped into bins aligned
// to the interval (label = bin start) and each channel is averaged over its
// present samples. Computed values are rounded to two decimals; a bin with a
// single sample keeps the sample unchanged.
//
// # Exchange Format
//
// One message per station per timestamp:
//
//	<message>
//	<station>44078</station>
//	<date>03/01/2008 01:00:00</date>
//	<missing>-9999</missing>
//	<met>
//	    <baro1>-9999</baro1>
//	    <wspd1>11.1</wspd1>
//	</met>
//	</message>
//
// Channels follow the destination schema order ([SchemaOrder]), not arrival
// order. The missing sentinel is always -9999 and every value is clamped to
// [-9999, 9999] by the missing-value policy ([ApplyMissingPolicy]).
package domain
