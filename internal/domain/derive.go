package domain

import "math"

// DeriveChannels computes wind speed, wind direction and sea-level pressure
// from their raw inputs and drops the inputs. The input map is not modified.
// Channels the upstream already serves directly take precedence.
func DeriveChannels(values map[string]Measurement, sensorHeight float64) map[string]Measurement {
	out := make(map[string]Measurement, len(values))
	for k, v := range values {
		out[k] = v
	}

	u, hasU := out[ChannelEastwardWind]
	v, hasV := out[ChannelNorthwardWind]
	if hasU || hasV {
		delete(out, ChannelEastwardWind)
		delete(out, ChannelNorthwardWind)
		speed, dir := Absent(), Absent()
		if u.Present && v.Present {
			speed = Present(round2(WindSpeed(u.Value, v.Value)))
			dir = Present(round2(WindDirection(u.Value, v.Value)))
		}
		if _, ok := out[ChannelWindSpeed]; !ok {
			out[ChannelWindSpeed] = speed
		}
		if _, ok := out[ChannelWindDirection]; !ok {
			out[ChannelWindDirection] = dir
		}
	}

	if p, ok := out[ChannelBarometricPressure]; ok {
		delete(out, ChannelBarometricPressure)
		if _, served := out[ChannelSeaLevelPressure]; !served {
			t := out[ChannelAirTemperature]
			slp := Absent()
			if p.Present && t.Present {
				slp = Present(round2(SeaLevelPressure(p.Value, t.Value, sensorHeight)))
			}
			out[ChannelSeaLevelPressure] = slp
		}
	}

	return out
}

// WindSpeed returns the magnitude of the (u, v) wind vector.
func WindSpeed(eastward, northward float64) float64 {
	return math.Hypot(eastward, northward)
}

// WindDirection returns the meteorological direction the wind blows from,
// in degrees within [0, 360).
func WindDirection(eastward, northward float64) float64 {
	d := 180 / math.Pi * math.Atan2(-eastward, -northward)
	if d < 0 {
		d += 360
	}
	return d
}

// SeaLevelPressure reduces station pressure (hPa) measured at heightM metres
// with air temperature tempC to sea level.
func SeaLevelPressure(pressure, tempC, heightM float64) float64 {
	return pressure / math.Exp(-heightM/((tempC+273.15)*29.263))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
