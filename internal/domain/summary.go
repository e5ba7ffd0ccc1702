package domain

// DaySummary is the derived per-day aggregate embedded in a WeatherReport.
// It is always recomputable from the report's readings; the write path
// refreshes it on every mutation. Nil aggregates mean no non-null samples
// contributed.
type DaySummary struct {
	TempMean      *float64 `json:"temp_mean,omitempty"`
	TempMin       *float64 `json:"temp_min,omitempty"`
	TempMax       *float64 `json:"temp_max,omitempty"`
	DewpointMean  *float64 `json:"dewpoint_mean,omitempty"`
	HumidityMean  *float64 `json:"humidity_mean,omitempty"`
	HumidityMin   *float64 `json:"humidity_min,omitempty"`
	HumidityMax   *float64 `json:"humidity_max,omitempty"`
	PressureMean  *float64 `json:"pressure_mean,omitempty"`
	PressureMin   *float64 `json:"pressure_min,omitempty"`
	PressureMax   *float64 `json:"pressure_max,omitempty"`
	PrecipSum     *float64 `json:"precip_sum,omitempty"`
	CloudMean     *float64 `json:"cloud_cover_mean,omitempty"`
	WindSpeedMean *float64 `json:"wind_speed_mean,omitempty"`
	WindSpeedMin  *float64 `json:"wind_speed_min,omitempty"`
	WindSpeedMax  *float64 `json:"wind_speed_max,omitempty"`
	Sunshine      *float64 `json:"sunshine,omitempty"`
}

// accumulator tracks mean/min/max over non-null samples.
type accumulator struct {
	sum   float64
	min   float64
	max   float64
	count int
}

func (a *accumulator) add(v *float64) {
	if v == nil {
		return
	}
	if a.count == 0 {
		a.min, a.max = *v, *v
	} else {
		if *v < a.min {
			a.min = *v
		}
		if *v > a.max {
			a.max = *v
		}
	}
	a.sum += *v
	a.count++
}

func (a *accumulator) mean() *float64 {
	if a.count == 0 {
		return nil
	}
	m := a.sum / float64(a.count)
	return &m
}

func (a *accumulator) minVal() *float64 {
	if a.count == 0 {
		return nil
	}
	v := a.min
	return &v
}

func (a *accumulator) maxVal() *float64 {
	if a.count == 0 {
		return nil
	}
	v := a.max
	return &v
}

func (a *accumulator) total() *float64 {
	if a.count == 0 {
		return nil
	}
	v := a.sum
	return &v
}

// DeriveDaySummary computes the day summary from a report's readings. It is a
// pure function with no I/O. Mean, min, and max use only non-null samples;
// precipitation and sunshine are sums. An empty or all-null readings sequence
// yields a summary with nil aggregates, not an error.
func DeriveDaySummary(readings []Reading) DaySummary {
	var temp, dewpoint, humidity, pressure, precip, cloud, wind, sunshine accumulator

	for i := range readings {
		r := &readings[i]
		temp.add(r.Temp)
		dewpoint.add(r.Dewpoint)
		humidity.add(r.Humidity)
		pressure.add(r.Pressure)
		precip.add(r.Precip)
		cloud.add(r.CloudCover)
		wind.add(r.WindSpeed)
		sunshine.add(r.Sunshine)
	}

	return DaySummary{
		TempMean:      temp.mean(),
		TempMin:       temp.minVal(),
		TempMax:       temp.maxVal(),
		DewpointMean:  dewpoint.mean(),
		HumidityMean:  humidity.mean(),
		HumidityMin:   humidity.minVal(),
		HumidityMax:   humidity.maxVal(),
		PressureMean:  pressure.mean(),
		PressureMin:   pressure.minVal(),
		PressureMax:   pressure.maxVal(),
		PrecipSum:     precip.total(),
		CloudMean:     cloud.mean(),
		WindSpeedMean: wind.mean(),
		WindSpeedMin:  wind.minVal(),
		WindSpeedMax:  wind.maxVal(),
		Sunshine:      sunshine.total(),
	}
}
