package domain

import "time"

// Reading is one hourly sample from an automated weather station, embedded in
// a WeatherReport. Sensor fields are nil when the station did not report them.
type Reading struct {
	Timestamp      time.Time `json:"timestamp"`
	SampleDuration int       `json:"sample_duration"` // seconds covered by this sample

	Temp          *float64 `json:"temp,omitempty"`           // °C
	Dewpoint      *float64 `json:"dewpoint,omitempty"`       // °C
	Humidity      *float64 `json:"humidity,omitempty"`       // %
	Pressure      *float64 `json:"pressure,omitempty"`       // hPa, mean sea level
	Precip        *float64 `json:"precip,omitempty"`         // mm
	CloudCover    *float64 `json:"cloud_cover,omitempty"`    // %
	WindSpeed     *float64 `json:"wind_speed,omitempty"`     // m/s
	WindDirection *float64 `json:"wind_direction,omitempty"` // degrees, 0-360
	Sunshine      *float64 `json:"sunshine,omitempty"`       // seconds

	Soil *SoilProfile `json:"soil,omitempty"`
}

// SoilLayer holds temperature and moisture for one depth band.
type SoilLayer struct {
	Temp     *float64 `json:"temp,omitempty"`     // °C
	Moisture *float64 `json:"moisture,omitempty"` // m³/m³
}

// SoilProfile holds the four open-meteo soil depth bands.
type SoilProfile struct {
	Depth0To7Cm     *SoilLayer `json:"0_to_7cm,omitempty"`
	Depth7To28Cm    *SoilLayer `json:"7_to_28cm,omitempty"`
	Depth28To100Cm  *SoilLayer `json:"28_to_100cm,omitempty"`
	Depth100To255Cm *SoilLayer `json:"100_to_255cm,omitempty"`
}

// WeatherCategory is the fixed vocabulary for manual sky observations.
type WeatherCategory string

const (
	CategoryClear              WeatherCategory = "Clear"
	CategorySunny              WeatherCategory = "Sunny"
	CategorySunnyIntervals     WeatherCategory = "Sunny intervals"
	CategoryLightCloud         WeatherCategory = "Light cloud"
	CategoryHeavyCloud         WeatherCategory = "Heavy cloud"
	CategoryDrizzle            WeatherCategory = "Drizzle"
	CategorySunshineAndShowers WeatherCategory = "Sunshine and showers"
	CategoryLightShowers       WeatherCategory = "Light showers"
	CategoryHeavyShowers       WeatherCategory = "Heavy showers"
	CategoryLightRain          WeatherCategory = "Light rain"
	CategoryHeavyRain          WeatherCategory = "Heavy rain"
	CategoryThunderStorm       WeatherCategory = "Thunder storm"
	CategoryThunderyShowers    WeatherCategory = "Thundery showers"
	CategorySleetShowers       WeatherCategory = "Sleet showers"
	CategorySleet              WeatherCategory = "Sleet"
	CategoryLightSnowShowers   WeatherCategory = "Light snow showers"
	CategoryHeavySnowShowers   WeatherCategory = "Heavy snow showers"
	CategoryLightSnow          WeatherCategory = "Light snow"
	CategoryHeavySnow          WeatherCategory = "Heavy snow"
	CategoryHailShowers        WeatherCategory = "Hail showers"
	CategoryHail               WeatherCategory = "Hail"
	CategoryFog                WeatherCategory = "Fog"
	CategoryHazy               WeatherCategory = "Hazy"
	CategoryMist               WeatherCategory = "Mist"
)

// ValidCategory reports whether c is one of the declared categories.
func ValidCategory(c WeatherCategory) bool {
	switch c {
	case CategoryClear, CategorySunny, CategorySunnyIntervals, CategoryLightCloud,
		CategoryHeavyCloud, CategoryDrizzle, CategorySunshineAndShowers,
		CategoryLightShowers, CategoryHeavyShowers, CategoryLightRain,
		CategoryHeavyRain, CategoryThunderStorm, CategoryThunderyShowers,
		CategorySleetShowers, CategorySleet, CategoryLightSnowShowers,
		CategoryHeavySnowShowers, CategoryLightSnow, CategoryHeavySnow,
		CategoryHailShowers, CategoryHail, CategoryFog, CategoryHazy, CategoryMist:
		return true
	}
	return false
}

// Observation is a manual weather entry from a registered observer. All sensor
// fields are optional; Photo is a reference to an externally stored attachment.
type Observation struct {
	Timestamp      time.Time       `json:"timestamp"`
	Category       WeatherCategory `json:"category,omitempty"`
	Description    string          `json:"description,omitempty"`
	Temp           *float64        `json:"temp,omitempty"`
	Humidity       *float64        `json:"humidity,omitempty"`
	Precip         *float64        `json:"precip,omitempty"`
	Pressure       *float64        `json:"pressure,omitempty"`
	WindSpeed      *float64        `json:"wind_speed,omitempty"`
	WindDirection  *float64        `json:"wind_direction,omitempty"`
	SampleDuration *int            `json:"sample_duration,omitempty"`
	Photo          string          `json:"photo,omitempty"`
}
