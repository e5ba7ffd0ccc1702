package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/weather-data-store/internal/domain"
)

func f(v float64) *float64 { return &v }

func reading(hour int, temp, humidity *float64) domain.Reading {
	return domain.Reading{
		Timestamp:      time.Date(2025, 3, 1, hour, 0, 0, 0, time.UTC),
		SampleDuration: 3600,
		Temp:           temp,
		Humidity:       humidity,
	}
}

func TestDeriveDaySummary(t *testing.T) {
	readings := []domain.Reading{
		reading(0, f(4.0), f(80)),
		reading(1, f(6.0), f(76)),
		reading(2, f(8.0), nil),
	}
	readings[0].Precip = f(1.5)
	readings[1].Precip = f(0.5)
	readings[2].WindSpeed = f(3.0)

	s := domain.DeriveDaySummary(readings)

	require.NotNil(t, s.TempMean)
	assert.InDelta(t, 6.0, *s.TempMean, 1e-9)
	assert.Equal(t, 4.0, *s.TempMin)
	assert.Equal(t, 8.0, *s.TempMax)

	// Humidity mean uses only the two non-null samples.
	require.NotNil(t, s.HumidityMean)
	assert.InDelta(t, 78.0, *s.HumidityMean, 1e-9)

	// Precipitation is a sum, not a mean.
	require.NotNil(t, s.PrecipSum)
	assert.InDelta(t, 2.0, *s.PrecipSum, 1e-9)

	assert.Equal(t, 3.0, *s.WindSpeedMin)
	assert.Equal(t, 3.0, *s.WindSpeedMax)
	assert.Nil(t, s.PressureMean)
}

func TestDeriveDaySummary_Empty(t *testing.T) {
	s := domain.DeriveDaySummary(nil)
	assert.Nil(t, s.TempMean)
	assert.Nil(t, s.TempMin)
	assert.Nil(t, s.TempMax)
	assert.Nil(t, s.PrecipSum)
	assert.Nil(t, s.Sunshine)
}

func TestDeriveDaySummary_AllNull(t *testing.T) {
	readings := []domain.Reading{
		reading(0, nil, nil),
		reading(1, nil, nil),
	}
	s := domain.DeriveDaySummary(readings)
	assert.Nil(t, s.TempMean)
	assert.Nil(t, s.HumidityMean)
}

func TestDeriveDaySummary_SingleReading(t *testing.T) {
	s := domain.DeriveDaySummary([]domain.Reading{reading(12, f(6.5), f(76))})

	require.NotNil(t, s.TempMean)
	assert.Equal(t, 6.5, *s.TempMean)
	assert.Equal(t, 6.5, *s.TempMin)
	assert.Equal(t, 6.5, *s.TempMax)
	assert.Equal(t, 76.0, *s.HumidityMean)
}
