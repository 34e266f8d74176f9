package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-monitor/internal/weather"
)

func stubGeocode(t *testing.T, fn func(geocoder.Address) (geocoder.Location, error)) {
	t.Helper()
	orig := geocode
	geocode = fn
	t.Cleanup(func() { geocode = orig })
}

func TestGoogleGeocoder(t *testing.T) {
	stubGeocode(t, func(a geocoder.Address) (geocoder.Location, error) {
		assert.Equal(t, "Rome", a.City)
		assert.Equal(t, "key", geocoder.ApiKey)
		return geocoder.Location{Latitude: rome.Latitude, Longitude: rome.Longitude}, nil
	})

	c, err := NewGoogleGeocoder("key").Geocode(context.Background(), "Rome")
	require.NoError(t, err)
	assert.Equal(t, rome, c)
}

func TestGoogleGeocoderFailures(t *testing.T) {
	stubGeocode(t, func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("ZERO_RESULTS")
	})

	_, err := NewGoogleGeocoder("").Geocode(context.Background(), "Rome")
	assert.ErrorIs(t, err, weather.ErrPermanentSource)

	_, err = NewGoogleGeocoder("key").Geocode(context.Background(), "Nowhere")
	assert.ErrorContains(t, err, "ZERO_RESULTS")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewGoogleGeocoder("key").Geocode(ctx, "Rome")
	assert.ErrorIs(t, err, context.Canceled)
}
