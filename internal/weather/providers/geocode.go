package providers

import (
	"context"
	"fmt"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-monitor/internal/weather"
)

// the geocoder package keeps its key in a package variable
var geocoderMu sync.Mutex

var geocode = geocoder.Geocoding

// GoogleGeocoder resolves place names through the Google Geocoding API.
type GoogleGeocoder struct {
	apiKey string
}

var _ weather.Geocoder = (*GoogleGeocoder)(nil)

func NewGoogleGeocoder(apiKey string) *GoogleGeocoder {
	return &GoogleGeocoder{apiKey: apiKey}
}

func (g *GoogleGeocoder) Geocode(ctx context.Context, name string) (weather.Coordinates, error) {
	if g.apiKey == "" {
		return weather.Coordinates{}, fmt.Errorf("geocoder: %w", errNoAPIKey)
	}
	if err := ctx.Err(); err != nil {
		return weather.Coordinates{}, err
	}

	geocoderMu.Lock()
	defer geocoderMu.Unlock()

	geocoder.ApiKey = g.apiKey
	loc, err := geocode(geocoder.Address{City: name})
	if err != nil {
		return weather.Coordinates{}, fmt.Errorf("geocode %q: %w", name, err)
	}

	c := weather.Coordinates{Latitude: loc.Latitude, Longitude: loc.Longitude}
	if err := c.Validate(); err != nil {
		return weather.Coordinates{}, err
	}
	return c, nil
}
