package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-monitor/internal/weather"
)

// WeatherAPIProvider implements weather.Source for WeatherAPI.com's hourly forecast.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	clock   weather.Clock
}

func NewWeatherAPIProvider(httpCfg HTTPClientConfig, apiKey string, clock weather.Clock) *WeatherAPIProvider {
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: "https://api.weatherapi.com/v1/forecast.json",
		httpCfg: httpCfg,
		circuit: newCircuitBreaker("weatherapi"),
		clock:   clockOrSystem(clock),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) FetchToday(ctx context.Context, c weather.Coordinates) ([]weather.Record, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("weatherapi: %w", errNoAPIKey)
	}
	now := p.clock.Now()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("q", fmt.Sprintf("%f,%f", c.Latitude, c.Longitude))
		// the provider's "today" follows the location's zone, which may lag or lead ours
		values.Set("days", "2")
		values.Set("aqi", "no")
		values.Set("alerts", "no")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Forecast struct {
			ForecastDay []struct {
				Hour []struct {
					TimeEpoch  int64    `json:"time_epoch"`
					TempC      *float64 `json:"temp_c"`
					WindKph    *float64 `json:"wind_kph"`
					PressureMb *float64 `json:"pressure_mb"`
					PrecipMm   *float64 `json:"precip_mm"`
					Humidity   *float64 `json:"humidity"`
				} `json:"hour"`
			} `json:"forecastday"`
		} `json:"forecast"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}

	var records []weather.Record
	for _, day := range payload.Forecast.ForecastDay {
		for _, h := range day.Hour {
			records = append(records, weather.Record{
				Time:          time.Unix(h.TimeEpoch, 0).UTC(),
				Temperature:   h.TempC,
				WindSpeed:     h.WindKph,
				Pressure:      h.PressureMb,
				Precipitation: rainPerInterval(h.PrecipMm, time.Hour),
				Humidity:      h.Humidity,
			})
		}
	}
	return todayOnly(records, now), nil
}
