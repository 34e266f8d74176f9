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

// OpenWeatherProvider implements weather.Source for OpenWeatherMap's 3-hourly forecast.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	clock   weather.Clock
}

func NewOpenWeatherProvider(httpCfg HTTPClientConfig, apiKey string, clock weather.Clock) *OpenWeatherProvider {
	return &OpenWeatherProvider{
		name:    "openweather",
		apiKey:  apiKey,
		baseURL: "https://api.openweathermap.org/data/2.5/forecast",
		httpCfg: httpCfg,
		circuit: newCircuitBreaker("openweather"),
		clock:   clockOrSystem(clock),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) FetchToday(ctx context.Context, c weather.Coordinates) ([]weather.Record, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("openweather: %w", errNoAPIKey)
	}
	now := p.clock.Now()

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("lat", fmt.Sprintf("%f", c.Latitude))
		values.Set("lon", fmt.Sprintf("%f", c.Longitude))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		List []struct {
			Dt   int64 `json:"dt"`
			Main struct {
				Temp     *float64 `json:"temp"`
				Humidity *float64 `json:"humidity"`
				Pressure *float64 `json:"pressure"`
			} `json:"main"`
			Wind struct {
				Speed *float64 `json:"speed"`
			} `json:"wind"`
			Rain struct {
				ThreeH *float64 `json:"3h"`
			} `json:"rain"`
		} `json:"list"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}

	records := make([]weather.Record, 0, len(payload.List))
	for _, item := range payload.List {
		records = append(records, weather.Record{
			Time:          time.Unix(item.Dt, 0).UTC(),
			Temperature:   item.Main.Temp,
			WindSpeed:     kmh(item.Wind.Speed),
			Pressure:      item.Main.Pressure,
			Precipitation: rainPerInterval(item.Rain.ThreeH, 3*time.Hour),
			Humidity:      item.Main.Humidity,
		})
	}
	return todayOnly(records, now), nil
}

// kmh converts a speed in m/s to km/h, the unit the other providers report.
func kmh(ms *float64) *float64 {
	if ms == nil {
		return nil
	}
	v := *ms * 3.6
	return &v
}
