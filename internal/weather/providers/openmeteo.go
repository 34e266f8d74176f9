package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-monitor/internal/common"
	"github.com/i474232898/weather-monitor/internal/weather"
)

const openMeteoTimeLayout = "2006-01-02T15:04"

// openMeteoVariables are requested in the minutely_15 block; the names match the record fields.
const openMeteoVariables = "temperature_2m,wind_speed_10m,pressure_msl,rain,relative_humidity_2m"

// OpenMeteoProvider implements weather.Source for Open-Meteo's 15-minutely forecast.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	clock   weather.Clock
}

func NewOpenMeteoProvider(httpCfg HTTPClientConfig, clock weather.Clock) *OpenMeteoProvider {
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: "https://api.open-meteo.com/v1/forecast",
		httpCfg: httpCfg,
		circuit: newCircuitBreaker("openmeteo"),
		clock:   clockOrSystem(clock),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) FetchToday(ctx context.Context, c weather.Coordinates) ([]weather.Record, error) {
	now := p.clock.Now()
	start, end := common.DayBounds(now)

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", strconv.FormatFloat(c.Latitude, 'f', -1, 64))
		values.Set("longitude", strconv.FormatFloat(c.Longitude, 'f', -1, 64))
		values.Set("minutely_15", openMeteoVariables)
		values.Set("timezone", "UTC")
		values.Set("start_minutely_15", start.UTC().Format(openMeteoTimeLayout))
		values.Set("end_minutely_15", end.Add(-15*time.Minute).UTC().Format(openMeteoTimeLayout))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := doRequestWithResilience(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Minutely15 struct {
			Time        []string   `json:"time"`
			Temperature []*float64 `json:"temperature_2m"`
			WindSpeed   []*float64 `json:"wind_speed_10m"`
			Pressure    []*float64 `json:"pressure_msl"`
			Rain        []*float64 `json:"rain"`
			Humidity    []*float64 `json:"relative_humidity_2m"`
		} `json:"minutely_15"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, decodeError(p.name, err)
	}

	series := payload.Minutely15
	records := make([]weather.Record, 0, len(series.Time))
	for i, raw := range series.Time {
		ts, err := time.Parse(openMeteoTimeLayout, raw)
		if err != nil {
			return nil, decodeError(p.name, err)
		}
		records = append(records, weather.Record{
			Time:          ts.UTC(),
			Temperature:   at(series.Temperature, i),
			WindSpeed:     at(series.WindSpeed, i),
			Pressure:      at(series.Pressure, i),
			Precipitation: at(series.Rain, i),
			Humidity:      at(series.Humidity, i),
		})
	}
	return todayOnly(records, now), nil
}

// at tolerates series shorter than the time axis.
func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}
