package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-monitor/internal/weather"
)

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

var (
	today    = fixedClock(time.Date(2026, 10, 18, 10, 0, 0, 0, time.UTC))
	rome     = weather.Coordinates{Latitude: 41.9028, Longitude: 12.4964}
	fastHTTP = HTTPClientConfig{
		Client:  http.DefaultClient,
		Backoff: BackoffConfig{MaxRetries: 2, InitialInterval: time.Millisecond, MaxInterval: 5 * time.Millisecond},
	}
)

// RoundTripperFunc lets tests stub the transport of an http.Client.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonServer(t *testing.T, body string, check func(r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if check != nil {
			check(r)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestOpenMeteoFetchToday(t *testing.T) {
	body := `{"minutely_15":{
		"time":["2026-10-17T23:45","2026-10-18T09:00","2026-10-18T09:15"],
		"temperature_2m":[9.5,14.1,14.4],
		"wind_speed_10m":[3.0,5.2,null],
		"pressure_msl":[1011.0,1012.3,1012.1],
		"rain":[0,0.1,0],
		"relative_humidity_2m":[90,81,80]
	}}`
	srv, _ := jsonServer(t, body, func(r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "temperature_2m,wind_speed_10m,pressure_msl,rain,relative_humidity_2m", q.Get("minutely_15"))
		assert.Equal(t, "UTC", q.Get("timezone"))
		assert.Equal(t, "2026-10-18T00:00", q.Get("start_minutely_15"))
		assert.Equal(t, "2026-10-18T23:45", q.Get("end_minutely_15"))
		assert.Equal(t, "41.9028", q.Get("latitude"))
	})

	p := NewOpenMeteoProvider(fastHTTP, today)
	p.baseURL = srv.URL

	recs, err := p.FetchToday(context.Background(), rome)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.True(t, recs[0].Time.Equal(time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)))
	assert.Equal(t, 14.1, *recs[0].Temperature)
	assert.Equal(t, 81.0, *recs[0].Humidity)
	assert.Nil(t, recs[1].WindSpeed)
}

func TestOpenMeteoBadPayload(t *testing.T) {
	srv, _ := jsonServer(t, `{"minutely_15":{"time":["yesterday"]}}`, nil)
	p := NewOpenMeteoProvider(fastHTTP, today)
	p.baseURL = srv.URL

	_, err := p.FetchToday(context.Background(), rome)
	require.ErrorIs(t, err, weather.ErrPermanentSource)
}

func TestWeatherAPIFetchToday(t *testing.T) {
	nine := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC).Unix()
	tomorrow := time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC).Unix()
	body := `{"forecast":{"forecastday":[
		{"hour":[{"time_epoch":` + itoa(nine) + `,"temp_c":15.2,"wind_kph":11.9,"pressure_mb":1015,"precip_mm":0.3,"humidity":70}]},
		{"hour":[{"time_epoch":` + itoa(tomorrow) + `,"temp_c":16.0,"wind_kph":8,"pressure_mb":1014,"precip_mm":0,"humidity":65}]}
	]}}`
	srv, _ := jsonServer(t, body, func(r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
	})

	p := NewWeatherAPIProvider(fastHTTP, "secret", today)
	p.baseURL = srv.URL

	recs, err := p.FetchToday(context.Background(), rome)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, 15.2, *recs[0].Temperature)
	assert.InDelta(t, 0.075, *recs[0].Precipitation, 1e-9)
}

func TestOpenWeatherFetchTodayConvertsUnits(t *testing.T) {
	dt := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC).Unix()
	body := `{"list":[{"dt":` + itoa(dt) + `,"main":{"temp":18.5,"pressure":1009,"humidity":55},"wind":{"speed":10},"rain":{"3h":1.2}}]}`
	srv, _ := jsonServer(t, body, func(r *http.Request) {
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
	})

	p := NewOpenWeatherProvider(fastHTTP, "secret", today)
	p.baseURL = srv.URL

	recs, err := p.FetchToday(context.Background(), rome)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.InDelta(t, 36.0, *recs[0].WindSpeed, 1e-9)
	assert.InDelta(t, 0.1, *recs[0].Precipitation, 1e-9)
}

func TestRainPerInterval(t *testing.T) {
	assert.Nil(t, rainPerInterval(nil, time.Hour))
	assert.InDelta(t, 0.5, *rainPerInterval(weather.Float(2), time.Hour), 1e-9)
	assert.InDelta(t, 0.25, *rainPerInterval(weather.Float(3), 3*time.Hour), 1e-9)
	assert.InDelta(t, 0.4, *rainPerInterval(weather.Float(0.4), 15*time.Minute), 1e-9)
}

func TestMissingAPIKeyIsPermanent(t *testing.T) {
	srv, hits := jsonServer(t, `{}`, nil)

	wa := NewWeatherAPIProvider(fastHTTP, "", today)
	wa.baseURL = srv.URL
	_, err := wa.FetchToday(context.Background(), rome)
	assert.ErrorIs(t, err, weather.ErrPermanentSource)

	ow := NewOpenWeatherProvider(fastHTTP, "", today)
	ow.baseURL = srv.URL
	_, err = ow.FetchToday(context.Background(), rome)
	assert.ErrorIs(t, err, weather.ErrPermanentSource)

	assert.Zero(t, hits.Load())
}

func TestResilienceRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"minutely_15":{"time":["2026-10-18T09:00"],"temperature_2m":[14]}}`))
	}))
	defer srv.Close()

	p := NewOpenMeteoProvider(fastHTTP, today)
	p.baseURL = srv.URL

	recs, err := p.FetchToday(context.Background(), rome)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
	assert.Equal(t, int32(3), hits.Load())
}

func TestResilienceClassifiesFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		wantErr  error
		wantHits int32
	}{
		{"not found is permanent", http.StatusNotFound, weather.ErrPermanentSource, 1},
		{"unauthorized is permanent", http.StatusUnauthorized, weather.ErrPermanentSource, 1},
		{"rate limit is transient", http.StatusTooManyRequests, weather.ErrTransientSource, 3},
		{"server error is transient", http.StatusBadGateway, weather.ErrTransientSource, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				hits.Add(1)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			p := NewOpenMeteoProvider(fastHTTP, today)
			p.baseURL = srv.URL

			_, err := p.FetchToday(context.Background(), rome)
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, tt.wantHits, hits.Load())
		})
	}
}

func TestResilienceNetworkErrorIsTransient(t *testing.T) {
	cfg := fastHTTP
	cfg.Client = &http.Client{Transport: RoundTripperFunc(func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})}

	p := NewOpenMeteoProvider(cfg, today)
	_, err := p.FetchToday(context.Background(), rome)
	require.ErrorIs(t, err, weather.ErrTransientSource)
}

func TestResilienceNoClient(t *testing.T) {
	p := NewOpenMeteoProvider(HTTPClientConfig{}, today)
	_, err := p.FetchToday(context.Background(), rome)
	require.ErrorIs(t, err, weather.ErrPermanentSource)
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
