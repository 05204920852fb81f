package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/regional-weather/internal/weather"
)

var fastBackoff = BackoffConfig{
	MaxRetries:      2,
	InitialInterval: time.Millisecond,
	MaxInterval:     5 * time.Millisecond,
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestWeatherAPIProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		assert.Equal(t, "Kyiv", r.URL.Query().Get("q"))
		jsonHandler(`{
			"location": {"name": "Kyiv", "tz_id": "Europe/Kiev"},
			"current": {"temp_c": 5.0, "condition": {"text": "Clear "}}
		}`)(w, r)
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "secret", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	r, err := p.FetchWeather(context.Background(), "Kyiv")
	require.NoError(t, err)
	assert.Equal(t, weather.Reading{
		ProviderName: "weatherapi",
		Temperature:  5.0,
		Description:  "Clear",
		Region:       "Europe",
	}, r)
}

func TestWeatherAPIProviderMissingField(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`{"location": {"tz_id": "Europe/Kiev"}, "current": {"condition": {"text": "Clear"}}}`))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "secret", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	_, err := p.FetchWeather(context.Background(), "Kyiv")
	assert.ErrorIs(t, err, errMissingField)
}

func TestWeatherAPIProviderNoKey(t *testing.T) {
	p := NewWeatherAPIProvider(http.DefaultClient, "")
	_, err := p.FetchWeather(context.Background(), "Kyiv")
	assert.ErrorIs(t, err, errNoAPIKey)
}

func TestResilienceRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		jsonHandler(`{"location": {"tz_id": "Asia/Tokyo"}, "current": {"temp_c": 12.5, "condition": {"text": "Rain"}}}`)(w, r)
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	r, err := p.FetchWeather(context.Background(), "Tokyo")
	require.NoError(t, err)
	assert.Equal(t, "Asia", r.Region)
	assert.EqualValues(t, 3, calls.Load())
}

func TestResilienceGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	_, err := p.FetchWeather(context.Background(), "Tokyo")
	assert.ErrorIs(t, err, errRateLimited)
	assert.EqualValues(t, fastBackoff.MaxRetries+1, calls.Load())
}

func TestResilienceClientErrorIsPermanent(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	_, err := p.FetchWeather(context.Background(), "Nowhere")
	assert.ErrorIs(t, err, errUnexpected)
	assert.EqualValues(t, 1, calls.Load())
}

func TestResilienceHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.FetchWeather(ctx, "Slow")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResilienceInvalidDecode(t *testing.T) {
	srv := httptest.NewServer(jsonHandler(`<html>`))
	defer srv.Close()

	p := NewWeatherAPIProvider(srv.Client(), "k", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	_, err := p.FetchWeather(context.Background(), "Kyiv")
	assert.ErrorContains(t, err, "decode response")
}

func newOpenWeatherServer(t *testing.T, countryHits *atomic.Int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/geo/1.0/direct", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("q") {
		case "Kyiv":
			jsonHandler(`[{"name": "Kyiv", "lat": 50.4501, "lon": 30.5234, "country": "UA"}]`)(w, r)
		case "Lima":
			jsonHandler(`[{"name": "Lima", "lat": -12.0464, "lon": -77.0428, "country": "PE"}]`)(w, r)
		default:
			jsonHandler(`[]`)(w, r)
		}
	})
	mux.HandleFunc("/data/2.5/weather", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "metric", r.URL.Query().Get("units"))
		if r.URL.Query().Get("lat") == "50.45" {
			jsonHandler(`{"main": {"temp": 4.2}, "sys": {"country": "UA"}, "weather": [{"description": "light rain"}]}`)(w, r)
			return
		}
		jsonHandler(`{"main": {"temp": 19}, "sys": {"country": "PE"}, "weather": [{"description": "overcast clouds"}]}`)(w, r)
	})
	mux.HandleFunc("/v3.1/alpha/", func(w http.ResponseWriter, r *http.Request) {
		countryHits.Add(1)
		switch r.URL.Path {
		case "/v3.1/alpha/UA":
			jsonHandler(`[{"continents": ["Europe"]}]`)(w, r)
		case "/v3.1/alpha/PE":
			jsonHandler(`[{"continents": ["South America"]}]`)(w, r)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	return httptest.NewServer(mux)
}

func newTestOpenWeather(srv *httptest.Server) *OpenWeatherProvider {
	return NewOpenWeatherProvider(srv.Client(), "owm",
		WithBaseURL(srv.URL+"/data/2.5/weather"),
		WithGeoURL(srv.URL+"/geo/1.0/direct"),
		WithCountriesURL(srv.URL+"/v3.1/alpha/"),
		WithBackoff(fastBackoff),
	)
}

func TestOpenWeatherProviderFetch(t *testing.T) {
	var hits atomic.Int32
	srv := newOpenWeatherServer(t, &hits)
	defer srv.Close()
	p := newTestOpenWeather(srv)

	r, err := p.FetchWeather(context.Background(), "Kyiv")
	require.NoError(t, err)
	assert.Equal(t, weather.Reading{
		ProviderName: "openweathermap",
		Temperature:  4.2,
		Description:  "Light rain",
		Region:       "Europe",
	}, r)

	r, err = p.FetchWeather(context.Background(), "Lima")
	require.NoError(t, err)
	assert.Equal(t, "America", r.Region)
	assert.Equal(t, "Overcast clouds", r.Description)

	// Continents are cached per country.
	_, err = p.FetchWeather(context.Background(), "Kyiv")
	require.NoError(t, err)
	assert.EqualValues(t, 2, hits.Load())
}

func TestOpenWeatherProviderUnknownCity(t *testing.T) {
	var hits atomic.Int32
	srv := newOpenWeatherServer(t, &hits)
	defer srv.Close()

	_, err := newTestOpenWeather(srv).FetchWeather(context.Background(), "Atlantis")
	assert.ErrorContains(t, err, "no coordinates")
}

func TestOpenMeteoProviderFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "auto", r.URL.Query().Get("timezone"))
		assert.Equal(t, "35.689500", r.URL.Query().Get("latitude"))
		jsonHandler(`{"timezone": "Asia/Tokyo", "current_weather": {"temperature": 21.3, "weathercode": 61}}`)(w, r)
	}))
	defer srv.Close()

	p := NewOpenMeteoProvider(srv.Client(), "", WithBaseURL(srv.URL), WithBackoff(fastBackoff))
	p.geocode = func(a geocoder.Address) (geocoder.Location, error) {
		assert.Equal(t, "Tokyo", a.City)
		return geocoder.Location{Latitude: 35.6895, Longitude: 139.6917}, nil
	}

	r, err := p.FetchWeather(context.Background(), "Tokyo")
	require.NoError(t, err)
	assert.Equal(t, weather.Reading{
		ProviderName: "openmeteo",
		Temperature:  21.3,
		Description:  "Rain",
		Region:       "Asia",
	}, r)
}

func TestOpenMeteoProviderGeocodeFailure(t *testing.T) {
	p := NewOpenMeteoProvider(http.DefaultClient, "", WithBackoff(fastBackoff))
	p.geocode = func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("ZERO_RESULTS")
	}

	_, err := p.FetchWeather(context.Background(), "Atlantis")
	assert.ErrorContains(t, err, "ZERO_RESULTS")
}

func TestDescribeWeatherCode(t *testing.T) {
	assert.Equal(t, "Clear sky", describeWeatherCode(0))
	assert.Equal(t, "Fog", describeWeatherCode(45))
	assert.Equal(t, "Snow", describeWeatherCode(73))
	assert.Equal(t, "Thunderstorm", describeWeatherCode(96))
	assert.Equal(t, "Unknown", describeWeatherCode(42))
}

type fixedProvider struct {
	name string
	r    weather.Reading
	err  error
}

func (f fixedProvider) Name() string { return f.name }

func (f fixedProvider) FetchWeather(context.Context, string) (weather.Reading, error) {
	return f.r, f.err
}

func TestChainFallsBack(t *testing.T) {
	c := NewChain(
		fixedProvider{name: "a", err: errors.New("down")},
		fixedProvider{name: "b", r: weather.Reading{ProviderName: "b", Region: "Europe"}},
	)
	r, err := c.FetchWeather(context.Background(), "Kyiv")
	require.NoError(t, err)
	assert.Equal(t, "b", r.ProviderName)
	assert.Equal(t, "chain(a,b)", c.Name())
}

func TestChainAllFail(t *testing.T) {
	down := errors.New("down")
	c := NewChain(fixedProvider{name: "a", err: down}, fixedProvider{name: "b", err: errors.New("also down")})
	_, err := c.FetchWeather(context.Background(), "Kyiv")
	assert.ErrorIs(t, err, down)
	assert.ErrorContains(t, err, "also down")
}

func TestBuild(t *testing.T) {
	_, err := Build(Settings{Kind: "auto"}, http.DefaultClient)
	assert.Error(t, err)

	p, err := Build(Settings{Kind: "auto", WeatherAPIKey: "k"}, http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, "weatherapi", p.Name())

	p, err = Build(Settings{WeatherAPIKey: "k", OpenWeatherAPIKey: "o"}, http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, "chain(weatherapi,openweathermap)", p.Name())

	p, err = Build(Settings{Kind: "OpenWeather", WeatherAPIKey: "k", OpenWeatherAPIKey: "o"}, http.DefaultClient)
	require.NoError(t, err)
	assert.Equal(t, "openweathermap", p.Name())

	_, err = Build(Settings{Kind: "openmeteo"}, http.DefaultClient)
	assert.Error(t, err)

	_, err = Build(Settings{Kind: "accuweather", WeatherAPIKey: "k"}, http.DefaultClient)
	assert.Error(t, err)
}

func TestCapitalize(t *testing.T) {
	assert.Equal(t, "Light rain", capitalize("light rain"))
	assert.Equal(t, "Overcast clouds", capitalize("OVERCAST Clouds"))
	assert.Equal(t, "Ясно", capitalize(" ясНО "))
	assert.Equal(t, "", capitalize(""))
}

func TestRegionFromTimezone(t *testing.T) {
	assert.Equal(t, "Europe", regionFromTimezone("Europe/Kyiv"))
	assert.Equal(t, "America", regionFromTimezone("America/Argentina/Buenos_Aires"))
	assert.Equal(t, "UTC", regionFromTimezone("UTC"))
}
