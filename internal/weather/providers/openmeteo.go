package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/kelvins/geocoder"
	"github.com/sony/gobreaker"

	"github.com/i474232898/regional-weather/internal/weather"
)

const openMeteoURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
// Open-Meteo needs coordinates, which come from the Google Geocoding API.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker

	geocode func(geocoder.Address) (geocoder.Location, error)
}

// NewOpenMeteoProvider creates the provider. geocoderAPIKey is the Google API
// key used by the geocoder package, which keeps it in a package variable.
func NewOpenMeteoProvider(client *http.Client, geocoderAPIKey string, opts ...Option) *OpenMeteoProvider {
	o := applyOptions(openMeteoURL, opts)
	if geocoderAPIKey != "" {
		geocoder.ApiKey = geocoderAPIKey
	}

	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: o.backoff,
		},
		circuit: newCircuitBreaker("openmeteo"),
		geocode: geocoder.Geocoding,
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) FetchWeather(ctx context.Context, city string) (weather.Reading, error) {
	loc, err := p.lookup(ctx, city)
	if err != nil {
		return weather.Reading{}, fmt.Errorf("openmeteo geocode %s: %w", city, err)
	}

	values := url.Values{}
	values.Set("latitude", fmt.Sprintf("%f", loc.Latitude))
	values.Set("longitude", fmt.Sprintf("%f", loc.Longitude))
	values.Set("current_weather", "true")
	values.Set("timezone", "auto")
	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	var payload struct {
		Timezone       string `json:"timezone"`
		CurrentWeather *struct {
			Temperature *float64 `json:"temperature"`
			WeatherCode *int     `json:"weathercode"`
		} `json:"current_weather"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return weather.Reading{}, fmt.Errorf("openmeteo %s: %w", city, err)
	}

	switch {
	case payload.CurrentWeather == nil || payload.CurrentWeather.Temperature == nil:
		return weather.Reading{}, missing("current_weather.temperature")
	case payload.CurrentWeather.WeatherCode == nil:
		return weather.Reading{}, missing("current_weather.weathercode")
	case payload.Timezone == "":
		return weather.Reading{}, missing("timezone")
	}

	return weather.Reading{
		ProviderName: p.name,
		Temperature:  *payload.CurrentWeather.Temperature,
		Description:  describeWeatherCode(*payload.CurrentWeather.WeatherCode),
		Region:       regionFromTimezone(payload.Timezone),
	}, nil
}

// lookup runs the blocking geocoder call so that it still honours ctx.
func (p *OpenMeteoProvider) lookup(ctx context.Context, city string) (geocoder.Location, error) {
	type result struct {
		loc geocoder.Location
		err error
	}
	ch := make(chan result, 1)
	go func() {
		loc, err := p.geocode(geocoder.Address{City: city})
		ch <- result{loc: loc, err: err}
	}()

	select {
	case <-ctx.Done():
		return geocoder.Location{}, ctx.Err()
	case r := <-ch:
		return r.loc, r.err
	}
}

// describeWeatherCode maps WMO weather codes to a short description (simplified).
func describeWeatherCode(code int) string {
	switch {
	case code == 0:
		return "Clear sky"
	case code >= 1 && code <= 3:
		return "Partly cloudy"
	case code == 45 || code == 48:
		return "Fog"
	case code >= 51 && code <= 57:
		return "Drizzle"
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return "Rain"
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return "Snow"
	case code >= 95:
		return "Thunderstorm"
	default:
		return "Unknown"
	}
}
