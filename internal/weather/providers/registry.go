package providers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/i474232898/regional-weather/internal/weather"
)

// Provider names accepted by Build.
const (
	KindAuto        = "auto"
	KindWeatherAPI  = "weatherapi"
	KindOpenWeather = "openweather"
	KindOpenMeteo   = "openmeteo"
)

// Settings selects and configures the provider strategy.
type Settings struct {
	Kind string

	WeatherAPIKey string
	WeatherAPIURL string

	OpenWeatherAPIKey string
	OpenWeatherURL    string
	OpenWeatherGeoURL string
	CountriesURL      string

	GeocoderAPIKey string
	OpenMeteoURL   string
}

// Build returns the provider named by s.Kind. "auto" chains every provider
// with credentials, in the order WeatherAPI, OpenWeatherMap, Open-Meteo.
func Build(s Settings, client *http.Client) (weather.Provider, error) {
	weatherAPI := func() weather.Provider {
		return NewWeatherAPIProvider(client, s.WeatherAPIKey, optURL(WithBaseURL, s.WeatherAPIURL)...)
	}
	openWeather := func() weather.Provider {
		opts := optURL(WithBaseURL, s.OpenWeatherURL)
		opts = append(opts, optURL(WithGeoURL, s.OpenWeatherGeoURL)...)
		opts = append(opts, optURL(WithCountriesURL, s.CountriesURL)...)
		return NewOpenWeatherProvider(client, s.OpenWeatherAPIKey, opts...)
	}
	openMeteo := func() weather.Provider {
		return NewOpenMeteoProvider(client, s.GeocoderAPIKey, optURL(WithBaseURL, s.OpenMeteoURL)...)
	}

	switch strings.ToLower(strings.TrimSpace(s.Kind)) {
	case KindWeatherAPI:
		if s.WeatherAPIKey == "" {
			return nil, fmt.Errorf("weatherapi selected but WEATHERAPI_API_KEY is empty")
		}
		return weatherAPI(), nil
	case KindOpenWeather:
		if s.OpenWeatherAPIKey == "" {
			return nil, fmt.Errorf("openweather selected but OPENWEATHER_API_KEY is empty")
		}
		return openWeather(), nil
	case KindOpenMeteo:
		if s.GeocoderAPIKey == "" {
			return nil, fmt.Errorf("openmeteo selected but GEOCODER_API_KEY is empty")
		}
		return openMeteo(), nil
	case "", KindAuto:
		var chain []weather.Provider
		if s.WeatherAPIKey != "" {
			chain = append(chain, weatherAPI())
		}
		if s.OpenWeatherAPIKey != "" {
			chain = append(chain, openWeather())
		}
		if s.GeocoderAPIKey != "" {
			chain = append(chain, openMeteo())
		}
		switch len(chain) {
		case 0:
			return nil, fmt.Errorf("no API key found; unable to get weather")
		case 1:
			return chain[0], nil
		default:
			return NewChain(chain...), nil
		}
	default:
		return nil, fmt.Errorf("unknown weather provider %q", s.Kind)
	}
}

func optURL(with func(string) Option, u string) []Option {
	if u == "" {
		return nil
	}
	return []Option{with(u)}
}
