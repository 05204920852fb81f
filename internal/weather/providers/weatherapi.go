package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sony/gobreaker"

	"github.com/i474232898/regional-weather/internal/weather"
)

const weatherAPIURL = "https://api.weatherapi.com/v1/current.json"

// WeatherAPIProvider implements the weather.Provider interface for WeatherAPI.com.
// The region is the area of the location's IANA time zone.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(client *http.Client, apiKey string, opts ...Option) *WeatherAPIProvider {
	o := applyOptions(weatherAPIURL, opts)
	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: o.baseURL,
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: o.backoff,
		},
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) FetchWeather(ctx context.Context, city string) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, fmt.Errorf("weatherapi: %w", errNoAPIKey)
	}

	values := url.Values{}
	values.Set("key", p.apiKey)
	values.Set("q", city)
	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	var payload struct {
		Location struct {
			TzID *string `json:"tz_id"`
		} `json:"location"`
		Current struct {
			TempC     *float64 `json:"temp_c"`
			Condition struct {
				Text *string `json:"text"`
			} `json:"condition"`
		} `json:"current"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return weather.Reading{}, fmt.Errorf("weatherapi %s: %w", city, err)
	}

	switch {
	case payload.Current.TempC == nil:
		return weather.Reading{}, missing("current.temp_c")
	case payload.Current.Condition.Text == nil:
		return weather.Reading{}, missing("current.condition.text")
	case payload.Location.TzID == nil || *payload.Location.TzID == "":
		return weather.Reading{}, missing("location.tz_id")
	}

	return weather.Reading{
		ProviderName: p.name,
		Temperature:  *payload.Current.TempC,
		Description:  strings.TrimSpace(*payload.Current.Condition.Text),
		Region:       regionFromTimezone(*payload.Location.TzID),
	}, nil
}
