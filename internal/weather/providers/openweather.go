package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sony/gobreaker"

	"github.com/i474232898/regional-weather/internal/common"
	"github.com/i474232898/regional-weather/internal/weather"
)

const (
	openWeatherURL    = "https://api.openweathermap.org/data/2.5/weather"
	openWeatherGeoURL = "https://api.openweathermap.org/geo/1.0/direct"
	restCountriesURL  = "https://restcountries.com/v3.1/alpha"
)

// OpenWeatherProvider implements the weather.Provider interface for OpenWeatherMap.
// The city is geocoded first; the region is the continent of the reported
// country, looked up on restcountries.com.
type OpenWeatherProvider struct {
	name         string
	apiKey       string
	baseURL      string
	geoURL       string
	countriesURL string
	httpCfg      HTTPClientConfig
	circuit      *gobreaker.CircuitBreaker

	// country code -> continent
	continents *xsync.Map[string, string]
}

func NewOpenWeatherProvider(client *http.Client, apiKey string, opts ...Option) *OpenWeatherProvider {
	o := applyOptions(openWeatherURL, opts)
	if o.geoURL == "" {
		o.geoURL = openWeatherGeoURL
	}
	if o.countriesURL == "" {
		o.countriesURL = restCountriesURL
	}

	return &OpenWeatherProvider{
		name:         "openweathermap",
		apiKey:       apiKey,
		baseURL:      o.baseURL,
		geoURL:       o.geoURL,
		countriesURL: strings.TrimSuffix(o.countriesURL, "/"),
		httpCfg: HTTPClientConfig{
			Client:  client,
			Backoff: o.backoff,
		},
		circuit:    newCircuitBreaker("openweather"),
		continents: xsync.NewMap[string, string](),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) FetchWeather(ctx context.Context, city string) (weather.Reading, error) {
	if p.apiKey == "" {
		return weather.Reading{}, fmt.Errorf("openweather: %w", errNoAPIKey)
	}

	lat, lon, err := p.geocode(ctx, city)
	if err != nil {
		return weather.Reading{}, fmt.Errorf("openweather geocode %s: %w", city, err)
	}

	values := url.Values{}
	values.Set("appid", p.apiKey)
	values.Set("units", "metric")
	values.Set("lat", fmt.Sprintf("%.2f", lat))
	values.Set("lon", fmt.Sprintf("%.2f", lon))
	u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())

	var payload struct {
		Main struct {
			Temp *float64 `json:"temp"`
		} `json:"main"`
		Sys struct {
			Country string `json:"country"`
		} `json:"sys"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &payload); err != nil {
		return weather.Reading{}, fmt.Errorf("openweather %s: %w", city, err)
	}

	switch {
	case payload.Main.Temp == nil:
		return weather.Reading{}, missing("main.temp")
	case len(payload.Weather) == 0:
		return weather.Reading{}, missing("weather[0].description")
	case payload.Sys.Country == "":
		return weather.Reading{}, missing("sys.country")
	}

	region, err := p.continent(ctx, payload.Sys.Country)
	if err != nil {
		return weather.Reading{}, fmt.Errorf("openweather continent of %s: %w", payload.Sys.Country, err)
	}

	return weather.Reading{
		ProviderName: p.name,
		Temperature:  *payload.Main.Temp,
		Description:  capitalize(payload.Weather[0].Description),
		Region:       region,
	}, nil
}

func (p *OpenWeatherProvider) geocode(ctx context.Context, city string) (float64, float64, error) {
	values := url.Values{}
	values.Set("q", city)
	values.Set("limit", "1")
	values.Set("appid", p.apiKey)
	u := fmt.Sprintf("%s?%s", p.geoURL, values.Encode())

	var places []struct {
		Lat *float64 `json:"lat"`
		Lon *float64 `json:"lon"`
	}
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &places); err != nil {
		return 0, 0, err
	}
	if len(places) == 0 || places[0].Lat == nil || places[0].Lon == nil {
		return 0, 0, fmt.Errorf("no coordinates for %q", city)
	}
	return *places[0].Lat, *places[0].Lon, nil
}

// continent maps an ISO country code to its continent. Both Americas collapse
// into "America" so they share a region with the time-zone based providers.
func (p *OpenWeatherProvider) continent(ctx context.Context, country string) (string, error) {
	code := strings.ToUpper(country)
	if c, ok := p.continents.Load(code); ok {
		return c, nil
	}

	var countries []struct {
		Continents []string `json:"continents"`
	}
	u := fmt.Sprintf("%s/%s", p.countriesURL, url.PathEscape(code))
	if err := getJSON(ctx, p.httpCfg, p.circuit, u, &countries); err != nil {
		return "", err
	}
	if len(countries) == 0 || len(countries[0].Continents) == 0 {
		return "", missing("continents")
	}

	c := countries[0].Continents[0]
	if common.HasAny(c, "America") {
		c = "America"
	}
	c = strings.ReplaceAll(c, " ", "_")
	p.continents.Store(code, c)
	return c, nil
}

func capitalize(s string) string {
	s = strings.TrimSpace(s)
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToTitle(r)) + strings.ToLower(s[size:])
}
