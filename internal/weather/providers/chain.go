package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/i474232898/regional-weather/internal/weather"
)

// Chain tries its providers in order and returns the first successful reading.
type Chain struct {
	providers []weather.Provider
}

// NewChain creates a Chain over providers.
func NewChain(providers ...weather.Provider) *Chain {
	return &Chain{providers: providers}
}

func (c *Chain) Name() string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return "chain(" + strings.Join(names, ",") + ")"
}

func (c *Chain) FetchWeather(ctx context.Context, city string) (weather.Reading, error) {
	if len(c.providers) == 0 {
		return weather.Reading{}, errors.New("no weather providers configured")
	}

	var errs []error
	for _, p := range c.providers {
		r, err := p.FetchWeather(ctx, city)
		if err == nil {
			return r, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if ctx.Err() != nil {
			break
		}
	}
	return weather.Reading{}, errors.Join(errs...)
}
