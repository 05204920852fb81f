package weather

import (
	"fmt"
	"math"

	"github.com/go-playground/validator/v10"
)

// Plausible surface air temperatures in Celsius; the recorded extremes sit
// just inside these bounds.
const (
	DefaultMinTemperatureC = -90.0
	DefaultMaxTemperatureC = 60.0
)

var validate = validator.New()

// TemperatureRange bounds the accepted readings, inclusive.
type TemperatureRange struct {
	Min float64
	Max float64
}

// DefaultTemperatureRange returns the range used when none is configured.
func DefaultTemperatureRange() TemperatureRange {
	return TemperatureRange{Min: DefaultMinTemperatureC, Max: DefaultMaxTemperatureC}
}

// ValidateRecord rejects records without a city and readings that are not
// finite or fall outside r. Values inside the range are accepted.
func (r TemperatureRange) ValidateRecord(rec WeatherRecord) error {
	if err := validate.Struct(rec); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if math.IsNaN(rec.Temperature) || math.IsInf(rec.Temperature, 0) {
		return fmt.Errorf("%w: temperature %v is not a finite number", ErrValidation, rec.Temperature)
	}
	tag := fmt.Sprintf("gte=%g,lte=%g", r.Min, r.Max)
	if err := validate.Var(rec.Temperature, tag); err != nil {
		return fmt.Errorf("%w: temperature %.2f outside [%g, %g]", ErrValidation, rec.Temperature, r.Min, r.Max)
	}
	return nil
}
