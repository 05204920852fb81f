package weather

import (
	"errors"
	"fmt"
	"regexp"
)

var (
	ErrNormalization = errors.New("city normalization failed")
	ErrProvider      = errors.New("weather provider failed")
	ErrValidation    = errors.New("weather reading failed validation")
	ErrPersistence   = errors.New("partition write failed")

	// ErrStoreUnavailable means the store as a whole cannot be written to.
	// It aborts the run instead of a single city.
	ErrStoreUnavailable = fmt.Errorf("%w: store unavailable", ErrPersistence)

	ErrRegionNotFound   = errors.New("region not found")
	ErrRegionUnreadable = errors.New("region unreadable")
	ErrCorruptPartition = errors.New("corrupt partition")

	errInvalidName = errors.New("invalid name")
)

// CityError is a per-city failure. errors.Is matches both the sentinel of its
// Kind and the underlying cause.
type CityError struct {
	City string
	Kind ErrorKind
	Err  error
}

func (e *CityError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.City, e.Kind, e.Err)
}

func (e *CityError) Unwrap() []error {
	return []error{kindSentinel(e.Kind), e.Err}
}

func kindSentinel(k ErrorKind) error {
	switch k {
	case KindNormalization:
		return ErrNormalization
	case KindProvider:
		return ErrProvider
	case KindValidation:
		return ErrValidation
	default:
		return ErrPersistence
	}
}

var nameRe = regexp.MustCompile(`^[A-Za-z0-9_-][A-Za-z0-9_.-]*$`)

// ValidateName checks that a region or run id is usable as a single path segment.
func ValidateName(name string) error {
	if len(name) > 128 || !nameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", errInvalidName, name)
	}
	return nil
}
