package weather

import (
	"context"
)

// Provider abstracts a weather data source (e.g. WeatherAPI, OpenWeatherMap, Open-Meteo).
type Provider interface {
	Name() string
	FetchWeather(ctx context.Context, city string) (Reading, error)
}

// Normalizer turns a raw, user supplied city name into its canonical form.
type Normalizer interface {
	Normalize(raw string) (string, error)
}

// Store is the contract of the regional, run-partitioned store.
//
// WritePartition appends to the partition of (region, runID), creating it on
// first write. ReplacePartition publishes records as the whole content of the
// partition. Both must be atomic for writers of the same (region, runID) pair
// and must not block writers of other pairs. ListPartitions returns the
// partitions of a region newest first; RunPartitions returns every partition
// of a run, across regions.
type Store interface {
	WritePartition(region, runID string, records []WeatherRecord) (Partition, error)
	ReplacePartition(region, runID string, records []WeatherRecord) (Partition, error)
	ListPartitions(region string) ([]Partition, error)
	ReadPartition(p Partition) ([]WeatherRecord, error)
	RunPartitions(runID string) ([]Partition, error)
	DeletePartition(p Partition) error
}
