package weather

import (
	"time"
)

// WeatherRecord is the persisted unit of a partition.
// City is the canonical (post-normalization) name; Temperature is in Celsius.
type WeatherRecord struct {
	City        string  `json:"city" validate:"required"`
	Temperature float64 `json:"temperature"`
	Description string  `json:"description"`
}

// Reading is what a provider returns for a single city.
type Reading struct {
	ProviderName string
	Temperature  float64
	Description  string
	Region       string
}

// Record converts the reading into the record stored for city.
func (r Reading) Record(city string) WeatherRecord {
	return WeatherRecord{
		City:        city,
		Temperature: r.Temperature,
		Description: r.Description,
	}
}

// Partition identifies one stored (region, run) file.
// Path is relative to the store root and always slash separated.
type Partition struct {
	Region    string    `json:"region"`
	RunID     string    `json:"run_id"`
	Path      string    `json:"path"`
	WrittenAt time.Time `json:"written_at"`
}

// Ref returns the manifest reference of the partition.
func (p Partition) Ref() PartitionRef {
	return PartitionRef{Region: p.Region, Path: p.Path}
}

// PartitionRef is a (region, path) pair reported in a run manifest.
type PartitionRef struct {
	Region string `json:"region"`
	Path   string `json:"path"`
}

// ErrorKind classifies a per-city failure.
type ErrorKind string

const (
	KindNormalization ErrorKind = "normalization"
	KindProvider      ErrorKind = "provider"
	KindValidation    ErrorKind = "validation"
	KindPersistence   ErrorKind = "persistence"
)

// CityResult is the outcome of one city of a batch.
// Kind is empty when the city was stored.
type CityResult struct {
	City      string    `json:"city"`
	Canonical string    `json:"canonical,omitempty"`
	Region    string    `json:"region,omitempty"`
	Kind      ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// OK reports whether the city made it into a partition.
func (r CityResult) OK() bool {
	return r.Kind == ""
}

// RunManifest lists what a single ingestion run wrote.
type RunManifest struct {
	RunID      string         `json:"run_id"`
	Partitions []PartitionRef `json:"partitions"`
	Cities     []CityResult   `json:"cities"`
}

// Succeeded returns the number of cities written to the store.
func (m RunManifest) Succeeded() int {
	n := 0
	for _, c := range m.Cities {
		if c.OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of cities that were skipped.
func (m RunManifest) Failed() int {
	return len(m.Cities) - m.Succeeded()
}

// Empty reports whether the run produced no partition at all.
func (m RunManifest) Empty() bool {
	return len(m.Partitions) == 0
}

// Paths returns the partition paths in manifest order.
func (m RunManifest) Paths() []string {
	paths := make([]string, 0, len(m.Partitions))
	for _, p := range m.Partitions {
		paths = append(paths, p.Path)
	}
	return paths
}
