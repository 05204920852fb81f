package weather

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/i474232898/regional-weather/internal/metrics"
)

const (
	defaultFetchTimeout = 15 * time.Second
	defaultConcurrency  = 4
)

// Ingestor runs one ingestion task: per-city normalize, fetch, validate and
// partition write, isolating every city from the failures of the others.
type Ingestor struct {
	store      Store
	provider   Provider
	normalizer Normalizer

	fetchTimeout time.Duration
	concurrency  int
	tempRange    TemperatureRange

	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithFetchTimeout bounds every provider call.
func WithFetchTimeout(d time.Duration) IngestorOption {
	return func(in *Ingestor) {
		if d > 0 {
			in.fetchTimeout = d
		}
	}
}

// WithConcurrency limits how many cities are fetched at once.
func WithConcurrency(n int) IngestorOption {
	return func(in *Ingestor) {
		if n > 0 {
			in.concurrency = n
		}
	}
}

// WithTemperatureRange sets the accepted temperature range.
func WithTemperatureRange(r TemperatureRange) IngestorOption {
	return func(in *Ingestor) {
		in.tempRange = r
	}
}

// WithLogger sets the logger used for per-city and per-run events.
func WithLogger(l logrus.FieldLogger) IngestorOption {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m *metrics.Metrics) IngestorOption {
	return func(in *Ingestor) {
		in.metrics = m
	}
}

// NewIngestor creates an Ingestor writing to store with the given provider strategy.
func NewIngestor(store Store, provider Provider, normalizer Normalizer, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		store:        store,
		provider:     provider,
		normalizer:   normalizer,
		fetchTimeout: defaultFetchTimeout,
		concurrency:  defaultConcurrency,
		tempRange:    DefaultTemperatureRange(),
		logger:       logrus.StandardLogger(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(in)
		}
	}
	return in
}

type cityOutcome struct {
	result CityResult
	record WeatherRecord
	region string
	err    error
}

func (o *cityOutcome) fail(kind ErrorKind, err error) {
	o.err = &CityError{City: o.result.City, Kind: kind, Err: err}
	o.result.Kind = kind
	o.result.Error = err.Error()
}

// Run processes a batch of cities for runID and returns the manifest of the
// partitions it touched. Per-city failures are reported in the manifest and
// never fail the run; only an unusable store returns an error.
//
// Running the same runID again leaves the store as if only the last run had
// happened.
//
// Fetches fan out concurrently. Writes happen afterwards in batch order, so
// records within a partition keep the order of the submitted cities.
func (in *Ingestor) Run(ctx context.Context, runID string, cities []string) (RunManifest, error) {
	manifest := RunManifest{
		RunID:      runID,
		Partitions: []PartitionRef{},
		Cities:     make([]CityResult, 0, len(cities)),
	}
	if err := ValidateName(runID); err != nil {
		return manifest, fmt.Errorf("invalid run id: %w", err)
	}

	log := in.logger.WithField("run_id", runID)
	start := time.Now()

	outcomes := make([]cityOutcome, len(cities))
	var g errgroup.Group
	g.SetLimit(in.concurrency)
	for i, raw := range cities {
		g.Go(func() error {
			outcomes[i] = in.prepare(ctx, raw)
			return nil
		})
	}
	_ = g.Wait()

	// Partitions left by an earlier attempt of this run. The first write of a
	// region replaces its partition and the leftovers of regions this attempt
	// did not write are removed, so a re-run never keeps records of cities
	// that failed this time.
	previous, err := in.store.RunPartitions(runID)
	if err != nil {
		log.WithError(err).Error("cannot list partitions of a previous attempt; aborting run")
		return manifest, fmt.Errorf("run %s: %w", runID, err)
	}

	seen := make(map[string]struct{})
	fresh := make(map[string]struct{})
	for i := range outcomes {
		o := &outcomes[i]
		if o.err == nil {
			write := in.store.WritePartition
			if _, ok := fresh[o.region]; !ok {
				write = in.store.ReplacePartition
			}
			p, err := write(o.region, runID, []WeatherRecord{o.record})
			switch {
			case errors.Is(err, ErrStoreUnavailable):
				in.metrics.IncPartitionWrite("error")
				log.WithError(err).Error("partition store unavailable; aborting run")
				return manifest, fmt.Errorf("run %s: %w", runID, err)
			case err != nil:
				in.metrics.IncPartitionWrite("error")
				o.fail(KindPersistence, err)
			default:
				in.metrics.IncPartitionWrite("ok")
				fresh[o.region] = struct{}{}
				o.result.Region = o.region
				if _, ok := seen[p.Path]; !ok {
					seen[p.Path] = struct{}{}
					manifest.Partitions = append(manifest.Partitions, p.Ref())
				}
			}
		}

		if o.err != nil {
			log.WithFields(logrus.Fields{
				"city": o.result.City,
				"kind": o.result.Kind,
			}).WithError(o.err).Warn("city skipped")
			in.metrics.IncCityOutcome(string(o.result.Kind))
		} else {
			in.metrics.IncCityOutcome("ok")
		}
		manifest.Cities = append(manifest.Cities, o.result)
	}

	for _, p := range previous {
		if _, ok := fresh[p.Region]; ok {
			continue
		}
		if err := in.store.DeletePartition(p); err != nil {
			log.WithField("partition", p.Path).WithError(err).Error("cannot remove partition of a previous attempt")
			return manifest, fmt.Errorf("run %s: remove stale partition %s: %w", runID, p.Path, err)
		}
		log.WithField("partition", p.Path).Info("removed partition of a previous attempt")
	}

	sort.SliceStable(manifest.Partitions, func(i, j int) bool {
		return manifest.Partitions[i].Region < manifest.Partitions[j].Region
	})

	fields := logrus.Fields{
		"cities":     len(cities),
		"succeeded":  manifest.Succeeded(),
		"failed":     manifest.Failed(),
		"partitions": len(manifest.Partitions),
		"duration":   time.Since(start).String(),
	}
	if len(cities) > 0 && manifest.Empty() {
		log.WithFields(fields).Warn("ingestion run stored no city")
	} else {
		log.WithFields(fields).Info("ingestion run finished")
	}
	return manifest, nil
}

// prepare runs the network and validation steps for a single city.
func (in *Ingestor) prepare(ctx context.Context, raw string) cityOutcome {
	out := cityOutcome{result: CityResult{City: raw}}

	canonical, err := in.normalizer.Normalize(raw)
	if err != nil {
		out.fail(KindNormalization, err)
		return out
	}
	out.result.Canonical = canonical

	fetchCtx, cancel := context.WithTimeout(ctx, in.fetchTimeout)
	defer cancel()

	reading, err := in.provider.FetchWeather(fetchCtx, canonical)
	if err != nil {
		out.fail(KindProvider, err)
		return out
	}
	if err := ValidateName(reading.Region); err != nil {
		out.fail(KindProvider, fmt.Errorf("unusable region from %s: %w", reading.ProviderName, err))
		return out
	}

	rec := reading.Record(canonical)
	if err := in.tempRange.ValidateRecord(rec); err != nil {
		out.fail(KindValidation, err)
		return out
	}

	out.record = rec
	out.region = reading.Region
	return out
}
