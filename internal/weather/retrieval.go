package weather

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/i474232898/regional-weather/internal/metrics"
)

// Retriever serves the deduplicated view of a region.
type Retriever struct {
	store   Store
	logger  logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewRetriever creates a Retriever over store.
func NewRetriever(store Store, logger logrus.FieldLogger, m *metrics.Metrics) *Retriever {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Retriever{store: store, logger: logger, metrics: m}
}

// GetRegion returns one record per city, taken from the most recently written
// partition that holds the city. Records come grouped by partition, newest
// partition first, each group in its written order.
//
// Unreadable partitions are skipped; if none of them can be read the call
// fails with ErrRegionUnreadable.
func (r *Retriever) GetRegion(region string) ([]WeatherRecord, error) {
	if err := ValidateName(region); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRegionNotFound, err)
	}

	partitions, err := r.store.ListPartitions(region)
	if err != nil {
		return nil, err
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, region)
	}

	var (
		results = make([]WeatherRecord, 0)
		seen    = make(map[string]struct{})
		failed  int
	)
	for _, p := range partitions {
		records, err := r.store.ReadPartition(p)
		if err != nil {
			failed++
			r.metrics.IncPartitionsSkipped()
			r.logger.WithFields(logrus.Fields{
				"region":    region,
				"partition": p.Path,
			}).WithError(err).Warn("skipping unreadable partition")
			continue
		}
		for _, rec := range records {
			if _, ok := seen[rec.City]; ok {
				continue
			}
			seen[rec.City] = struct{}{}
			results = append(results, rec)
		}
	}

	if failed == len(partitions) {
		return nil, fmt.Errorf("%w: %s: none of %d partitions could be read", ErrRegionUnreadable, region, failed)
	}
	return results, nil
}
