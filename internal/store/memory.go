package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/regional-weather/internal/weather"
)

type memPartition struct {
	records   []weather.WeatherRecord
	seq       uint64
	writtenAt time.Time
}

func (mp *memPartition) partition(region, runID string) weather.Partition {
	return weather.Partition{
		Region:    region,
		RunID:     runID,
		Path:      PartitionPath(region, runID),
		WrittenAt: mp.writtenAt,
	}
}

// MemoryStore is a concurrency-safe in-memory implementation of weather.Store.
// Recency is a write sequence number, so it has no timestamp ties.
type MemoryStore struct {
	mu sync.RWMutex

	// key: region, then run id
	data map[string]map[string]*memPartition
	seq  uint64
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]*memPartition),
	}
}

// WritePartition appends records to the partition of (region, runID).
func (s *MemoryStore) WritePartition(region, runID string, records []weather.WeatherRecord) (weather.Partition, error) {
	return s.write(region, runID, records, false)
}

// ReplacePartition makes records the whole content of the partition.
func (s *MemoryStore) ReplacePartition(region, runID string, records []weather.WeatherRecord) (weather.Partition, error) {
	return s.write(region, runID, records, true)
}

func (s *MemoryStore) write(region, runID string, records []weather.WeatherRecord, replace bool) (weather.Partition, error) {
	if err := weather.ValidateName(region); err != nil {
		return weather.Partition{}, fmt.Errorf("%w: region: %v", weather.ErrPersistence, err)
	}
	if err := weather.ValidateName(runID); err != nil {
		return weather.Partition{}, fmt.Errorf("%w: run id: %v", weather.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runs, ok := s.data[region]
	if !ok {
		runs = make(map[string]*memPartition)
		s.data[region] = runs
	}
	p, ok := runs[runID]
	if !ok {
		p = &memPartition{}
		runs[runID] = p
	}

	s.seq++
	if replace {
		p.records = nil
	}
	p.records = append(p.records, records...)
	p.seq = s.seq
	p.writtenAt = time.Now()

	return p.partition(region, runID), nil
}

// RunPartitions returns the partitions of runID, ordered by region.
func (s *MemoryStore) RunPartitions(runID string) ([]weather.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []weather.Partition
	for region, runs := range s.data {
		if mp, ok := runs[runID]; ok {
			out = append(out, mp.partition(region, runID))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Region < out[j].Region
	})
	return out, nil
}

// DeletePartition removes the partition of (p.Region, p.RunID), if any.
func (s *MemoryStore) DeletePartition(p weather.Partition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runs, ok := s.data[p.Region]
	if !ok {
		return nil
	}
	delete(runs, p.RunID)
	if len(runs) == 0 {
		delete(s.data, p.Region)
	}
	return nil
}

// ListPartitions returns the partitions of region, most recently written first.
func (s *MemoryStore) ListPartitions(region string) ([]weather.Partition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs, ok := s.data[region]
	if !ok || len(runs) == 0 {
		return nil, fmt.Errorf("%w: %s", weather.ErrRegionNotFound, region)
	}

	type ordered struct {
		p   weather.Partition
		seq uint64
	}
	list := make([]ordered, 0, len(runs))
	for runID, mp := range runs {
		list = append(list, ordered{p: mp.partition(region, runID), seq: mp.seq})
	}

	sort.Slice(list, func(i, j int) bool {
		return list[i].seq > list[j].seq
	})

	out := make([]weather.Partition, 0, len(list))
	for _, o := range list {
		out = append(out, o.p)
	}
	return out, nil
}

// ReadPartition returns a copy of the records of p.
func (s *MemoryStore) ReadPartition(p weather.Partition) ([]weather.WeatherRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mp, ok := s.data[p.Region][p.RunID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", weather.ErrCorruptPartition, p.Path)
	}
	out := make([]weather.WeatherRecord, len(mp.records))
	copy(out, mp.records)
	return out, nil
}
