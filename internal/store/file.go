package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
	"github.com/sirupsen/logrus"

	"github.com/i474232898/regional-weather/internal/weather"
)

const (
	partitionPrefix = "task_"
	partitionExt    = ".json"
)

// FileStore keeps one JSON file per (region, run) under <root>/<region>/.
//
// Writers of the same partition are serialized by a per-partition mutex and
// publish through write-temp-then-rename, so readers never need a lock and
// never see a partially written file.
type FileStore struct {
	root   string
	locks  *xsync.Map[string, *sync.Mutex]
	logger logrus.FieldLogger
}

// NewFileStore creates the root directory if needed and returns a store over it.
func NewFileStore(root string, logger logrus.FieldLogger) (*FileStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrStoreUnavailable, err)
	}
	return &FileStore{
		root:   root,
		locks:  xsync.NewMap[string, *sync.Mutex](),
		logger: logger,
	}, nil
}

// Root returns the directory the store writes under.
func (s *FileStore) Root() string {
	return s.root
}

// PartitionPath returns the store-relative path of a (region, run) partition.
func PartitionPath(region, runID string) string {
	return path.Join(region, partitionPrefix+runID+partitionExt)
}

func (s *FileStore) lockFor(region, runID string) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(region+"/"+runID, &sync.Mutex{})
	return mu
}

// WritePartition appends records to the partition of (region, runID),
// creating it on first write. An undecodable partition of the same run is
// replaced.
func (s *FileStore) WritePartition(region, runID string, records []weather.WeatherRecord) (weather.Partition, error) {
	return s.write(region, runID, records, false)
}

// ReplacePartition makes records the whole content of the partition of
// (region, runID). Readers see either the previous content or the new one.
func (s *FileStore) ReplacePartition(region, runID string, records []weather.WeatherRecord) (weather.Partition, error) {
	return s.write(region, runID, records, true)
}

func (s *FileStore) write(region, runID string, records []weather.WeatherRecord, replace bool) (weather.Partition, error) {
	if err := weather.ValidateName(region); err != nil {
		return weather.Partition{}, fmt.Errorf("%w: region: %v", weather.ErrPersistence, err)
	}
	if err := weather.ValidateName(runID); err != nil {
		return weather.Partition{}, fmt.Errorf("%w: run id: %v", weather.ErrPersistence, err)
	}

	mu := s.lockFor(region, runID)
	mu.Lock()
	defer mu.Unlock()

	if err := s.checkRoot(); err != nil {
		return weather.Partition{}, err
	}

	rel := PartitionPath(region, runID)
	dir := filepath.Join(s.root, region)
	if err := os.Mkdir(dir, 0o755); err != nil && !errors.Is(err, fs.ErrExist) {
		return weather.Partition{}, s.writeErr(err)
	}

	full := filepath.Join(s.root, filepath.FromSlash(rel))
	var existing []weather.WeatherRecord
	if !replace {
		var err error
		existing, err = readRecordsFile(full)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			existing = nil
		case errors.Is(err, weather.ErrCorruptPartition):
			s.logger.WithField("partition", rel).WithError(err).Warn("replacing undecodable partition")
			existing = nil
		case err != nil:
			return weather.Partition{}, s.writeErr(err)
		}
	}

	merged := make([]weather.WeatherRecord, 0, len(existing)+len(records))
	merged = append(append(merged, existing...), records...)
	data, err := encodeRecords(merged)
	if err != nil {
		return weather.Partition{}, fmt.Errorf("%w: %v", weather.ErrPersistence, err)
	}
	if err := writeFileAtomic(dir, filepath.Base(full), data); err != nil {
		return weather.Partition{}, s.writeErr(err)
	}

	info, err := os.Stat(full)
	if err != nil {
		return weather.Partition{}, s.writeErr(err)
	}
	return weather.Partition{
		Region:    region,
		RunID:     runID,
		Path:      rel,
		WrittenAt: info.ModTime(),
	}, nil
}

// RunPartitions returns the partitions written for runID in any region,
// ordered by region.
func (s *FileStore) RunPartitions(runID string) ([]weather.Partition, error) {
	if err := weather.ValidateName(runID); err != nil {
		return nil, fmt.Errorf("%w: run id: %v", weather.ErrPersistence, err)
	}
	if err := s.checkRoot(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, s.writeErr(err)
	}

	var partitions []weather.Partition
	for _, e := range entries {
		region := e.Name()
		if !e.IsDir() || weather.ValidateName(region) != nil {
			continue
		}
		rel := PartitionPath(region, runID)
		info, err := os.Stat(filepath.Join(s.root, filepath.FromSlash(rel)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, s.writeErr(err)
		}
		partitions = append(partitions, weather.Partition{
			Region:    region,
			RunID:     runID,
			Path:      rel,
			WrittenAt: info.ModTime(),
		})
	}
	return partitions, nil
}

// DeletePartition removes the partition of (p.Region, p.RunID). Removing a
// missing partition is not an error.
func (s *FileStore) DeletePartition(p weather.Partition) error {
	if weather.ValidateName(p.Region) != nil || weather.ValidateName(p.RunID) != nil {
		return fmt.Errorf("%w: invalid partition %s/%s", weather.ErrPersistence, p.Region, p.RunID)
	}

	mu := s.lockFor(p.Region, p.RunID)
	mu.Lock()
	defer mu.Unlock()

	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(PartitionPath(p.Region, p.RunID))))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return s.writeErr(err)
	}
	return nil
}

// checkRoot fails with ErrStoreUnavailable when the root is gone or is not a
// directory. The root is never recreated behind the operator's back.
func (s *FileStore) checkRoot() error {
	if info, err := os.Stat(s.root); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: root %s is not a directory", weather.ErrStoreUnavailable, s.root)
	}
	return nil
}

// writeErr classifies a write failure: if the root itself is gone or is not
// a directory the whole store is unusable.
func (s *FileStore) writeErr(err error) error {
	info, statErr := os.Stat(s.root)
	if statErr != nil || !info.IsDir() {
		return fmt.Errorf("%w: %v", weather.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%w: %v", weather.ErrPersistence, err)
}

// ListPartitions returns the partitions of region ordered by modification
// time, newest first. Equal times fall back to ascending path order.
func (s *FileStore) ListPartitions(region string) ([]weather.Partition, error) {
	if err := weather.ValidateName(region); err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrRegionNotFound, err)
	}

	entries, err := os.ReadDir(filepath.Join(s.root, region))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", weather.ErrRegionNotFound, region)
	}
	if err != nil {
		return nil, fmt.Errorf("list region %s: %w", region, err)
	}

	partitions := make([]weather.Partition, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if !e.Type().IsRegular() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, partitionExt) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		runID := strings.TrimSuffix(strings.TrimPrefix(name, partitionPrefix), partitionExt)
		partitions = append(partitions, weather.Partition{
			Region:    region,
			RunID:     runID,
			Path:      path.Join(region, name),
			WrittenAt: info.ModTime(),
		})
	}
	if len(partitions) == 0 {
		return nil, fmt.Errorf("%w: %s", weather.ErrRegionNotFound, region)
	}

	sortNewestFirst(partitions)
	return partitions, nil
}

// ReadPartition decodes the records of p.
func (s *FileStore) ReadPartition(p weather.Partition) ([]weather.WeatherRecord, error) {
	region, name := path.Split(p.Path)
	region = strings.TrimSuffix(region, "/")
	if weather.ValidateName(region) != nil || weather.ValidateName(name) != nil {
		return nil, fmt.Errorf("invalid partition path %q", p.Path)
	}
	return readRecordsFile(filepath.Join(s.root, region, name))
}

func sortNewestFirst(partitions []weather.Partition) {
	sort.SliceStable(partitions, func(i, j int) bool {
		a, b := partitions[i], partitions[j]
		if !a.WrittenAt.Equal(b.WrittenAt) {
			return a.WrittenAt.After(b.WrittenAt)
		}
		return a.Path < b.Path
	})
}

func readRecordsFile(name string) ([]weather.WeatherRecord, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, err
	}
	return decodeRecords(data)
}

// decodeRecords accepts a JSON array of records, or a single record object
// as written by the older one-file-per-city layout.
func decodeRecords(data []byte) ([]weather.WeatherRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var rec weather.WeatherRecord
		if err := json.Unmarshal(trimmed, &rec); err != nil {
			return nil, fmt.Errorf("%w: %v", weather.ErrCorruptPartition, err)
		}
		return []weather.WeatherRecord{rec}, nil
	}

	var records []weather.WeatherRecord
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", weather.ErrCorruptPartition, err)
	}
	if records == nil {
		// JSON null
		return nil, fmt.Errorf("%w: no record array", weather.ErrCorruptPartition)
	}
	return records, nil
}

func encodeRecords(records []weather.WeatherRecord) ([]byte, error) {
	return json.MarshalIndent(records, "", "    ")
}

// writeFileAtomic writes data to dir/name through a temp file in the same
// directory and renames it into place.
func writeFileAtomic(dir, name string, data []byte) (err error) {
	tmp, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}
