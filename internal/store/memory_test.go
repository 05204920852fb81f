package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/regional-weather/internal/weather"
)

func TestMemoryStoreNewestFirst(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.WritePartition("Europe", "old", []weather.WeatherRecord{{City: "Kyiv", Temperature: 1}})
	require.NoError(t, err)
	_, err = s.WritePartition("Europe", "new", []weather.WeatherRecord{{City: "Kyiv", Temperature: 2}})
	require.NoError(t, err)

	parts, err := s.ListPartitions("Europe")
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, runIDs(parts))
	assert.Equal(t, "Europe/task_new.json", parts[0].Path)

	// Appending to "old" makes it the most recently written partition.
	_, err = s.WritePartition("Europe", "old", []weather.WeatherRecord{{City: "Lviv", Temperature: 3}})
	require.NoError(t, err)
	parts, err = s.ListPartitions("Europe")
	require.NoError(t, err)
	assert.Equal(t, []string{"old", "new"}, runIDs(parts))

	got, err := s.ReadPartition(parts[0])
	require.NoError(t, err)
	assert.Equal(t, []weather.WeatherRecord{
		{City: "Kyiv", Temperature: 1},
		{City: "Lviv", Temperature: 3},
	}, got)
}

func TestMemoryStoreRegionNotFound(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.ListPartitions("Atlantis")
	assert.ErrorIs(t, err, weather.ErrRegionNotFound)
}

func TestMemoryStoreReadReturnsCopy(t *testing.T) {
	s := NewMemoryStore()

	p, err := s.WritePartition("Asia", "r", []weather.WeatherRecord{{City: "Tokyo", Temperature: 10}})
	require.NoError(t, err)

	got, err := s.ReadPartition(p)
	require.NoError(t, err)
	got[0].Temperature = 99

	again, err := s.ReadPartition(p)
	require.NoError(t, err)
	assert.Equal(t, 10.0, again[0].Temperature)
}

func TestMemoryStoreReplaceAndRunPartitions(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.WritePartition("Europe", "r1", []weather.WeatherRecord{{City: "Kyiv", Temperature: 1}, {City: "Lviv", Temperature: 2}})
	require.NoError(t, err)
	_, err = s.WritePartition("Asia", "r1", []weather.WeatherRecord{{City: "Tokyo", Temperature: 10}})
	require.NoError(t, err)
	_, err = s.WritePartition("Asia", "r2", []weather.WeatherRecord{{City: "Seoul", Temperature: 8}})
	require.NoError(t, err)

	p, err := s.ReplacePartition("Europe", "r1", []weather.WeatherRecord{{City: "Kyiv", Temperature: 4}})
	require.NoError(t, err)
	got, err := s.ReadPartition(p)
	require.NoError(t, err)
	assert.Equal(t, []weather.WeatherRecord{{City: "Kyiv", Temperature: 4}}, got)

	parts, err := s.RunPartitions("r1")
	require.NoError(t, err)
	require.Len(t, parts, 2)
	assert.Equal(t, "Asia", parts[0].Region)
	assert.Equal(t, "Europe", parts[1].Region)

	require.NoError(t, s.DeletePartition(parts[0]))
	asia, err := s.ListPartitions("Asia")
	require.NoError(t, err)
	assert.Equal(t, []string{"r2"}, runIDs(asia))

	require.NoError(t, s.DeletePartition(parts[1]))
	_, err = s.ListPartitions("Europe")
	assert.ErrorIs(t, err, weather.ErrRegionNotFound)
}
