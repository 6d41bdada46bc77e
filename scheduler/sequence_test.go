package scheduler

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadTracks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.yaml")
	data := `tracks:
  - name: bass
    channel: 0
    notes:
      - {start: 1, duration: 0.5, key: 38, velocity: 100}
      - {start: 0, duration: 0.5, key: 36, velocity: 100}
    controls:
      - {beat: 0, controller: 7, value: 110}
  - name: lead
    channel: 1
    muted: true
    notes:
      - {start: 0, duration: 2, key: 60, velocity: 90}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	tracks, err := LoadTracks(path)
	require.NoError(t, err)
	require.Len(t, tracks, 2)

	// Notes come back sorted regardless of file order.
	assert.Equal(t, uint8(36), tracks[0].Notes[0].Key)
	assert.Equal(t, uint8(38), tracks[0].Notes[1].Key)
	assert.Equal(t, 0, tracks[0].ID)
	assert.Equal(t, 1, tracks[1].ID)
	assert.True(t, tracks[1].Muted)
	assert.Equal(t, "bass", tracks[0].Name)
	require.Len(t, tracks[0].Controls, 1)
}

func TestLoadTracksRejectsBadChannel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.yaml")
	data := `tracks:
  - name: broken
    channel: 16
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	_, err := LoadTracks(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "channel 16 out of range")
}

func TestSaveTracksRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.yaml")
	in := []*Track{{
		Name:    "keys",
		Channel: 2,
		Notes:   []Note{{Start: 0.5, Duration: 1, Key: 64, Velocity: 80}},
	}}
	require.NoError(t, SaveTracks(path, in))

	out, err := LoadTracks(path)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in[0].Notes, out[0].Notes)
	assert.Equal(t, uint8(2), out[0].Channel)
}
