package scheduler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// sequenceFile is the on-disk YAML shape:
//
//	tracks:
//	  - name: bass
//	    channel: 0
//	    notes:
//	      - {start: 0, duration: 0.5, key: 36, velocity: 100}
type sequenceFile struct {
	Tracks []*Track `yaml:"tracks"`
}

// LoadTracks reads a YAML sequence file into sorted tracks.
func LoadTracks(path string) ([]*Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var sf sequenceFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse sequence %s: %w", path, err)
	}
	for i, tr := range sf.Tracks {
		if tr.Channel > 15 {
			return nil, fmt.Errorf("sequence %s: track %d channel %d out of range", path, i, tr.Channel)
		}
		tr.ID = i
		tr.Normalize()
	}
	return sf.Tracks, nil
}

// SaveTracks writes tracks back out as YAML.
func SaveTracks(path string, tracks []*Track) error {
	data, err := yaml.Marshal(sequenceFile{Tracks: tracks})
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
