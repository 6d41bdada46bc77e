package cli

import "go-pulse/scheduler"

// demoTracks is a four-bar pattern for trying the engine without a sequence
// file: a walking bass, an offbeat chord stab and a drum pulse.
func demoTracks() []*scheduler.Track {
	bass := &scheduler.Track{Name: "bass", Channel: 0}
	for bar := 0; bar < 4; bar++ {
		root := uint8(36 + []int{0, 5, 7, 5}[bar])
		b := float64(bar * 4)
		bass.Notes = append(bass.Notes,
			scheduler.Note{Start: b, Duration: 1.5, Key: root, Velocity: 100},
			scheduler.Note{Start: b + 2, Duration: 0.75, Key: root + 7, Velocity: 85},
			scheduler.Note{Start: b + 3, Duration: 0.75, Key: root + 12, Velocity: 85},
		)
	}

	keys := &scheduler.Track{Name: "keys", Channel: 1}
	for bar := 0; bar < 4; bar++ {
		root := uint8(60 + []int{0, 5, 7, 5}[bar])
		b := float64(bar * 4)
		for _, off := range []float64{1.5, 3.5} {
			for _, iv := range []uint8{0, 4, 7} {
				keys.Notes = append(keys.Notes,
					scheduler.Note{Start: b + off, Duration: 0.4, Key: root + iv, Velocity: 70})
			}
		}
	}
	keys.Controls = append(keys.Controls, scheduler.Control{Beat: 0, Controller: 7, Value: 100})

	drums := &scheduler.Track{Name: "drums", Channel: 9}
	for bar := 0; bar < 4; bar++ {
		b := float64(bar * 4)
		drums.Notes = append(drums.Notes,
			scheduler.Note{Start: b, Duration: 0.1, Key: 36, Velocity: 110},     // kick
			scheduler.Note{Start: b + 1, Duration: 0.1, Key: 38, Velocity: 95},  // snare
			scheduler.Note{Start: b + 2, Duration: 0.1, Key: 36, Velocity: 105}, // kick
			scheduler.Note{Start: b + 3, Duration: 0.1, Key: 38, Velocity: 95},  // snare
		)
		for eighth := 0; eighth < 8; eighth++ {
			drums.Notes = append(drums.Notes,
				scheduler.Note{Start: b + float64(eighth)*0.5, Duration: 0.1, Key: 42, Velocity: 60}) // closed hat
		}
	}

	return []*scheduler.Track{bass, keys, drums}
}
