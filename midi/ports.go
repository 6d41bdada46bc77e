package midi

import (
	"errors"
	"fmt"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver
)

// ErrNoPort is returned when no matching MIDI output port can be opened.
var ErrNoPort = errors.New("no MIDI output port")

// OutPortNames lists the available MIDI output ports. The scan runs behind a
// timeout because CoreMIDI can hang when the MIDI server is wedged.
func OutPortNames() []string {
	ports, ok := scanOutPorts()
	if !ok {
		return nil
	}
	names := make([]string, 0, len(ports))
	for _, p := range ports {
		names = append(names, p.String())
	}
	return names
}

// OpenSender opens the named output port and returns its send function. An
// empty name picks the first available port. The resolved port name is
// returned for display.
func OpenSender(portName string) (func(gomidi.Message) error, string, error) {
	ports, ok := scanOutPorts()
	if !ok {
		return nil, "", fmt.Errorf("%w: port scan timed out", ErrNoPort)
	}
	for _, port := range ports {
		if portName != "" && port.String() != portName {
			continue
		}
		sender, err := gomidi.SendTo(port)
		if err != nil {
			return nil, "", fmt.Errorf("open %q: %w", port.String(), err)
		}
		return sender, port.String(), nil
	}
	if portName != "" {
		return nil, "", fmt.Errorf("%w: %q not found", ErrNoPort, portName)
	}
	return nil, "", ErrNoPort
}

func scanOutPorts() ([]drivers.Out, bool) {
	ch := make(chan []drivers.Out, 1)
	go func() {
		ch <- gomidi.GetOutPorts()
	}()
	select {
	case ports := <-ch:
		return ports, true
	case <-time.After(3 * time.Second):
		// MIDI server is hung - report nothing rather than block startup.
		return nil, false
	}
}
