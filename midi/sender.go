package midi

import (
	"sync"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // Register MIDI driver

	"github.com/Maokus/MVMNT-sub000/debug"
)

// Output sends live note messages to named MIDI ports. Ports are opened
// lazily on first use and cached; the zero port name falls through to the
// configured default.
type Output struct {
	defaultPort string
	senders     map[string]func(gomidi.Message) error
	mu          sync.RWMutex
}

// NewOutput creates an output with a default port name (may be empty).
func NewOutput(defaultPort string) *Output {
	return &Output{
		defaultPort: defaultPort,
		senders:     make(map[string]func(gomidi.Message) error),
	}
}

// Ports lists the available MIDI output port names.
func Ports() []string {
	var names []string
	for _, p := range gomidi.GetOutPorts() {
		names = append(names, p.String())
	}
	return names
}

// Close releases the MIDI driver and all open ports.
func (o *Output) Close() {
	o.mu.Lock()
	o.senders = make(map[string]func(gomidi.Message) error)
	o.mu.Unlock()
	gomidi.CloseDriver()
}

// sender returns a sender for the port, lazily opening it. Returns nil when
// the port doesn't exist or won't open; callers treat that as "no output".
func (o *Output) sender(portName string) func(gomidi.Message) error {
	if portName == "" {
		portName = o.defaultPort
	}
	if portName == "" {
		return nil
	}

	o.mu.RLock()
	if s, ok := o.senders[portName]; ok {
		o.mu.RUnlock()
		return s
	}
	o.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()

	// Double-check after acquiring write lock
	if s, ok := o.senders[portName]; ok {
		return s
	}

	for _, port := range gomidi.GetOutPorts() {
		if port.String() == portName {
			s, err := gomidi.SendTo(port)
			if err != nil {
				debug.Log("midiout", "open %q failed: %v", portName, err)
				return nil
			}
			o.senders[portName] = s
			debug.Log("midiout", "opened %q", portName)
			return s
		}
	}
	return nil
}

// NoteOn sends a note-on to the named port (or the default).
func (o *Output) NoteOn(portName string, n Note) {
	if s := o.sender(portName); s != nil {
		s(gomidi.NoteOn(n.Channel, n.Key, n.Velocity))
	}
}

// NoteOff sends a note-off to the named port (or the default).
func (o *Output) NoteOff(portName string, n Note) {
	if s := o.sender(portName); s != nil {
		s(gomidi.NoteOff(n.Channel, n.Key))
	}
}
