package midi

// MIDI message types
const (
	NoteOn  uint8 = 0x90
	NoteOff uint8 = 0x80
	CC      uint8 = 0xB0
)

// CCEvent is a control change from a knob or fader
type CCEvent struct {
	Channel uint8
	CC      uint8
	Value   uint8
}

// Mapping binds a CC number to a parameter field. Channel -1 matches any
// MIDI channel.
type Mapping struct {
	CC      uint8
	Channel int
	Param   string
}

// Mapper resolves control changes to parameter positions
type Mapper struct {
	mappings []Mapping
}

// NewMapper creates a mapper; earlier mappings win on overlap
func NewMapper(mappings []Mapping) *Mapper {
	return &Mapper{mappings: append([]Mapping(nil), mappings...)}
}

// Resolve returns the mapped parameter and the CC value as a 0-1 position
// in its range
func (m *Mapper) Resolve(ev CCEvent) (param string, norm float64, ok bool) {
	for _, mp := range m.mappings {
		if mp.CC != ev.CC {
			continue
		}
		if mp.Channel >= 0 && uint8(mp.Channel) != ev.Channel {
			continue
		}
		v := ev.Value
		if v > 127 {
			v = 127
		}
		return mp.Param, float64(v) / 127, true
	}
	return "", 0, false
}
