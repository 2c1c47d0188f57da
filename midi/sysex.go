package midi

import (
	"errors"
	"fmt"
	"math"

	"grain-surface/protocol"
)

// Channel frames travel as SysEx:
//
//	F0 7D 'G' <ch> <type> <count:3> <value:5>... F7
//
// 7D is the non-commercial manufacturer ID. Counts and values are split into
// 7-bit groups, most significant first. Int values are int32, floats float32.
const (
	manufacturer = 0x7D
	tag          = 'G'
	countBytes   = 3
	valueBytes   = 5
)

// MaxFrameSize is the longest frame on the wire, F0 and F7 included: a full
// window buffer
const MaxFrameSize = 2 + 4 + countBytes + protocol.WindowCapacity*valueBytes

var ErrFrame = errors.New("malformed channel frame")

// EncodeFrame returns the SysEx body (without F0/F7) for a channel payload
func EncodeFrame(ch protocol.Channel, p protocol.Payload) ([]byte, error) {
	b, err := protocol.Lookup(ch)
	if err != nil {
		return nil, err
	}
	if err := b.Check(p); err != nil {
		return nil, err
	}

	n := len(p.Values)
	out := make([]byte, 0, 4+countBytes+n*valueBytes)
	out = append(out, manufacturer, tag, byte(ch), byte(p.Type))
	out = appendSeptets(out, uint32(n), countBytes)
	for _, v := range p.Values {
		var bits uint32
		if p.Type == protocol.TypeFloat {
			bits = math.Float32bits(float32(v))
		} else {
			bits = uint32(int32(math.Round(v)))
		}
		out = appendSeptets(out, bits, valueBytes)
	}
	return out, nil
}

// DecodeFrame parses a SysEx body produced by EncodeFrame
func DecodeFrame(data []byte) (protocol.Channel, protocol.Payload, error) {
	if len(data) < 4+countBytes || data[0] != manufacturer || data[1] != tag {
		return 0, protocol.Payload{}, ErrFrame
	}
	ch := protocol.Channel(data[2])
	b, err := protocol.Lookup(ch)
	if err != nil {
		return 0, protocol.Payload{}, fmt.Errorf("%w: %v", ErrFrame, err)
	}
	typ := protocol.WireType(data[3])
	if typ != protocol.TypeInt && typ != protocol.TypeFloat {
		return 0, protocol.Payload{}, fmt.Errorf("%w: type %d", ErrFrame, data[3])
	}

	body := data[4:]
	n, ok := readSeptets(body[:countBytes])
	if !ok {
		return 0, protocol.Payload{}, fmt.Errorf("%w: bad count", ErrFrame)
	}
	body = body[countBytes:]
	if len(body) != int(n)*valueBytes {
		return 0, protocol.Payload{}, fmt.Errorf("%w: %d values need %d bytes, got %d", ErrFrame, n, int(n)*valueBytes, len(body))
	}

	p := protocol.Payload{Type: typ, Values: make([]float64, n)}
	for i := range p.Values {
		bits, ok := readSeptets(body[i*valueBytes : (i+1)*valueBytes])
		if !ok {
			return 0, protocol.Payload{}, fmt.Errorf("%w: value %d", ErrFrame, i)
		}
		if typ == protocol.TypeFloat {
			p.Values[i] = float64(math.Float32frombits(bits))
		} else {
			p.Values[i] = float64(int32(bits))
		}
	}
	if err := b.Check(p); err != nil {
		return 0, protocol.Payload{}, fmt.Errorf("%w: %v", ErrFrame, err)
	}
	return ch, p, nil
}

func appendSeptets(out []byte, v uint32, n int) []byte {
	for i := n - 1; i >= 0; i-- {
		out = append(out, byte(v>>(7*uint(i)))&0x7F)
	}
	return out
}

func readSeptets(b []byte) (uint32, bool) {
	var v uint32
	for _, c := range b {
		if c > 0x7F {
			return 0, false
		}
		v = v<<7 | uint32(c)
	}
	return v, true
}
