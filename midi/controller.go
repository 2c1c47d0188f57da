package midi

import (
	"fmt"

	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// Controller is a knob/fader box sending control changes
type Controller struct {
	id       string
	inPort   drivers.In
	stopFunc func()

	ccChan chan CCEvent
}

// NewController opens inPort and forwards its control changes
func NewController(id string, inPort drivers.In) (*Controller, error) {
	c := &Controller{
		id:     id,
		inPort: inPort,
		ccChan: make(chan CCEvent, 64),
	}

	if inPort != nil {
		stop, err := gomidi.ListenTo(inPort, func(msg gomidi.Message, timestampms int32) {
			c.handle(msg)
		})
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		c.stopFunc = stop
	}

	return c, nil
}

func (c *Controller) ID() string {
	return c.id
}

// Events delivers control changes; closed by Close
func (c *Controller) Events() <-chan CCEvent {
	return c.ccChan
}

func (c *Controller) Close() error {
	if c.stopFunc != nil {
		c.stopFunc()
	}
	close(c.ccChan)
	return nil
}

func (c *Controller) handle(msg gomidi.Message) {
	var channel, cc, value uint8
	if !msg.GetControlChange(&channel, &cc, &value) {
		return
	}
	// Knobs flood the port; drop rather than stall the driver.
	select {
	case c.ccChan <- CCEvent{Channel: channel, CC: cc, Value: value}:
	default:
	}
}
