// Package decision turns sensor events into commands. The Policy holds the
// rule table, Sources wrap local or remote policies behind one contract,
// and the Resolver guarantees every resolution yields a well-formed
// Decision by substituting a fixed fallback when the source fails.
package decision

import (
	"fmt"

	"github.com/CalebLauder/rakan-backend/event"
	"github.com/CalebLauder/rakan-backend/pkg/timestamp"
)

// Rule thresholds. Ties take the no-action branch.
const (
	TemperatureThreshold = 75.0
	HumidityThreshold    = 60.0
)

// Policy maps an event and the device's previous state to a decision. It
// is a pure function of its inputs.
type Policy interface {
	Decide(ev *event.Event, prev *event.DeviceState) *event.Decision
}

// ThresholdPolicy is the built-in rule table.
type ThresholdPolicy struct{}

// NewThresholdPolicy returns the local rule table policy.
func NewThresholdPolicy() *ThresholdPolicy {
	return &ThresholdPolicy{}
}

// Decide applies the rule table. The previous state is accepted for parity
// with remote policies but the built-in rules are stateless.
func (p *ThresholdPolicy) Decide(ev *event.Event, _ *event.DeviceState) *event.Decision {
	d := &event.Decision{
		DeviceID:  ev.DeviceID,
		Action:    event.ActionIgnore,
		Value:     nil,
		Timestamp: timestamp.Now(),
	}

	switch ev.Type {
	case event.TypeMotion:
		motion, _ := ev.Bool("motion")
		d.Action = event.ActionSwitch
		d.Value = motion
		if motion {
			d.Reason = "Motion detected, switching device ON."
		} else {
			d.Reason = "No motion, switching device OFF."
		}

	case event.TypeTemperature:
		temp, ok := ev.Float("temperature")
		if !ok {
			d.Reason = "Temperature data missing."
			break
		}
		if temp > TemperatureThreshold {
			d.Action = event.ActionCooling
			d.Value = temp
			d.Reason = fmt.Sprintf("High temperature (%g). Cooling activated.", temp)
		} else {
			d.Reason = fmt.Sprintf("Temperature normal (%g). No action taken.", temp)
		}

	case event.TypeDoor:
		open, _ := ev.Bool("door_open")
		d.Action = event.ActionSwitch
		d.Value = open
		if open {
			d.Reason = "Door opened, switching ON related device."
		} else {
			d.Reason = "Door closed, switching OFF related device."
		}

	case event.TypeHumidity:
		humidity, ok := ev.Float("humidity")
		if !ok {
			d.Reason = "Humidity data missing."
			break
		}
		if humidity > HumidityThreshold {
			d.Action = event.ActionAdjust
			d.Value = humidity
			d.Reason = fmt.Sprintf("High humidity (%g%%). Adjusting ventilation.", humidity)
		} else {
			d.Reason = fmt.Sprintf("Humidity normal (%g%%). No action taken.", humidity)
		}

	default:
		d.Reason = fmt.Sprintf("Unknown event type %q. No action taken.", ev.Type)
	}

	return d
}

var _ Policy = (*ThresholdPolicy)(nil)
