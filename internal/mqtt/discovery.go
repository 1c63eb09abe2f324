package mqtt

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/eclipse/paho.golang/paho"

	"github.com/d21d3q/sma2mqtt/internal/channels"
)

// DeviceInfo groups all sensors of one meter under a single Home
// Assistant device.
type DeviceInfo struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	Name         string   `json:"name"`
}

// SensorConfig is a Home Assistant MQTT discovery payload for one sensor
// entity.
type SensorConfig struct {
	Name              string     `json:"name"`
	StateTopic        string     `json:"state_topic"`
	UniqueID          string     `json:"unique_id"`
	DeviceClass       string     `json:"device_class,omitempty"`
	StateClass        string     `json:"state_class,omitempty"`
	UnitOfMeasurement string     `json:"unit_of_measurement,omitempty"`
	Device            DeviceInfo `json:"device"`
}

type sensorDef struct {
	topic  string
	config SensorConfig
}

// sensorDefs builds the discovery documents for every reading of one
// meter. Energy counters are marked total_increasing so HA's energy
// dashboard picks them up.
func (p *Publisher) sensorDefs(serial string, readings []channels.Reading) []sensorDef {
	deviceID := "sma_" + serial
	device := DeviceInfo{
		Identifiers:  []string{deviceID},
		Manufacturer: "SMA",
		Model:        "Energy Meter",
		Name:         "SMA Energy Meter",
	}

	defs := make([]sensorDef, 0, len(readings))
	for _, r := range readings {
		cfg := SensorConfig{
			Name:       upperFirst(r.Name),
			StateTopic: p.ReadingTopic(serial, r.Name),
			UniqueID:   deviceID + "_" + r.Name,
			Device:     device,
		}
		if strings.Contains(r.Name, "counter") {
			cfg.DeviceClass = "energy"
			cfg.StateClass = "total_increasing"
			cfg.UnitOfMeasurement = r.Unit
		} else if r.Unit != "" {
			cfg.UnitOfMeasurement = r.Unit
		}
		defs = append(defs, sensorDef{
			topic:  p.cfg.DiscoveryPrefix + "/sensor/" + deviceID + "/" + r.Name + "/config",
			config: cfg,
		})
	}
	return defs
}

// PublishDiscovery publishes retained discovery configs for a meter's
// readings. Intended to run once per newly seen serial; the retained
// flag keeps HA consistent across its restarts.
func (p *Publisher) PublishDiscovery(ctx context.Context, serial string, readings []channels.Reading) {
	if p.cm == nil || p.cfg.DiscoveryPrefix == "" {
		return
	}
	for _, def := range p.sensorDefs(serial, readings) {
		payload, err := json.Marshal(def.config)
		if err != nil {
			p.log.WithError(err).WithField("topic", def.topic).Error("marshal discovery payload")
			continue
		}
		if _, err := p.cm.Publish(ctx, &paho.Publish{
			Topic:   def.topic,
			Payload: payload,
			QoS:     0,
			Retain:  true,
		}); err != nil {
			p.log.WithError(err).WithField("topic", def.topic).Warn("discovery publish failed")
		}
	}
	p.log.WithField("serial", serial).Info("discovery published")
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
