package speedwire

import "github.com/d21d3q/sma2mqtt/internal/channels"

// Options configures decoding.
type Options struct {
	// Channels overrides the built-in SMA channel table. Useful for
	// meters with non-standard scaling or for tooling that wants raw
	// divisor-1 values.
	Channels channels.Table
}

func (o Options) table() channels.Table {
	if o.Channels != nil {
		return o.Channels
	}
	return channels.SMA
}
