package channel

import (
	"liqmon/internal/channel/liq"
)

// Channels bundles the per-stream channel groups the pipeline uses. The
// monitor currently carries a single stream type; the wrapper keeps the
// wiring in main uniform should further streams be added.
type Channels struct {
	Liq *liq.Channels
}

func NewChannels(rawBufferSize, normBufferSize int) *Channels {
	return &Channels{
		Liq: liq.NewChannels(rawBufferSize, normBufferSize),
	}
}

func (c *Channels) Close() {
	if c.Liq != nil {
		c.Liq.Close()
	}
}
