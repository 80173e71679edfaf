package liq

import (
	"context"
	"sync"

	"liqmon/logger"
	"liqmon/models"
)

type ChannelStats struct {
	RawSent     int64
	RawDropped  int64
	NormSent    int64
	NormDropped int64
}

// Channels carries liquidation traffic between pipeline stages. Raw holds
// exchange payloads before normalisation, Norm holds batched events headed
// for the archive writer.
type Channels struct {
	Raw  chan models.RawLiquidationMessage
	Norm chan models.BatchLiquidationMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, normBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:  make(chan models.RawLiquidationMessage, rawBufferSize),
		Norm: make(chan models.BatchLiquidationMessage, normBufferSize),
		log:  log,
	}

	log.WithComponent("liq_channels").WithFields(logger.Fields{
		"raw_buffer_size":  rawBufferSize,
		"norm_buffer_size": normBufferSize,
	}).Info("liquidation channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Norm)
	c.log.WithComponent("liq_channels").Info("liquidation channels closed")
}

// SendRaw forwards a raw message without blocking the websocket handler.
// A full buffer drops the message and bumps the drop counter.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawLiquidationMessage) bool {
	select {
	case c.Raw <- msg:
		c.incrementRawSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementRawDropped()
		return false
	}
}

// SendNorm forwards a normalized batch without blocking the processor.
func (c *Channels) SendNorm(ctx context.Context, batch models.BatchLiquidationMessage) bool {
	select {
	case c.Norm <- batch:
		c.incrementNormSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.incrementNormDropped()
		return false
	}
}

func (c *Channels) incrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementNormSent() {
	c.statsMutex.Lock()
	c.stats.NormSent++
	c.statsMutex.Unlock()
}

func (c *Channels) incrementNormDropped() {
	c.statsMutex.Lock()
	c.stats.NormDropped++
	c.statsMutex.Unlock()
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
