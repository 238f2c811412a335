// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serialbus wraps a single physical UART as an RTU byte channel,
// framing requests and responses by T3.5 inter-frame silence rather than
// by predicting response length from the function code.
package serialbus

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/grid-x/serial"

	"github.com/modbusedge/gateway/internal/errs"
)

// Params describes the serial line configuration for one bus. It mirrors
// the fields grid-x/serial.Config exposes for RS-232/RS-485 operation.
type Params struct {
	Device   string
	BaudRate int
	DataBits int
	StopBits int
	Parity   string

	RS485              bool
	DelayRtsBeforeSend time.Duration
	DelayRtsAfterSend  time.Duration
	RtsHighDuringSend  bool
	RtsHighAfterSend   bool
	RxDuringTx         bool
}

// t35 returns the inter-frame silence threshold for baud, following the
// standard Modbus RTU formula for rates at or below 19200 baud (about
// 4ms at 9600, 2ms at 19200) and a flat 1.75ms above it; an unset
// (zero or negative) baud also gets 1.75ms.
func t35(baud int) time.Duration {
	if baud <= 0 || baud > 19200 {
		return 1750 * time.Microsecond
	}
	// 3.5 character-times; one character is 11 bits at these settings
	// (1 start + 8 data + parity/stop).
	return time.Duration(38500000/baud) * time.Microsecond
}

// Channel is one independently-configured RTU serial bus.
type Channel struct {
	mu     sync.Mutex
	params Params
	port   io.ReadWriteCloser
	t35    time.Duration
}

// Open configures and opens the underlying UART.
func Open(p Params) (*Channel, error) {
	c := &Channel{}
	if err := c.SetParams(p); err != nil {
		return nil, err
	}
	return c, nil
}

// SetParams reopens the bus with new line parameters. It holds the same
// lock as Send, so it waits for an in-flight request cycle to finish; it
// does not touch the poller using the channel. Open is its only caller
// in this repository.
func (c *Channel) SetParams(p Params) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port != nil {
		_ = c.port.Close()
		c.port = nil
	}

	port, err := serial.Open(&serial.Config{
		Address:  p.Device,
		BaudRate: p.BaudRate,
		DataBits: p.DataBits,
		StopBits: p.StopBits,
		Parity:   p.Parity,
		Timeout:  t35(p.BaudRate),
		RS485: serial.RS485Config{
			Enabled:            p.RS485,
			DelayRtsBeforeSend: p.DelayRtsBeforeSend,
			DelayRtsAfterSend:  p.DelayRtsAfterSend,
			RtsHighDuringSend:  p.RtsHighDuringSend,
			RtsHighAfterSend:   p.RtsHighAfterSend,
			RxDuringTx:         p.RxDuringTx,
		},
	})
	if err != nil {
		return fmt.Errorf("serialbus: open %s: %w", p.Device, err)
	}
	c.port = port
	c.params = p
	c.t35 = t35(p.BaudRate)
	return nil
}

// Close releases the underlying UART.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}

// Send writes req then reads a response, framed by T3.5 silence: each
// underlying Read call is bounded by the bus's T3.5 window, so a read
// that returns no bytes after at least one byte has arrived is treated
// as the end of the frame. Reading also stops once maxResp bytes have
// arrived. deadline bounds the whole
// request/response cycle; it is the caller's (the adaptive timeout
// controller's) budget for this group, wider than any single T3.5 wait.
func (c *Channel) Send(req []byte, maxResp int, deadline time.Duration) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.port == nil {
		return nil, fmt.Errorf("serialbus: %s not open", c.params.Device)
	}
	if _, err := c.port.Write(req); err != nil {
		return nil, fmt.Errorf("serialbus: write: %w", err)
	}

	giveUpAt := time.Now().Add(deadline)
	buf := make([]byte, maxResp)
	total := 0
	for total < maxResp {
		if time.Now().After(giveUpAt) {
			return nil, fmt.Errorf("serialbus: %s: no response within %v: %w", c.params.Device, deadline, errs.ErrTransientIO)
		}
		n, err := c.port.Read(buf[total:])
		if n > 0 {
			total += n
			continue
		}
		if total > 0 {
			// silence after at least one byte: frame is complete
			break
		}
		if err != nil {
			return nil, fmt.Errorf("serialbus: read: %w: %w", errs.ErrTransientIO, err)
		}
		// zero bytes, no error, nothing received yet within this T3.5
		// window; keep waiting up to the overall deadline
	}
	return buf[:total], nil
}
