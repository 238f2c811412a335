// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"fmt"

	"github.com/modbusedge/gateway/internal/modbus/crc"
)

const (
	RTUMinSize      = 4
	RTUMaxSize      = 256
	RTUExceptionLen = 5
)

// RTUFrame is a slave address plus PDU, framed with a trailing CRC-16 on
// the wire.
type RTUFrame struct {
	SlaveID byte
	PDU     ProtocolDataUnit
}

// DecodeRTU validates the CRC of raw and splits it into a frame.
func DecodeRTU(raw []byte) (RTUFrame, error) {
	length := len(raw)
	if length < RTUMinSize {
		return RTUFrame{}, fmt.Errorf("modbus: rtu frame length %d below minimum %d", length, RTUMinSize)
	}
	var c crc.CRC
	c.Reset().PushBytes(raw[:length-2])
	want := c.Value()
	got := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if got != want {
		return RTUFrame{}, fmt.Errorf("modbus: rtu crc mismatch: frame has %#04x, computed %#04x", got, want)
	}
	return RTUFrame{
		SlaveID: raw[0],
		PDU: ProtocolDataUnit{
			FunctionCode: raw[1],
			Data:         raw[2 : length-2],
		},
	}, nil
}

// EncodeRTU serializes f into a CRC-terminated RTU frame.
func EncodeRTU(f RTUFrame) ([]byte, error) {
	length := len(f.PDU.Data) + 4
	if length > RTUMaxSize {
		return nil, fmt.Errorf("modbus: rtu frame length %d exceeds maximum %d", length, RTUMaxSize)
	}
	raw := make([]byte, length)
	raw[0] = f.SlaveID
	raw[1] = f.PDU.FunctionCode
	copy(raw[2:], f.PDU.Data)

	var c crc.CRC
	c.Reset().PushBytes(raw[:length-2])
	checksum := c.Value()
	raw[length-2] = byte(checksum)
	raw[length-1] = byte(checksum >> 8)
	return raw, nil
}
