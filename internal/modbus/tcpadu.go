// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"encoding/binary"
	"fmt"
)

const (
	TCPHeaderLen  = 7
	TCPMaxADULen  = 260
	tcpProtocolID = 0x0000
)

// TCPFrame is an MBAP-framed PDU: transaction id, unit id, and the PDU
// itself. Length and protocol id are wire-only bookkeeping recomputed on
// encode.
type TCPFrame struct {
	TransactionID uint16
	UnitID        byte
	PDU           ProtocolDataUnit
}

// DecodeTCP parses an MBAP header plus PDU out of raw.
func DecodeTCP(raw []byte) (TCPFrame, error) {
	if len(raw) < TCPHeaderLen+1 {
		return TCPFrame{}, fmt.Errorf("modbus: tcp frame length %d below minimum %d", len(raw), TCPHeaderLen+1)
	}
	transactionID := binary.BigEndian.Uint16(raw[0:2])
	protocolID := binary.BigEndian.Uint16(raw[2:4])
	length := binary.BigEndian.Uint16(raw[4:6])
	if protocolID != tcpProtocolID {
		return TCPFrame{}, fmt.Errorf("modbus: tcp protocol id %d unsupported", protocolID)
	}
	if int(length) != len(raw)-6 {
		return TCPFrame{}, fmt.Errorf("modbus: tcp length field %d does not match frame body %d", length, len(raw)-6)
	}
	return TCPFrame{
		TransactionID: transactionID,
		UnitID:        raw[6],
		PDU: ProtocolDataUnit{
			FunctionCode: raw[7],
			Data:         raw[8:],
		},
	}, nil
}

// EncodeTCP serializes f with a freshly computed MBAP header.
func EncodeTCP(f TCPFrame) ([]byte, error) {
	pduLen := 1 + len(f.PDU.Data)
	total := TCPHeaderLen + pduLen
	if total > TCPMaxADULen {
		return nil, fmt.Errorf("modbus: tcp frame length %d exceeds maximum %d", total, TCPMaxADULen)
	}
	raw := make([]byte, total)
	binary.BigEndian.PutUint16(raw[0:2], f.TransactionID)
	binary.BigEndian.PutUint16(raw[2:4], tcpProtocolID)
	binary.BigEndian.PutUint16(raw[4:6], uint16(1+pduLen))
	raw[6] = f.UnitID
	raw[7] = f.PDU.FunctionCode
	copy(raw[8:], f.PDU.Data)
	return raw, nil
}
