// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcpslave

import (
	"encoding/binary"
	"testing"

	"github.com/modbusedge/gateway/internal/modbus"
)

func TestDispatchReadHoldingRegisters(t *testing.T) {
	a := NewArenas(10, 10, 10, 10)
	if err := a.WriteRegisters(0, []uint16{11, 22, 33}); err != nil {
		t.Fatalf("WriteRegisters: %v", err)
	}
	d := NewDispatcher(a, 0)

	req := modbus.SerializeReadRequest(modbus.FuncCodeReadHoldingRegisters, 0, 3)
	resp := d.Handle(0, req)
	if resp.IsException() {
		t.Fatalf("unexpected exception %#02x", resp.ExceptionCode())
	}
	regs, err := modbus.DeserializeRegisters(resp, 3)
	if err != nil {
		t.Fatalf("DeserializeRegisters: %v", err)
	}
	if regs[0] != 11 || regs[1] != 22 || regs[2] != 33 {
		t.Fatalf("unexpected regs %v", regs)
	}
}

func TestDispatchReadOutOfRangeReturnsException(t *testing.T) {
	a := NewArenas(10, 10, 10, 10)
	d := NewDispatcher(a, 0)

	req := modbus.SerializeReadRequest(modbus.FuncCodeReadHoldingRegisters, 8, 5)
	resp := d.Handle(0, req)
	if !resp.IsException() {
		t.Fatalf("expected exception for out-of-range read")
	}
	if resp.ExceptionCode() != modbus.ExceptionCodeIllegalDataAddress {
		t.Fatalf("got exception code %#02x, want %#02x", resp.ExceptionCode(), modbus.ExceptionCodeIllegalDataAddress)
	}
}

func TestDispatchWriteSingleCoil(t *testing.T) {
	a := NewArenas(10, 10, 10, 10)
	d := NewDispatcher(a, 0)

	req := modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeWriteSingleCoil, Data: []byte{0x00, 0x02, 0xFF, 0x00}}
	resp := d.Handle(0, req)
	if resp.IsException() {
		t.Fatalf("unexpected exception")
	}

	readReq := modbus.SerializeReadRequest(modbus.FuncCodeReadCoils, 0, 5)
	readResp := d.Handle(0, readReq)
	bits, err := modbus.DeserializeBits(readResp, 5)
	if err != nil {
		t.Fatalf("DeserializeBits: %v", err)
	}
	if !bits[2] {
		t.Fatalf("expected coil 2 set, got %v", bits)
	}
}

func TestDispatchMaskWriteRegister(t *testing.T) {
	a := NewArenas(10, 10, 10, 10)
	a.WriteRegisters(0, []uint16{0x0012})
	d := NewDispatcher(a, 0)

	data := make([]byte, 6)
	binary.BigEndian.PutUint16(data[0:2], 0)
	binary.BigEndian.PutUint16(data[2:4], 0x00F2)
	binary.BigEndian.PutUint16(data[4:6], 0x0025)
	resp := d.Handle(0, modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeMaskWriteRegister, Data: data})
	if resp.IsException() {
		t.Fatalf("unexpected exception")
	}

	readResp := d.Handle(0, modbus.SerializeReadRequest(modbus.FuncCodeReadHoldingRegisters, 0, 1))
	regs, _ := modbus.DeserializeRegisters(readResp, 1)
	// (0x0012 & 0x00F2) | (0x0025 &^ 0x00F2) == 0x0012 | 0x0005 == 0x0017
	if regs[0] != 0x0017 {
		t.Fatalf("got %#04x, want %#04x", regs[0], 0x0017)
	}
}

func TestDispatchRejectsUnknownSlaveAddress(t *testing.T) {
	a := NewArenas(10, 10, 10, 10)
	a.WriteRegisters(0, []uint16{99})
	d := NewDispatcher(a, 5)

	req := modbus.SerializeReadRequest(modbus.FuncCodeReadHoldingRegisters, 0, 1)

	resp := d.Handle(5, req)
	if resp.IsException() {
		t.Fatalf("unexpected exception for matching unit id")
	}

	resp = d.Handle(0, req)
	if resp.IsException() {
		t.Fatalf("unexpected exception for broadcast unit id")
	}

	resp = d.Handle(9, req)
	if !resp.IsException() || resp.ExceptionCode() != modbus.ExceptionCodeGatewayPathUnavailable {
		t.Fatalf("expected gateway-path-unavailable exception for mismatched unit id, got %+v", resp)
	}
}

func TestDispatchUnsupportedFunctionCode(t *testing.T) {
	a := NewArenas(10, 10, 10, 10)
	d := NewDispatcher(a, 0)
	resp := d.Handle(0, modbus.ProtocolDataUnit{FunctionCode: 0x2B})
	if !resp.IsException() || resp.ExceptionCode() != modbus.ExceptionCodeIllegalFunction {
		t.Fatalf("expected illegal function exception, got %+v", resp)
	}
}
