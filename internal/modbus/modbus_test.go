// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

import (
	"reflect"
	"testing"
)

func TestSerializeReadRequest(t *testing.T) {
	pdu := SerializeReadRequest(FuncCodeReadHoldingRegisters, 0x006B, 0x0003)
	want := ProtocolDataUnit{FunctionCode: FuncCodeReadHoldingRegisters, Data: []byte{0x00, 0x6B, 0x00, 0x03}}
	if !reflect.DeepEqual(pdu, want) {
		t.Fatalf("got %+v, want %+v", pdu, want)
	}
}

func TestPackAndDeserializeBits(t *testing.T) {
	bits := []bool{true, false, true, true, false, false, false, false, true}
	packed := PackBits(bits)
	pdu := ProtocolDataUnit{FunctionCode: FuncCodeReadCoils, Data: packed}

	got, err := DeserializeBits(pdu, len(bits))
	if err != nil {
		t.Fatalf("DeserializeBits: %v", err)
	}
	if !reflect.DeepEqual(got, bits) {
		t.Fatalf("got %v, want %v", got, bits)
	}
}

func TestPackAndDeserializeRegisters(t *testing.T) {
	regs := []uint16{0x1111, 0x2222, 0x3333}
	packed := PackRegisters(regs)
	pdu := ProtocolDataUnit{FunctionCode: FuncCodeReadHoldingRegisters, Data: packed}

	got, err := DeserializeRegisters(pdu, len(regs))
	if err != nil {
		t.Fatalf("DeserializeRegisters: %v", err)
	}
	if !reflect.DeepEqual(got, regs) {
		t.Fatalf("got %v, want %v", got, regs)
	}
}

func TestDeserializeRegistersException(t *testing.T) {
	pdu := NewException(FuncCodeReadHoldingRegisters, ExceptionCodeIllegalDataAddress)
	if !pdu.IsException() {
		t.Fatalf("expected exception PDU")
	}
	if pdu.ExceptionCode() != ExceptionCodeIllegalDataAddress {
		t.Fatalf("got exception code %v, want %v", pdu.ExceptionCode(), ExceptionCodeIllegalDataAddress)
	}
	if _, err := DeserializeRegisters(pdu, 3); err == nil {
		t.Fatalf("expected error deserializing exception PDU")
	}
}
