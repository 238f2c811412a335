// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcpslave

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/modbusedge/gateway/internal/modbus"
)

// Dispatcher answers Modbus PDUs against a fixed set of register tables.
type Dispatcher struct {
	slaveAddress     byte
	coils            RegisterTable
	discreteInputs   RegisterTable
	holdingRegisters RegisterTable
	inputRegisters   RegisterTable
}

// NewDispatcher builds a Dispatcher over the four register tables backed
// by a single Arenas. slaveAddress is the unit id this slave answers to
// (in addition to the broadcast address 0).
func NewDispatcher(a *Arenas, slaveAddress byte) *Dispatcher {
	return &Dispatcher{
		slaveAddress:     slaveAddress,
		coils:            CoilsTable(a),
		discreteInputs:   DiscreteInputsTable(a),
		holdingRegisters: HoldingRegistersTable(a),
		inputRegisters:   InputRegistersTable(a),
	}
}

// Handle answers one request PDU addressed to unitID, returning either a
// normal or exception response PDU. Every failure becomes an exception
// PDU: an out-of-range address yields illegal-data-address, an unknown
// function code illegal-function, and any other failure (including a
// malformed request body) illegal-data-value.
func (d *Dispatcher) Handle(unitID byte, req modbus.ProtocolDataUnit) modbus.ProtocolDataUnit {
	if unitID != 0 && unitID != d.slaveAddress {
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeGatewayPathUnavailable)
	}

	resp, err := d.dispatch(req)
	if err == nil {
		return resp
	}
	switch {
	case errors.Is(err, ErrIllegalDataAddress):
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataAddress)
	case errors.Is(err, ErrIllegalFunction):
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalFunction)
	default:
		return modbus.NewException(req.FunctionCode, modbus.ExceptionCodeIllegalDataValue)
	}
}

func (d *Dispatcher) dispatch(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils:
		return d.readBits(req, d.coils)
	case modbus.FuncCodeReadDiscreteInputs:
		return d.readBits(req, d.discreteInputs)
	case modbus.FuncCodeReadHoldingRegisters:
		return d.readRegisters(req, d.holdingRegisters)
	case modbus.FuncCodeReadInputRegisters:
		return d.readRegisters(req, d.inputRegisters)
	case modbus.FuncCodeWriteSingleCoil:
		return d.writeSingleCoil(req)
	case modbus.FuncCodeWriteSingleRegister:
		return d.writeSingleRegister(req)
	case modbus.FuncCodeWriteMultipleCoils:
		return d.writeMultipleCoils(req)
	case modbus.FuncCodeWriteMultipleRegisters:
		return d.writeMultipleRegisters(req)
	case modbus.FuncCodeMaskWriteRegister:
		return d.maskWriteRegister(req)
	case modbus.FuncCodeReadWriteMultipleRegisters:
		return d.readWriteMultipleRegisters(req)
	default:
		return modbus.ProtocolDataUnit{}, ErrIllegalFunction
	}
}

func (d *Dispatcher) readBits(req modbus.ProtocolDataUnit, t RegisterTable) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: malformed read-bits request")
	}
	addr := int(binary.BigEndian.Uint16(req.Data[0:2]))
	quantity := int(binary.BigEndian.Uint16(req.Data[2:4]))
	raw, err := t.get(addr, quantity)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	bits := make([]bool, quantity)
	for i := range bits {
		bits[i] = raw[i] != 0
	}
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: modbus.PackBits(bits)}, nil
}

func (d *Dispatcher) readRegisters(req modbus.ProtocolDataUnit, t RegisterTable) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: malformed read-registers request")
	}
	addr := int(binary.BigEndian.Uint16(req.Data[0:2]))
	quantity := int(binary.BigEndian.Uint16(req.Data[2:4]))
	raw, err := t.get(addr, quantity)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	out := make([]byte, 1+len(raw))
	out[0] = byte(len(raw))
	copy(out[1:], raw)
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: out}, nil
}

func (d *Dispatcher) writeSingleCoil(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: malformed write-single-coil request")
	}
	addr := int(binary.BigEndian.Uint16(req.Data[0:2]))
	val := binary.BigEndian.Uint16(req.Data[2:4])
	var b byte
	if val == 0xFF00 {
		b = 1
	} else if val != 0x0000 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: coil value %#04x invalid", val)
	}
	if err := d.coils.set(addr, []byte{b}); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return req, nil
}

func (d *Dispatcher) writeSingleRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 4 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: malformed write-single-register request")
	}
	addr := int(binary.BigEndian.Uint16(req.Data[0:2]))
	if err := d.holdingRegisters.set(addr, req.Data[2:4]); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return req, nil
}

func (d *Dispatcher) writeMultipleCoils(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 5 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: malformed write-multiple-coils request")
	}
	addr := int(binary.BigEndian.Uint16(req.Data[0:2]))
	quantity := int(binary.BigEndian.Uint16(req.Data[2:4]))
	byteCount := int(req.Data[4])
	if len(req.Data) != 5+byteCount || byteCount != (quantity+7)/8 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: write-multiple-coils byte count mismatch")
	}
	values := make([]byte, quantity)
	for i := 0; i < quantity; i++ {
		if req.Data[5+i/8]&(1<<uint(i%8)) != 0 {
			values[i] = 1
		}
	}
	if err := d.coils.set(addr, values); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], uint16(addr))
	binary.BigEndian.PutUint16(resp[2:4], uint16(quantity))
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: resp}, nil
}

func (d *Dispatcher) writeMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 5 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: malformed write-multiple-registers request")
	}
	addr := int(binary.BigEndian.Uint16(req.Data[0:2]))
	quantity := int(binary.BigEndian.Uint16(req.Data[2:4]))
	byteCount := int(req.Data[4])
	if len(req.Data) != 5+byteCount || byteCount != quantity*2 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: write-multiple-registers byte count mismatch")
	}
	if err := d.holdingRegisters.set(addr, req.Data[5:5+byteCount]); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	resp := make([]byte, 4)
	binary.BigEndian.PutUint16(resp[0:2], uint16(addr))
	binary.BigEndian.PutUint16(resp[2:4], uint16(quantity))
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: resp}, nil
}

func (d *Dispatcher) maskWriteRegister(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) != 6 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: malformed mask-write-register request")
	}
	addr := int(binary.BigEndian.Uint16(req.Data[0:2]))
	and := binary.BigEndian.Uint16(req.Data[2:4])
	or := binary.BigEndian.Uint16(req.Data[4:6])

	current, err := d.holdingRegisters.get(addr, 1)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	cur := uint16(current[0])<<8 | uint16(current[1])
	result := (cur & and) | (or &^ and)
	buf := []byte{byte(result >> 8), byte(result)}
	if err := d.holdingRegisters.set(addr, buf); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	return req, nil
}

func (d *Dispatcher) readWriteMultipleRegisters(req modbus.ProtocolDataUnit) (modbus.ProtocolDataUnit, error) {
	if len(req.Data) < 9 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: malformed read/write-multiple-registers request")
	}
	readAddr := int(binary.BigEndian.Uint16(req.Data[0:2]))
	readQuantity := int(binary.BigEndian.Uint16(req.Data[2:4]))
	writeAddr := int(binary.BigEndian.Uint16(req.Data[4:6]))
	writeQuantity := int(binary.BigEndian.Uint16(req.Data[6:8]))
	byteCount := int(req.Data[8])
	if len(req.Data) != 9+byteCount || byteCount != writeQuantity*2 {
		return modbus.ProtocolDataUnit{}, fmt.Errorf("tcpslave: read/write-multiple-registers byte count mismatch")
	}

	// Validate both ranges before mutating anything.
	if _, err := d.holdingRegisters.get(readAddr, readQuantity); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	if err := inRange(d.holdingRegisters.size, writeAddr, writeQuantity); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}

	if err := d.holdingRegisters.set(writeAddr, req.Data[9:9+byteCount]); err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	raw, err := d.holdingRegisters.get(readAddr, readQuantity)
	if err != nil {
		return modbus.ProtocolDataUnit{}, err
	}
	out := make([]byte, 1+len(raw))
	out[0] = byte(len(raw))
	copy(out[1:], raw)
	return modbus.ProtocolDataUnit{FunctionCode: req.FunctionCode, Data: out}, nil
}
