// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcpslave

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/modbusedge/gateway/internal/modbus"
)

func TestServerStartAndHandle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	a := NewArenas(10, 10, 10, 10)
	a.WriteRegisters(0, []uint16{99})
	s := NewServer(addr, NewDispatcher(a, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req := modbus.SerializeReadRequest(modbus.FuncCodeReadHoldingRegisters, 0, 1)
	raw, err := modbus.EncodeTCP(modbus.TCPFrame{TransactionID: 1, UnitID: 1, PDU: req})
	if err != nil {
		t.Fatalf("EncodeTCP: %v", err)
	}
	if _, err := conn.Write(raw); err != nil {
		t.Fatalf("write: %v", err)
	}

	buf := make([]byte, 256)
	conn.SetReadDeadline(time.Now().Add(time.Second))
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	frame, err := modbus.DecodeTCP(buf[:n])
	if err != nil {
		t.Fatalf("DecodeTCP: %v", err)
	}
	regs, err := modbus.DeserializeRegisters(frame.PDU, 1)
	if err != nil {
		t.Fatalf("DeserializeRegisters: %v", err)
	}
	if regs[0] != 99 {
		t.Fatalf("got %v, want 99", regs[0])
	}
}
