// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcpslave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/modbusedge/gateway/internal/errs"
	"github.com/modbusedge/gateway/internal/modbus"
)

// MaxClients bounds the number of concurrently connected upstream SCADA
// clients; a connection beyond this limit is accepted then immediately
// closed.
const MaxClients = 3

const keepAlivePeriod = 5 * time.Second

// readWaitTimeout bounds how long a session handler blocks on conn.Read
// before re-checking ctx.Done(), standing in for the select(1s)-on-
// readability suspension point spec.md's TCP session loop calls for.
const readWaitTimeout = 1 * time.Second

// Server is the Modbus-TCP slave socket front end.
type Server struct {
	Address    string
	Dispatcher *Dispatcher

	listener net.Listener

	mu      sync.Mutex
	clients int
}

// NewServer builds a Server that will answer requests via dispatcher.
func NewServer(address string, dispatcher *Dispatcher) *Server {
	return &Server{Address: address, Dispatcher: dispatcher}
}

// Start listens and serves connections until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Address)
	if err != nil {
		return fmt.Errorf("tcpslave: listen on %s: %w", s.Address, err)
	}
	s.listener = ln
	slog.Info("modbus tcp slave listening", "addr", s.Address)

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				slog.Error("tcpslave: accept failed", "error", err)
				continue
			}
		}
		go s.handle(ctx, conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}

func (s *Server) acquireSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clients >= MaxClients {
		return false
	}
	s.clients++
	return true
}

func (s *Server) releaseSlot() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients--
}

func (s *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(keepAlivePeriod)
	}

	if !s.acquireSlot() {
		slog.Warn("tcpslave: rejecting connection, at capacity", "addr", conn.RemoteAddr(), "max_clients", MaxClients, "error", errs.ErrResourceExhausted)
		return
	}
	defer s.releaseSlot()

	slog.Info("tcpslave: client connected", "addr", conn.RemoteAddr())
	buf := make([]byte, modbus.TCPMaxADULen+1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(readWaitTimeout))
		n, err := conn.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				slog.Info("tcpslave: client disconnected", "addr", conn.RemoteAddr())
			} else {
				slog.Error("tcpslave: read failed", "addr", conn.RemoteAddr(), "error", err)
			}
			return
		}
		if n > modbus.TCPMaxADULen {
			slog.Error("tcpslave: oversized request, dropping connection", "addr", conn.RemoteAddr(), "length", n)
			return
		}

		frame, err := modbus.DecodeTCP(buf[:n])
		if err != nil {
			slog.Error("tcpslave: malformed request", "addr", conn.RemoteAddr(), "error", err)
			continue
		}

		respPDU := s.Dispatcher.Handle(frame.UnitID, frame.PDU)
		respRaw, err := modbus.EncodeTCP(modbus.TCPFrame{TransactionID: frame.TransactionID, UnitID: frame.UnitID, PDU: respPDU})
		if err != nil {
			slog.Error("tcpslave: failed to encode response", "addr", conn.RemoteAddr(), "error", err)
			continue
		}
		if _, err := conn.Write(respRaw); err != nil {
			slog.Error("tcpslave: write failed", "addr", conn.RemoteAddr(), "error", err)
			return
		}
	}
}
