// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package errs names the gateway's error taxonomy as sentinel values so
// callers across packages can classify a failure with errors.Is instead
// of re-deriving the same switch in every component. No error in this
// taxonomy propagates above a task's own goroutine boundary; each
// component decides locally whether to retry, skip, or log.
package errs

import "errors"

var (
	// ErrTransientIO covers a retried-next-cycle failure: a serial read
	// timeout, a socket would-block, or a lost broker connection.
	ErrTransientIO = errors.New("transient i/o error")

	// ErrProtocolDecode covers a CRC or ADU deserialization failure on
	// an RTU response; the poll group's ready flag is cleared and its
	// timeout is adapted upward.
	ErrProtocolDecode = errors.New("protocol decode error")

	// ErrProtocolException covers an address or slave-id mismatch (or
	// any other Modbus exception) encoded as a response to a TCP
	// client; the connection stays open.
	ErrProtocolException = errors.New("protocol exception")

	// ErrConfigInvalid covers a configuration entry that cannot be
	// honored (e.g. a poll group naming a function code outside 1-4);
	// the offending entry is skipped, others continue.
	ErrConfigInvalid = errors.New("invalid configuration entry")

	// ErrResourceExhausted covers a bounded resource that is full: no
	// free TCP client slot, an oversized MQTT JSON payload, or a failed
	// task/goroutine spawn. The triggering request is rejected or
	// skipped, not retried.
	ErrResourceExhausted = errors.New("resource exhausted")
)
