// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package master

import (
	"fmt"

	"github.com/modbusedge/gateway/internal/errs"
)

// errUnsupportedFunctionCode is returned when a poll group names a
// function code the master does not poll with (only FC 1-4 are valid for
// a downstream read); classified as ErrConfigInvalid so the offending
// group is skipped while the rest of the bus keeps polling.
var errUnsupportedFunctionCode = fmt.Errorf("master: unsupported function code for poll group: %w", errs.ErrConfigInvalid)

type protocolException struct {
	code byte
}

func (e *protocolException) Error() string {
	return fmt.Sprintf("master: slave returned exception code %#02x: %v", e.code, errs.ErrProtocolDecode)
}

func (e *protocolException) Unwrap() error {
	return errs.ErrProtocolDecode
}

func exceptionError(code byte) error {
	return &protocolException{code: code}
}
