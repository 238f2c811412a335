// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package tcpslave

import (
	"fmt"

	"github.com/modbusedge/gateway/internal/errs"
)

// ErrIllegalDataAddress marks a request whose address/quantity range
// falls outside a table's bounds; callers translate it into a Modbus
// exception 0x02 response rather than touching the arena. It classifies
// as errs.ErrProtocolException: the connection stays open and the
// exception is returned to the client as a normal response.
var ErrIllegalDataAddress = fmt.Errorf("tcpslave: illegal data address: %w", errs.ErrProtocolException)

// ErrIllegalFunction marks a function code the dispatcher does not
// implement; also an errs.ErrProtocolException.
var ErrIllegalFunction = fmt.Errorf("tcpslave: illegal function: %w", errs.ErrProtocolException)
