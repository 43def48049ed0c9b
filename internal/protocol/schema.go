// Package protocol implements the textual op-coded messages exchanged over the
// canvas WebSocket. A message is "<opcode>;<payload>" on a single line.
package protocol

import (
	"strconv"

	"pixelcanvas/internal/canvas"
)

// Opcode selects the payload grammar of a message.
type Opcode int

const (
	OpWriteCell      Opcode = 1 // client: x,y,<color>
	OpMoveCursor     Opcode = 2 // client: x,y
	OpWroteCell      Opcode = 3 // broadcast: name,x,y,<color>
	OpMovedCursor    Opcode = 4 // broadcast: name,x,y
	OpError          Opcode = 5 // sender only: <message>
	OpInitConnection Opcode = 6 // sender only: name|null,width,height,<bytes>
)

func (o Opcode) String() string {
	switch o {
	case OpWriteCell:
		return "write_cell"
	case OpMoveCursor:
		return "move_cursor"
	case OpWroteCell:
		return "wrote_cell"
	case OpMovedCursor:
		return "moved_cursor"
	case OpError:
		return "error"
	case OpInitConnection:
		return "init_connection"
	}
	return "opcode(" + strconv.Itoa(int(o)) + ")"
}

// AnonymousName is sent in the init message when the connection has no identity.
const AnonymousName = "null"

// Message is one of WriteCell, MoveCursor, WroteCell, MovedCursor, Error or
// InitConnection.
type Message interface {
	Op() Opcode
	appendPayload(b []byte) []byte
}

// WriteCell asks to paint a cell.
type WriteCell struct {
	Position canvas.Position
	Color    canvas.Color
}

// MoveCursor asks to move the sender's cursor.
type MoveCursor struct {
	Position canvas.Position
}

// WroteCell announces a painted cell.
type WroteCell struct {
	Author   string
	Position canvas.Position
	Color    canvas.Color
}

// MovedCursor announces a cursor move.
type MovedCursor struct {
	Author   string
	Position canvas.Position
}

// Error is replied to the sender only.
type Error struct {
	Message string
}

// InitConnection carries the full canvas to a new connection. An empty Author
// is rendered as AnonymousName.
type InitConnection struct {
	Author   string
	Snapshot canvas.Snapshot
}

func (WriteCell) Op() Opcode      { return OpWriteCell }
func (MoveCursor) Op() Opcode     { return OpMoveCursor }
func (WroteCell) Op() Opcode      { return OpWroteCell }
func (MovedCursor) Op() Opcode    { return OpMovedCursor }
func (Error) Op() Opcode          { return OpError }
func (InitConnection) Op() Opcode { return OpInitConnection }

// ErrorFrom builds a sender reply from err.
func ErrorFrom(err error) Error {
	return Error{Message: err.Error()}
}
