package protocol

import (
	"strconv"
	"strings"

	"pixelcanvas/internal/canvas"
)

const (
	msgInvalidFormat     = "Invalid message format."
	msgInvalidOpcode     = "Invalid OP code."
	msgInvalidParamCount = "Invalid parameter length."
	msgConversion        = "Internal message conversion error."
)

// Decode parses a client message. It never fails: malformed input yields an
// Error message meant for the sender.
func Decode(raw string) Message {
	op, params, ok := strings.Cut(raw, ";")
	if !ok {
		return Error{Message: msgInvalidFormat}
	}

	code, err := strconv.Atoi(strings.TrimSpace(op))
	if err != nil {
		return Error{Message: msgInvalidOpcode}
	}

	switch Opcode(code) {
	case OpWriteCell:
		fields := strings.SplitN(params, ",", 3)
		if len(fields) != 3 {
			return Error{Message: msgInvalidParamCount}
		}
		pos, err := canvas.ParsePosition(fields[0] + "," + fields[1])
		if err != nil {
			return ErrorFrom(err)
		}
		col, err := canvas.ParseColor(fields[2])
		if err != nil {
			return ErrorFrom(err)
		}
		return WriteCell{Position: pos, Color: col}

	case OpMoveCursor:
		pos, err := canvas.ParsePosition(params)
		if err != nil {
			return ErrorFrom(err)
		}
		return MoveCursor{Position: pos}

	default:
		return Error{Message: msgInvalidOpcode}
	}
}

// Encode renders m in its wire form.
func Encode(m Message) string {
	return string(EncodeBytes(m))
}

// EncodeBytes is Encode without the final string copy, used for frames.
func EncodeBytes(m Message) []byte {
	b := make([]byte, 0, 32)
	b = strconv.AppendInt(b, int64(m.Op()), 10)
	b = append(b, ';')
	return m.appendPayload(b)
}

// ToSender turns a client request into the broadcast counterpart attributed to
// author. Other messages cannot be converted.
func ToSender(m Message, author string) Message {
	switch v := m.(type) {
	case WriteCell:
		return WroteCell{Author: author, Position: v.Position, Color: v.Color}
	case MoveCursor:
		return MovedCursor{Author: author, Position: v.Position}
	default:
		return Error{Message: msgConversion}
	}
}

func (m WriteCell) appendPayload(b []byte) []byte {
	b = append(b, m.Position.String()...)
	b = append(b, ',')
	return append(b, m.Color.String()...)
}

func (m MoveCursor) appendPayload(b []byte) []byte {
	return append(b, m.Position.String()...)
}

func (m WroteCell) appendPayload(b []byte) []byte {
	b = append(b, m.Author...)
	b = append(b, ',')
	b = append(b, m.Position.String()...)
	b = append(b, ',')
	return append(b, m.Color.String()...)
}

func (m MovedCursor) appendPayload(b []byte) []byte {
	b = append(b, m.Author...)
	b = append(b, ',')
	return append(b, m.Position.String()...)
}

func (m Error) appendPayload(b []byte) []byte {
	return append(b, m.Message...)
}

func (m InitConnection) appendPayload(b []byte) []byte {
	name := m.Author
	if name == "" {
		name = AnonymousName
	}
	// Up to three digits and a separator per byte.
	if need := len(b) + len(name) + 24 + 4*len(m.Snapshot.Cells); cap(b) < need {
		grown := make([]byte, len(b), need)
		copy(grown, b)
		b = grown
	}

	b = append(b, name...)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(m.Snapshot.Width), 10)
	b = append(b, ',')
	b = strconv.AppendInt(b, int64(m.Snapshot.Height), 10)
	b = append(b, ',')
	for i, c := range m.Snapshot.Cells {
		if i > 0 {
			b = append(b, ' ')
		}
		b = strconv.AppendUint(b, uint64(c), 10)
	}
	return b
}
