// Package canvas holds the pixel grid value types and the file-backed store
// that persists every cell with its last author.
package canvas

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrPositionFieldCount indicates that a textual position did not have exactly two fields.
	ErrPositionFieldCount = errors.New("position must have exactly two comma separated values")
	// ErrPositionNumber indicates that a position coordinate was not an unsigned integer.
	ErrPositionNumber = errors.New("couldn't parse one of the position coordinates")
)

// Position is a 0-based cell coordinate on the canvas.
type Position struct {
	X int
	Y int
}

// ParsePosition parses the "x,y" form. Whitespace around each field is ignored.
func ParsePosition(s string) (Position, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 2 {
		return Position{}, ErrPositionFieldCount
	}

	x, err := parseCoord(fields[0])
	if err != nil {
		return Position{}, err
	}
	y, err := parseCoord(fields[1])
	if err != nil {
		return Position{}, err
	}
	return Position{X: x, Y: y}, nil
}

func parseCoord(s string) (int, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 31)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrPositionNumber, err)
	}
	return int(n), nil
}

// String renders the position as "x,y".
func (p Position) String() string {
	return strconv.Itoa(p.X) + "," + strconv.Itoa(p.Y)
}
