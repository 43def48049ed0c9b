package canvas

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrColorFieldCount indicates the wrong number of fields for the color format.
	ErrColorFieldCount = errors.New("there are not enough values for the specified color format")
	// ErrColorNumber indicates that one of the color values could not be parsed.
	ErrColorNumber = errors.New("couldn't parse one of the color values")
	// ErrColorFormat indicates an unknown format tag.
	ErrColorFormat = errors.New("the color format is invalid, expected v for values or h for hex")
)

// Color is an RGB triple.
type Color struct {
	R uint8
	G uint8
	B uint8
}

// ColorFromPacked unpacks a 0xRRGGBB value. Bits above 24 are ignored.
func ColorFromPacked(v uint32) Color {
	return Color{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
	}
}

// Packed returns the color as 0xRRGGBB.
func (c Color) Packed() uint32 {
	return uint32(c.R)<<16 | uint32(c.G)<<8 | uint32(c.B)
}

// ParseColor accepts "v,<r>,<g>,<b>" with decimal channels or "h,<hex>" with a
// packed 24-bit hex value.
func ParseColor(s string) (Color, error) {
	fields := strings.Split(s, ",")
	if len(fields) <= 1 {
		return Color{}, ErrColorFieldCount
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	switch fields[0] {
	case "v":
		if len(fields) != 4 {
			return Color{}, ErrColorFieldCount
		}
		var ch [3]uint8
		for i, f := range fields[1:] {
			n, err := strconv.ParseUint(f, 10, 8)
			if err != nil {
				return Color{}, fmt.Errorf("%w: %w", ErrColorNumber, err)
			}
			ch[i] = uint8(n)
		}
		return Color{R: ch[0], G: ch[1], B: ch[2]}, nil

	case "h":
		if len(fields) != 2 {
			return Color{}, ErrColorFieldCount
		}
		n, err := strconv.ParseUint(fields[1], 16, 24)
		if err != nil {
			return Color{}, fmt.Errorf("%w: %w", ErrColorNumber, err)
		}
		return ColorFromPacked(uint32(n)), nil

	default:
		return Color{}, ErrColorFormat
	}
}

// String always renders the canonical "v,r,g,b" form.
func (c Color) String() string {
	return "v," + strconv.Itoa(int(c.R)) + "," + strconv.Itoa(int(c.G)) + "," + strconv.Itoa(int(c.B))
}
