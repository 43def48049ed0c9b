package canvas

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"sync"
)

const (
	// Width and Height are the default canvas dimensions.
	Width  = 1920
	Height = 1080

	colorSize  = 3
	authorSize = 4
	// RecordSize is the on-disk size of one cell: RGB followed by a little-endian uint32 author id.
	RecordSize = colorSize + authorSize
)

var (
	// ErrOutOfBounds is returned for positions outside the canvas.
	ErrOutOfBounds = errors.New("position is outside of the canvas")
	// ErrIO wraps every failure of the underlying file.
	ErrIO = errors.New("canvas storage failure")
	// ErrLayout is returned when an existing canvas file has an unexpected size.
	ErrLayout = errors.New("canvas file size does not match its dimensions")
	// ErrNotOpen is returned by operations on a store that was never opened.
	ErrNotOpen = errors.New("canvas store is not open")
)

// AuthorID identifies the user who last painted a cell. Zero means nobody.
type AuthorID uint32

// Dimensions of a canvas in cells.
type Dimensions struct {
	Width  int
	Height int
}

// DefaultDimensions returns the 1920x1080 grid.
func DefaultDimensions() Dimensions {
	return Dimensions{Width: Width, Height: Height}
}

// Cells returns the number of cells.
func (d Dimensions) Cells() int {
	return d.Width * d.Height
}

// FileSize returns the exact size of the backing file.
func (d Dimensions) FileSize() int64 {
	return int64(d.Cells()) * RecordSize
}

// Contains reports whether p lies on the grid.
func (d Dimensions) Contains(p Position) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < d.Width && p.Y < d.Height
}

// Snapshot is the raw content of the canvas file.
type Snapshot struct {
	Dimensions
	Cells []byte
}

// Store is a fixed-size grid of cell records addressed by offset in a single
// file. The handle is shared by all sessions. Every write is one WriteAt of a
// whole record, so writes to different cells never interleave and the last
// write to the same cell wins.
type Store struct {
	path string
	dims Dimensions

	mu   sync.Mutex
	file *os.File
}

// NewStore returns an unopened store for the file at path.
func NewStore(path string, dims Dimensions) *Store {
	return &Store{path: path, dims: dims}
}

// Open creates and opens a store in one call.
func Open(path string, dims Dimensions) (*Store, error) {
	s := NewStore(path, dims)
	if err := s.Open(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens the backing file, creating and zero-filling it if absent. Calling
// Open on an already open store is a no-op.
func (s *Store) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file != nil {
		return nil
	}
	if s.dims.Width <= 0 || s.dims.Height <= 0 {
		return fmt.Errorf("canvas: invalid dimensions %dx%d", s.dims.Width, s.dims.Height)
	}

	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrIO, s.path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("%w: stat %s: %w", ErrIO, s.path, err)
	}

	want := s.dims.FileSize()
	switch info.Size() {
	case want:
	case 0:
		// Truncate extends with zero bytes.
		if err := f.Truncate(want); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: preallocate %s: %w", ErrIO, s.path, err)
		}
		if err := f.Sync(); err != nil {
			_ = f.Close()
			return fmt.Errorf("%w: sync %s: %w", ErrIO, s.path, err)
		}
	default:
		_ = f.Close()
		return fmt.Errorf("%w: %s is %d bytes, want %d", ErrLayout, s.path, info.Size(), want)
	}

	s.file = f
	return nil
}

// Close releases the file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Dimensions returns the grid size.
func (s *Store) Dimensions() Dimensions {
	return s.dims
}

// Contains reports whether p lies on the grid.
func (s *Store) Contains(p Position) bool {
	return s.dims.Contains(p)
}

func (s *Store) handle() (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, ErrNotOpen)
	}
	return s.file, nil
}

func (s *Store) offset(p Position) int64 {
	return int64(p.Y*s.dims.Width+p.X) * RecordSize
}

// WriteCell stores color and author for the cell at p.
func (s *Store) WriteCell(p Position, c Color, author AuthorID) error {
	if !s.Contains(p) {
		return ErrOutOfBounds
	}
	f, err := s.handle()
	if err != nil {
		return err
	}

	var rec [RecordSize]byte
	rec[0], rec[1], rec[2] = c.R, c.G, c.B
	binary.LittleEndian.PutUint32(rec[colorSize:], uint32(author))

	off := s.offset(p)
	if _, err := f.WriteAt(rec[:], off); err != nil {
		return fmt.Errorf("%w: write cell %s at %d: %w", ErrIO, p, off, err)
	}
	return nil
}

// ReadCell returns the record stored at p.
func (s *Store) ReadCell(p Position) (Color, AuthorID, error) {
	if !s.Contains(p) {
		return Color{}, 0, ErrOutOfBounds
	}
	f, err := s.handle()
	if err != nil {
		return Color{}, 0, err
	}

	var rec [RecordSize]byte
	off := s.offset(p)
	if _, err := f.ReadAt(rec[:], off); err != nil {
		return Color{}, 0, fmt.Errorf("%w: read cell %s at %d: %w", ErrIO, p, off, err)
	}
	return Color{R: rec[0], G: rec[1], B: rec[2]}, AuthorID(binary.LittleEndian.Uint32(rec[colorSize:])), nil
}

// ReadAll reads the whole file for the initial state of a new connection.
func (s *Store) ReadAll() (Snapshot, error) {
	f, err := s.handle()
	if err != nil {
		return Snapshot{}, err
	}

	buf := make([]byte, s.dims.FileSize())
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Snapshot{}, fmt.Errorf("%w: read canvas: %w", ErrIO, err)
	}
	return Snapshot{Dimensions: s.dims, Cells: buf}, nil
}
