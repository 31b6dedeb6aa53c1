package codec

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// NumBlocks is the number of category blocks per region record.
const NumBlocks = 4

// maxPrealloc bounds the up-front allocation for a declared block length so
// a corrupt length cannot exhaust memory before the stream runs dry.
const maxPrealloc = 1 << 12

var (
	// ErrAxisMismatch is returned when a block length differs from the axis
	// length already established for the file.
	ErrAxisMismatch = errors.New("codec: date axis length mismatch")

	// ErrRegionCount is returned when the number of region records written
	// differs from the declared region count.
	ErrRegionCount = errors.New("codec: region count mismatch")

	errClosed = errors.New("codec: writer is closed")
)

// Record is one decoded region record.
type Record struct {
	ID     uint32
	Blocks [NumBlocks][]uint32
}

// Writer writes a case-data file.
type Writer struct {
	w   *bufio.Writer
	buf []byte

	declared int // region count from the header, -1 before WriteHeader
	written  int
	axisLen  int // -1 until the first block is written
	closed   bool
}

// NewWriter wraps w and returns a Writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:        bufio.NewWriter(w),
		buf:      make([]byte, 0, 64),
		declared: -1,
		axisLen:  -1,
	}
}

// WriteHeader writes the region count. It must be called exactly once,
// before any region.
func (w *Writer) WriteHeader(regionCount int) error {
	if w.closed {
		return errClosed
	}
	if w.declared >= 0 {
		return errors.New("codec: header already written")
	}
	if regionCount < 0 || uint64(regionCount) > uint64(^uint32(0)) {
		return fmt.Errorf("codec: invalid region count %d", regionCount)
	}
	w.declared = regionCount
	return w.writeUvarint(uint32(regionCount))
}

// WriteRegion appends one region record. All blocks, across all regions,
// must have the same length.
func (w *Writer) WriteRegion(id uint32, blocks [NumBlocks][]uint32) error {
	if w.closed {
		return errClosed
	}
	if w.declared < 0 {
		return errors.New("codec: header not written")
	}
	if w.written >= w.declared {
		return fmt.Errorf("%w: more than %d regions", ErrRegionCount, w.declared)
	}

	for i, b := range blocks {
		if w.axisLen < 0 {
			w.axisLen = len(b)
		}
		if len(b) != w.axisLen {
			return fmt.Errorf("%w: region %d block %d has %d entries, want %d", ErrAxisMismatch, id, i, len(b), w.axisLen)
		}
	}

	w.buf = AppendUvarint(w.buf[:0], id)
	for _, b := range blocks {
		w.buf = AppendUvarint(w.buf, uint32(len(b)))
		for _, v := range b {
			w.buf = AppendUvarint(w.buf, v)
		}
	}
	if _, err := w.w.Write(w.buf); err != nil {
		return err
	}
	w.written++
	return nil
}

// Close flushes buffered output and verifies the declared region count was
// honored. It does not close the underlying writer.
func (w *Writer) Close() error {
	if w.closed {
		return errClosed
	}
	w.closed = true

	if w.declared < 0 {
		return errors.New("codec: header not written")
	}
	if w.written != w.declared {
		return fmt.Errorf("%w: wrote %d of %d", ErrRegionCount, w.written, w.declared)
	}
	return w.w.Flush()
}

func (w *Writer) writeUvarint(v uint32) error {
	w.buf = AppendUvarint(w.buf[:0], v)
	_, err := w.w.Write(w.buf)
	return err
}

// --------------------------------------------------------------------

// Reader reads a case-data file record by record.
type Reader struct {
	r       io.ByteReader
	axisLen int
	count   int
	read    int
}

// NewReader reads the file header from r. When axisLen is non-negative every
// block length is checked against it; pass -1 to accept whatever length the
// first block declares and hold the rest of the file to it.
func NewReader(r io.Reader, axisLen int) (*Reader, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
	}

	n, err := ReadUvarint(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrTruncated
		}
		return nil, fmt.Errorf("read region count: %w", err)
	}

	return &Reader{r: br, axisLen: axisLen, count: int(n)}, nil
}

// RegionCount returns the number of regions declared by the header.
func (r *Reader) RegionCount() int { return r.count }

// AxisLen returns the axis length in effect, or -1 if none has been seen yet.
func (r *Reader) AxisLen() int { return r.axisLen }

// Next decodes the next region record. It returns io.EOF once all declared
// regions have been read.
func (r *Reader) Next() (Record, error) {
	if r.read >= r.count {
		return Record{}, io.EOF
	}

	var rec Record
	id, err := r.uvarint()
	if err != nil {
		return Record{}, fmt.Errorf("region %d: read id: %w", r.read, err)
	}
	rec.ID = id

	for i := range rec.Blocks {
		block, err := r.block()
		if err != nil {
			return Record{}, fmt.Errorf("region %d block %d: %w", id, i, err)
		}
		rec.Blocks[i] = block
	}

	r.read++
	return rec, nil
}

func (r *Reader) block() ([]uint32, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if r.axisLen < 0 {
		r.axisLen = int(n)
	}
	if int(n) != r.axisLen {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrAxisMismatch, n, r.axisLen)
	}

	counts := make([]uint32, 0, min(int(n), maxPrealloc))
	for j := 0; j < int(n); j++ {
		v, err := r.uvarint()
		if err != nil {
			return nil, err
		}
		counts = append(counts, v)
	}
	return counts, nil
}

// uvarint reads a value that must be present.
func (r *Reader) uvarint() (uint32, error) {
	v, err := ReadUvarint(r.r)
	if errors.Is(err, io.EOF) {
		return 0, ErrTruncated
	}
	return v, err
}
