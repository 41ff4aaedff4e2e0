package index

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/kailas-cloud/retriever/internal/domain"
)

const (
	vectorsMagic   = "RVEC"
	vectorsVersion = uint32(1)
	headerSize     = 4 + 4 + 4 + 8
)

// writeVectors encodes dim, row count and the row-major float32 values, little-endian.
func writeVectors(w io.Writer, dim int, vectors []float32) error {
	bw := bufio.NewWriter(w)

	var hdr [headerSize]byte
	copy(hdr[:4], vectorsMagic)
	binary.LittleEndian.PutUint32(hdr[4:], vectorsVersion)
	binary.LittleEndian.PutUint32(hdr[8:], uint32(dim)) //nolint:gosec // dimensions are small
	count := 0
	if dim > 0 {
		count = len(vectors) / dim
	}
	binary.LittleEndian.PutUint64(hdr[12:], uint64(count)) //nolint:gosec // non-negative
	if _, err := bw.Write(hdr[:]); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	var buf [4]byte
	for _, f := range vectors {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(f))
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("write vectors: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush vectors: %w", err)
	}
	return nil
}

// readVectors decodes a vectors file. size is the file size used to detect
// truncated or padded files.
func readVectors(r io.Reader, size int64) (dim, count int, vectors []float32, err error) {
	br := bufio.NewReader(r)

	var hdr [headerSize]byte
	if _, err := io.ReadFull(br, hdr[:]); err != nil {
		return 0, 0, nil, fmt.Errorf("read header: %v: %w", err, domain.ErrCorruptIndex)
	}
	if string(hdr[:4]) != vectorsMagic {
		return 0, 0, nil, fmt.Errorf("bad magic %q: %w", hdr[:4], domain.ErrCorruptIndex)
	}
	if v := binary.LittleEndian.Uint32(hdr[4:]); v != vectorsVersion {
		return 0, 0, nil, fmt.Errorf("unsupported version %d: %w", v, domain.ErrCorruptIndex)
	}
	d := binary.LittleEndian.Uint32(hdr[8:])
	n := binary.LittleEndian.Uint64(hdr[12:])

	want := uint64(headerSize) + n*uint64(d)*4
	if size >= 0 && uint64(size) != want {
		return 0, 0, nil, fmt.Errorf("vectors file is %d bytes, header implies %d: %w",
			size, want, domain.ErrCorruptIndex)
	}
	if n > 0 && d == 0 {
		return 0, 0, nil, fmt.Errorf("zero dimension with %d rows: %w", n, domain.ErrCorruptIndex)
	}

	vectors = make([]float32, n*uint64(d))
	var buf [4]byte
	for i := range vectors {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return 0, 0, nil, fmt.Errorf("truncated vectors: %w", domain.ErrCorruptIndex)
			}
			return 0, 0, nil, fmt.Errorf("read vectors: %w", err)
		}
		vectors[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[:]))
	}
	return int(d), int(n), vectors, nil //nolint:gosec // bounded by file size
}
