// Package archivefmt implements the framed, Zstandard-compressed archive
// format spec.md section 6 describes: a stream of length-prefixed feature
// blobs terminated by a zero-length record, wrapped in a Zstd stream at
// level 3.
//
// The framing loop is adapted from the teacher's reader.go Stream
// abstraction (a generic Read/Seek source so callers don't care whether
// bytes come from a file or an object store) and file.go's Tell/Padding
// helpers, here turned into a forward-only byte counter since the archive
// is written and read as a single stream rather than a seekable file.
package archivefmt

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const compressionLevel = zstd.SpeedDefault // klauspost's default maps to zstd level 3

// Writer composes a framed archive and compresses it with Zstandard as it
// is written. Callers append one feature-collection blob at a time, then
// call Close to emit the terminating zero-length record and flush.
type Writer struct {
	enc         *zstd.Encoder
	bytesRaw    int64
	bytesBlobs  int
}

// NewWriter wraps dst in a Zstd encoder at level 3, per spec.md section
// 4.5 Phase IV step 2.
func NewWriter(dst io.Writer) (*Writer, error) {
	enc, err := zstd.NewWriter(dst, zstd.WithEncoderLevel(compressionLevel))
	if err != nil {
		return nil, fmt.Errorf("archivefmt: new encoder: %w", err)
	}
	return &Writer{enc: enc}, nil
}

// Append writes one length-prefixed feature-collection blob.
func (w *Writer) Append(blob []byte) error {
	var lenPrefix [8]byte
	binary.BigEndian.PutUint64(lenPrefix[:], uint64(len(blob)))

	if _, err := w.enc.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("archivefmt: write length prefix: %w", err)
	}
	if _, err := w.enc.Write(blob); err != nil {
		return fmt.Errorf("archivefmt: write blob: %w", err)
	}

	w.bytesRaw += int64(len(lenPrefix) + len(blob))
	w.bytesBlobs++

	return nil
}

// Close writes the terminating zero-length record and flushes the
// underlying Zstd stream. It must be called exactly once, on every exit
// path, even after a mid-loop failure, so the compressed stream is valid.
func (w *Writer) Close() error {
	var zero [8]byte
	if _, err := w.enc.Write(zero[:]); err != nil {
		w.enc.Close()
		return fmt.Errorf("archivefmt: write terminator: %w", err)
	}
	if err := w.enc.Close(); err != nil {
		return fmt.Errorf("archivefmt: close encoder: %w", err)
	}
	return nil
}

// BytesWritten returns the uncompressed byte count written so far
// (length prefixes plus blob payloads), used for the
// sync.archive.compression_ratio gauge once paired with the compressed
// output size.
func (w *Writer) BytesWritten() int64 { return w.bytesRaw }

// Reader decompresses and de-frames an archive written by Writer, yielding
// one feature-collection blob per Next call.
type Reader struct {
	dec *zstd.Decoder
}

// NewReader wraps src in a Zstd decoder ready to read framed records.
func NewReader(src io.Reader) (*Reader, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, fmt.Errorf("archivefmt: new decoder: %w", err)
	}
	return &Reader{dec: dec}, nil
}

// Close releases the decoder's resources.
func (r *Reader) Close() { r.dec.Close() }

// Next returns the next blob, or io.EOF once the terminating zero-length
// record is reached.
func (r *Reader) Next() ([]byte, error) {
	var lenPrefix [8]byte
	if _, err := io.ReadFull(r.dec, lenPrefix[:]); err != nil {
		return nil, fmt.Errorf("archivefmt: read length prefix: %w", err)
	}

	n := binary.BigEndian.Uint64(lenPrefix[:])
	if n == 0 {
		return nil, io.EOF
	}

	blob := make([]byte, n)
	if _, err := io.ReadFull(r.dec, blob); err != nil {
		return nil, fmt.Errorf("archivefmt: read blob: %w", err)
	}

	return blob, nil
}
