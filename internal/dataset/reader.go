package dataset

// reader.go wraps an upload stream before it reaches the CSV parser.
//
//   - BOM handling: a UTF-8 BOM is dropped, a UTF-16 BOM switches decoding
//   - UTF-16 input is decoded to UTF-8; invalid sequences left in UTF-8
//     input are repaired per cell by core.CleanCell
//   - Size limiting: reading past the configured maximum fails with ErrTooLarge
//
// Use wrapSource to apply all transforms in the correct order.

import (
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// sizeLimitedReader counts bytes read and fails once more than max bytes
// have been consumed.
type sizeLimitedReader struct {
	reader    io.Reader
	bytesRead int64
	max       int64 // 0 disables the limit
}

func (r *sizeLimitedReader) Read(p []byte) (int, error) {
	if r.max > 0 && r.bytesRead > r.max {
		return 0, ErrTooLarge
	}
	n, err := r.reader.Read(p)
	r.bytesRead += int64(n)
	if r.max > 0 && r.bytesRead > r.max {
		return n, ErrTooLarge
	}
	return n, err
}

// wrapSource limits the raw stream and then strips or honours its BOM.
//
// The limit applies to the bytes as uploaded, so it wraps the source before
// any decoding.
func wrapSource(r io.Reader, maxSize int64) (io.Reader, *sizeLimitedReader) {
	limited := &sizeLimitedReader{reader: r, max: maxSize}
	decoder := unicode.BOMOverride(unicode.UTF8.NewDecoder())
	return transform.NewReader(limited, decoder), limited
}
