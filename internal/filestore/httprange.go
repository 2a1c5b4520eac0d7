package filestore

import (
	"fmt"
	"strconv"
	"strings"
)

// ByteRange is a resolved inclusive byte range within a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes the range covers.
func (r ByteRange) Length() int64 {
	return r.End - r.Start + 1
}

// ContentRange renders the Content-Range header value for a file of the
// given size.
func (r ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, size)
}

// ParseRange resolves one Range header against a file size. The three
// supported forms are "bytes=a-b", "bytes=a-" and "bytes=-n". A suffix
// longer than the file serves the whole file; a start at or past the end is
// not satisfiable.
func ParseRange(header string, size int64) (ByteRange, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: %q", ErrRangeNotSatisfiable, header)
	}
	spec = strings.TrimSpace(spec)

	first, last, ok := strings.Cut(spec, "-")
	if !ok {
		return ByteRange{}, fmt.Errorf("%w: %q", ErrRangeNotSatisfiable, header)
	}

	// Suffix form: bytes=-n, the final n bytes.
	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return ByteRange{}, fmt.Errorf("%w: %q", ErrRangeNotSatisfiable, header)
		}
		if n > size {
			n = size
		}
		return ByteRange{Start: size - n, End: size - 1}, nil
	}

	start, err := strconv.ParseInt(first, 10, 64)
	if err != nil || start < 0 {
		return ByteRange{}, fmt.Errorf("%w: %q", ErrRangeNotSatisfiable, header)
	}
	if start >= size {
		return ByteRange{}, fmt.Errorf("%w: start %d beyond size %d", ErrRangeNotSatisfiable, start, size)
	}

	// Open-ended form: bytes=a-.
	if last == "" {
		return ByteRange{Start: start, End: size - 1}, nil
	}

	end, err := strconv.ParseInt(last, 10, 64)
	if err != nil || end < start {
		return ByteRange{}, fmt.Errorf("%w: %q", ErrRangeNotSatisfiable, header)
	}
	if end >= size {
		end = size - 1
	}
	return ByteRange{Start: start, End: end}, nil
}
