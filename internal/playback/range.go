package playback

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errNotSatisfiable = errors.New("range not satisfiable")

// ByteRange is an inclusive span of a media file.
type ByteRange struct {
	First int64
	Last  int64
}

func (b ByteRange) Len() int64 {
	return b.Last - b.First + 1
}

// ContentRange formats the Content-Range header value for a file of size bytes.
func (b ByteRange) ContentRange(size int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", b.First, b.Last, size)
}

// parseByteRange reads the first span of a Range header. ok is false when the
// header is absent or malformed; the whole file is sent then. Only a
// well-formed span that starts past the end is an error.
func parseByteRange(header string, size int64) (br ByteRange, ok bool, err error) {
	spec, found := strings.CutPrefix(header, "bytes=")
	if !found {
		return ByteRange{}, false, nil
	}
	spec, _, _ = strings.Cut(spec, ",")
	first, last, found := strings.Cut(strings.TrimSpace(spec), "-")
	if !found {
		return ByteRange{}, false, nil
	}

	if first == "" {
		n, err := strconv.ParseInt(last, 10, 64)
		if err != nil || n <= 0 {
			return ByteRange{}, false, nil
		}
		br = ByteRange{First: max(size-n, 0), Last: size - 1}
	} else {
		start, err := strconv.ParseInt(first, 10, 64)
		if err != nil || start < 0 {
			return ByteRange{}, false, nil
		}
		end := size - 1
		if last != "" {
			if end, err = strconv.ParseInt(last, 10, 64); err != nil {
				return ByteRange{}, false, nil
			}
		}
		br = ByteRange{First: start, Last: min(end, size-1)}
		if start > end {
			return ByteRange{}, false, errNotSatisfiable
		}
	}

	if br.First >= size || size == 0 {
		return ByteRange{}, false, errNotSatisfiable
	}
	return br, true, nil
}
