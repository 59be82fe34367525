package api

import (
	"regexp"
	"strconv"
	"strings"
)

var rangePattern = regexp.MustCompile(`^(\w+)=(\d*)-(\d*)(\s*,\s*(\d*)-(\d*))*$`)

// ByteRange is one range of a Range header. A negative Start or End means
// the bound was omitted: "500-" has no End, "-500" is a suffix range.
type ByteRange struct {
	Start int64
	End   int64
}

// Valid reports whether at least one bound is present.
func (b ByteRange) Valid() bool {
	return b.Start >= 0 || b.End >= 0
}

// Resolve converts the range into inclusive absolute offsets for an entity
// of the given size. ok is false when the range cannot be satisfied.
func (b ByteRange) Resolve(size int64) (start, end int64, ok bool) {
	switch {
	case b.Start >= 0:
		start, end = b.Start, size-1
		if b.End >= 0 && b.End < end {
			end = b.End
		}
	case b.End > 0:
		start, end = max(size-b.End, 0), size-1
	default:
		return 0, 0, false
	}
	if start > end || start >= size {
		return 0, 0, false
	}
	return start, end, true
}

// RangeHeader is a parsed Range header. Ranges is never empty.
type RangeHeader struct {
	Unit   string
	Ranges []ByteRange
}

// ParseRange parses a Range header value such as "bytes=0-499, 1000-".
// It returns nil for anything malformed.
func ParseRange(v string) *RangeHeader {
	if !rangePattern.MatchString(v) {
		return nil
	}
	unit, set, _ := strings.Cut(v, "=")
	h := &RangeHeader{Unit: unit}
	for part := range strings.SplitSeq(set, ",") {
		first, last, _ := strings.Cut(strings.TrimSpace(part), "-")
		br := ByteRange{Start: -1, End: -1}
		var err error
		if first != "" {
			if br.Start, err = strconv.ParseInt(first, 10, 64); err != nil {
				return nil
			}
		}
		if last != "" {
			if br.End, err = strconv.ParseInt(last, 10, 64); err != nil {
				return nil
			}
		}
		if !br.Valid() {
			return nil
		}
		h.Ranges = append(h.Ranges, br)
	}
	return h
}
