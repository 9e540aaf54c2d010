// Package segments implements the numbered-certificate range algebra.
// A set of certificate numbers is held either inflated (explicit integers)
// or deflated (a compact list mixing bare numbers and "start-end" ranges).
// The deflated form is what gets persisted and what the API speaks.
package segments

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Segment is one entry of a deflated list: an inclusive number range.
// A single certificate number is the degenerate range Start == End.
type Segment struct {
	Start uint64
	End   uint64
}

// List is a deflated segment list, e.g. [1, "3-4", "6-9", 33].
type List []Segment

// InvalidSegmentsError reports malformed segment input. Malformed tokens
// are a hard failure, never silently dropped.
type InvalidSegmentsError struct {
	Token  string
	Reason string
}

func (e *InvalidSegmentsError) Error() string {
	if e.Token == "" {
		return "invalid segments: " + e.Reason
	}
	return fmt.Sprintf("invalid segment %q: %s", e.Token, e.Reason)
}

// Single returns a degenerate one-number segment.
func Single(n uint64) Segment {
	return Segment{Start: n, End: n}
}

// Range returns the inclusive range [start, end].
func Range(start, end uint64) Segment {
	return Segment{Start: start, End: end}
}

// Count returns the number of certificate numbers the segment covers,
// computed from the boundaries without expansion.
func (s Segment) Count() uint64 {
	return s.End - s.Start + 1
}

// String renders the segment the way it appears in persisted lists.
func (s Segment) String() string {
	if s.Start == s.End {
		return strconv.FormatUint(s.Start, 10)
	}
	return strconv.FormatUint(s.Start, 10) + "-" + strconv.FormatUint(s.End, 10)
}

// MarshalJSON emits a bare number for singletons and a "start-end" string
// for ranges, matching the persisted column format.
func (s Segment) MarshalJSON() ([]byte, error) {
	if s.Start == s.End {
		return []byte(strconv.FormatUint(s.Start, 10)), nil
	}
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a number, a numeric string, or a "start-end" string.
func (s *Segment) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return &InvalidSegmentsError{Token: string(data), Reason: "not a number or range string"}
	}
	seg, err := fromValue(raw)
	if err != nil {
		return err
	}
	*s = seg
	return nil
}

// MarshalJSON emits the mixed int/string array; a nil list becomes [].
func (l List) MarshalJSON() ([]byte, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	parts := make([]json.RawMessage, len(l))
	for i, s := range l {
		b, err := s.MarshalJSON()
		if err != nil {
			return nil, err
		}
		parts[i] = b
	}
	return json.Marshal(parts)
}

// UnmarshalJSON accepts the mixed int/string array form.
func (l *List) UnmarshalJSON(data []byte) error {
	var raw []any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return &InvalidSegmentsError{Reason: "not a JSON list"}
	}
	out := make(List, 0, len(raw))
	for _, v := range raw {
		seg, err := fromValue(v)
		if err != nil {
			return err
		}
		out = append(out, seg)
	}
	*l = out
	return nil
}

// Value implements driver.Valuer so a List persists as a JSON column.
func (l List) Value() (driver.Value, error) {
	b, err := l.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner. NULL and empty values scan to an empty list.
func (l *List) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into segments.List", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return l.UnmarshalJSON(data)
}

// fromValue converts one decoded JSON element into a Segment. Numeric
// strings are accepted since historical rows mix types.
func fromValue(v any) (Segment, error) {
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.ParseUint(t.String(), 10, 64)
		if err != nil {
			return Segment{}, &InvalidSegmentsError{Token: t.String(), Reason: "not a positive integer"}
		}
		return Single(n), nil
	case float64:
		if t < 0 || t != float64(uint64(t)) {
			return Segment{}, &InvalidSegmentsError{Token: fmt.Sprint(t), Reason: "not a positive integer"}
		}
		return Single(uint64(t)), nil
	case int:
		if t < 0 {
			return Segment{}, &InvalidSegmentsError{Token: strconv.Itoa(t), Reason: "not a positive integer"}
		}
		return Single(uint64(t)), nil
	case string:
		return parseToken(t)
	default:
		return Segment{}, &InvalidSegmentsError{Token: fmt.Sprint(v), Reason: "unsupported element type"}
	}
}

// parseToken parses a bare number or a "start-end" range token.
func parseToken(tok string) (Segment, error) {
	tok = strings.TrimSpace(tok)
	if tok == "" {
		return Segment{}, &InvalidSegmentsError{Reason: "empty token"}
	}
	if i := strings.IndexByte(tok, '-'); i >= 0 {
		start, err := strconv.ParseUint(strings.TrimSpace(tok[:i]), 10, 64)
		if err != nil {
			return Segment{}, &InvalidSegmentsError{Token: tok, Reason: "range start is not a number"}
		}
		end, err := strconv.ParseUint(strings.TrimSpace(tok[i+1:]), 10, 64)
		if err != nil {
			return Segment{}, &InvalidSegmentsError{Token: tok, Reason: "range end is not a number"}
		}
		if end < start {
			return Segment{}, &InvalidSegmentsError{Token: tok, Reason: "inverted range"}
		}
		return Range(start, end), nil
	}
	n, err := strconv.ParseUint(tok, 10, 64)
	if err != nil {
		return Segment{}, &InvalidSegmentsError{Token: tok, Reason: "not a number"}
	}
	return Single(n), nil
}
