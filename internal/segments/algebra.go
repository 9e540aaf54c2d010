package segments

import (
	"sort"
	"strings"
)

// Inflate expands a deflated list into the explicit certificate numbers it
// covers, in list order. The result is a multiset: if the input mentions a
// number twice it appears twice.
func Inflate(l List) []uint64 {
	out := make([]uint64, 0, Count(l))
	for _, s := range l {
		for n := s.Start; ; n++ {
			out = append(out, n)
			if n == s.End {
				break
			}
		}
	}
	return out
}

// Deflate compacts explicit certificate numbers back into the canonical
// form: ascending, duplicates removed, contiguous runs of two or more
// collapsed into a range, singletons left as bare numbers.
func Deflate(nums []uint64) List {
	if len(nums) == 0 {
		return List{}
	}
	sorted := make([]uint64, len(nums))
	copy(sorted, nums)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	out := List{}
	start, end := sorted[0], sorted[0]
	for _, n := range sorted[1:] {
		switch {
		case n == end || n == end+1:
			end = n
		default:
			out = append(out, Range(start, end))
			start, end = n, n
		}
	}
	return append(out, Range(start, end))
}

// Normalize re-canonicalizes a list: sorted, deduplicated, adjacent and
// overlapping entries merged. Stored lists are always kept in this form,
// but reads must tolerate lists that are not.
func Normalize(l List) List {
	return Deflate(Inflate(l))
}

// Subtract removes b from a as multisets: each unit in b removes at most
// one matching unit from a. The order of a is preserved. An empty result
// means every element of a (with multiplicity) is present in b.
func Subtract(a, b []uint64) []uint64 {
	remove := make(map[uint64]int, len(b))
	for _, n := range b {
		remove[n]++
	}
	out := make([]uint64, 0, len(a))
	for _, n := range a {
		if remove[n] > 0 {
			remove[n]--
			continue
		}
		out = append(out, n)
	}
	return out
}

// CounterSubtract computes the counter difference of a minus b: per-number
// counts of a reduced by counts of b, negative counts dropped, output in
// ascending order with remaining multiplicity. Option segment balances use
// this form because option numbers legitimately pass back and forth.
func CounterSubtract(a, b []uint64) []uint64 {
	counts := make(map[uint64]int, len(a))
	for _, n := range a {
		counts[n]++
	}
	for _, n := range b {
		counts[n]--
	}
	keys := make([]uint64, 0, len(counts))
	for n, c := range counts {
		if c > 0 {
			keys = append(keys, n)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]uint64, 0, len(keys))
	for _, n := range keys {
		for i := 0; i < counts[n]; i++ {
			out = append(out, n)
		}
	}
	return out
}

// Count returns the total number of certificate numbers covered by the
// list. Sizes come from the range boundaries; a million-number range is
// counted without being expanded.
func Count(l List) uint64 {
	var total uint64
	for _, s := range l {
		total += s.Count()
	}
	return total
}

// HumanReadable renders a list for display: comma-joined, free of the
// brackets and quotes of the serialized form, e.g. "1, 3-4, 6-9, 33".
func HumanReadable(l List) string {
	parts := make([]string, len(l))
	for i, s := range l {
		parts[i] = s.String()
	}
	return strings.Join(parts, ", ")
}

// Parse turns free-text segment input into the canonical deflated form.
// It accepts comma and/or dash separated tokens ("1,2,3-5, 8") as well as
// an already-serialized JSON list. Malformed tokens and inverted ranges
// fail with InvalidSegmentsError.
func Parse(input string) (List, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return List{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var l List
		if err := l.UnmarshalJSON([]byte(trimmed)); err != nil {
			return nil, err
		}
		return Normalize(l), nil
	}
	out := List{}
	for _, tok := range strings.Split(trimmed, ",") {
		if strings.TrimSpace(tok) == "" {
			continue
		}
		seg, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		out = append(out, seg)
	}
	return Normalize(out), nil
}

// ContainsAll reports whether every number covered by want is covered by
// have, ignoring multiplicity (presence check only).
func ContainsAll(have List, want List) (bool, List) {
	owned := make(map[uint64]struct{})
	for _, n := range Inflate(have) {
		owned[n] = struct{}{}
	}
	var missing []uint64
	for _, n := range Inflate(want) {
		if _, ok := owned[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) == 0 {
		return true, List{}
	}
	return false, Deflate(missing)
}

// Overlaps reports whether two lists cover any common number, and returns
// the overlap deflated.
func Overlaps(a, b List) (bool, List) {
	inA := make(map[uint64]struct{})
	for _, n := range Inflate(a) {
		inA[n] = struct{}{}
	}
	var common []uint64
	for _, n := range Inflate(b) {
		if _, ok := inA[n]; ok {
			common = append(common, n)
		}
	}
	if len(common) == 0 {
		return false, List{}
	}
	return true, Deflate(common)
}
