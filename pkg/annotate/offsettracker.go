package annotate

import (
	"regexp"
	"strconv"

	"github.com/wasmcov/wasmcov/pkg/wat"
)

// OffsetTracker composes in-place edits of a text buffer so that every
// caller keeps addressing offsets of the *original* text. For any original
// location p, the current location is p plus the sum of the deltas of all
// edits recorded at original locations <= p.
//
// Deltas may be negative (a shorter literal replacing a longer one), but
// index bumps only grow or preserve length, so in practice the tracker
// holds non-negative deltas.
type OffsetTracker struct {
	offsets []trackedEdit
}

type trackedEdit struct {
	loc   int // original location
	delta int
}

// NewOffsetTracker creates an empty tracker
func NewOffsetTracker() *OffsetTracker {
	return &OffsetTracker{}
}

// findBreakIdx returns the index of the first recorded edit whose
// original location is strictly past loc, or len(offsets).
func (t *OffsetTracker) findBreakIdx(loc int) int {
	for idx := range t.offsets {
		if t.offsets[idx].loc > loc {
			return idx
		}
	}
	return len(t.offsets)
}

func (t *OffsetTracker) insertAt(idx int, edit trackedEdit) {
	t.offsets = append(t.offsets, trackedEdit{})
	copy(t.offsets[idx+1:], t.offsets[idx:])
	t.offsets[idx] = edit
}

// Translate maps an original offset to its location in the edited text
func (t *OffsetTracker) Translate(loc int) int {
	end := t.findBreakIdx(loc)
	shifted := loc
	for _, edit := range t.offsets[:end] {
		shifted += edit.delta
	}
	return shifted
}

// AddToString inserts msg so that the character originally at loc is
// shifted right by len(msg), and records the edit.
func (t *OffsetTracker) AddToString(s *string, loc int, msg string) {
	idx := t.findBreakIdx(loc)
	t.insertAt(idx, trackedEdit{loc: loc, delta: len(msg)})

	shifted := loc
	for _, edit := range t.offsets[:idx] {
		shifted += edit.delta
	}
	*s = (*s)[:shifted] + msg + (*s)[shifted:]
}

// IncrementIdx replaces the decimal literal of an index token with its
// value plus one, provided the value is at or above lowerBound (pass nil
// for no bound). Symbolic indices are left alone: they do not shift when
// the space is renumbered.
func (t *OffsetTracker) IncrementIdx(s *string, token wat.Token, lowerBound *uint64) {
	num, ok := token.Num()
	if !ok {
		return
	}
	if lowerBound != nil && num < *lowerBound {
		return
	}

	end := t.findBreakIdx(token.Off)
	shifted := token.Off
	for _, edit := range t.offsets[:end] {
		shifted += edit.delta
	}

	old := token.Text
	bumped := strconv.FormatUint(num+1, 10)
	*s = (*s)[:shifted] + bumped + (*s)[shifted+len(old):]

	t.insertAt(end, trackedEdit{loc: token.Off, delta: len(bumped) - len(old)})
}

// RegexEditFunc performs an edit given the match bounds in edited
// coordinates and returns the (original location, delta) pair to record.
type RegexEditFunc func(s *string, matchStart, matchEnd int) (int, int)

// ModifyWithRegexMatch finds the first match of re in the edited string
// at or past the translated position of start and hands it to the
// callback. The callback's returned edit is recorded. Returns false when
// the regex does not match.
func (t *OffsetTracker) ModifyWithRegexMatch(s *string, re *regexp.Regexp, start int, callback RegexEditFunc) bool {
	from := t.Translate(start)
	if from < 0 || from > len(*s) {
		return false
	}
	m := re.FindStringIndex((*s)[from:])
	if m == nil {
		return false
	}

	loc, delta := callback(s, from+m[0], from+m[1])

	idx := t.findBreakIdx(loc)
	t.insertAt(idx, trackedEdit{loc: loc, delta: delta})
	return true
}
