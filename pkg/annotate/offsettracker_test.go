package annotate

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmcov/wasmcov/pkg/wat"
)

func TestOffsetTracker_InsertionsComposeOutOfOrder(t *testing.T) {
	original := "abcdef"

	// applying the edits against original coordinates, in an order the
	// driver would never be allowed to rely on
	edited := original
	tracker := NewOffsetTracker()
	tracker.AddToString(&edited, 4, "YY")
	tracker.AddToString(&edited, 1, "XXX")
	tracker.AddToString(&edited, 4, "ZZ")

	// the same edits applied to the original in increasing order of
	// original location
	assert.Equal(t, "aXXXbcdYYZZef", edited)
}

func TestOffsetTracker_SameLocationKeepsInsertionOrder(t *testing.T) {
	edited := "ab"
	tracker := NewOffsetTracker()
	tracker.AddToString(&edited, 1, "1")
	tracker.AddToString(&edited, 1, "2")
	tracker.AddToString(&edited, 1, "3")

	assert.Equal(t, "a123b", edited)
}

func TestOffsetTracker_TranslateSumsPrecedingDeltas(t *testing.T) {
	edited := "abcdef"
	tracker := NewOffsetTracker()
	tracker.AddToString(&edited, 2, "..")
	tracker.AddToString(&edited, 5, "...")

	assert.Equal(t, 0, tracker.Translate(0))
	assert.Equal(t, 4, tracker.Translate(2))
	assert.Equal(t, 6, tracker.Translate(4))
	assert.Equal(t, 10, tracker.Translate(5))
}

func TestOffsetTracker_IncrementIdxGrowsLiteral(t *testing.T) {
	edited := "call 9 end"
	tracker := NewOffsetTracker()
	tracker.IncrementIdx(&edited, wat.Token{Off: 5, Text: "9"}, nil)

	assert.Equal(t, "call 10 end", edited)
	// the length delta shifts everything past the literal
	assert.Equal(t, 8, tracker.Translate(7))
}

func TestOffsetTracker_IncrementIdxHonorsLowerBound(t *testing.T) {
	bound := uint64(18)

	edited := "(type 17) (type 18)"
	tracker := NewOffsetTracker()
	tracker.IncrementIdx(&edited, wat.Token{Off: 6, Text: "17"}, &bound)
	tracker.IncrementIdx(&edited, wat.Token{Off: 16, Text: "18"}, &bound)

	assert.Equal(t, "(type 17) (type 19)", edited)
}

func TestOffsetTracker_IncrementIdxIgnoresSymbolicIndices(t *testing.T) {
	edited := "call $run"
	tracker := NewOffsetTracker()
	tracker.IncrementIdx(&edited, wat.Token{Off: 5, Text: "$run"}, nil)

	assert.Equal(t, "call $run", edited)
}

func TestOffsetTracker_InsertionsAndBumpsInterleave(t *testing.T) {
	original := "f 3 g 12"

	edited := original
	tracker := NewOffsetTracker()
	tracker.IncrementIdx(&edited, wat.Token{Off: 6, Text: "12"}, nil)
	tracker.AddToString(&edited, 0, "pre ")
	tracker.IncrementIdx(&edited, wat.Token{Off: 2, Text: "3"}, nil)

	assert.Equal(t, "pre f 4 g 13", edited)
}

func TestOffsetTracker_ModifyWithRegexMatchEditsPastEarlierInsertions(t *testing.T) {
	edited := "(instantiate 0) (instantiate 1)"
	tracker := NewOffsetTracker()
	tracker.AddToString(&edited, 0, "## ")

	re := regexp.MustCompile(`\(instantiate [0-9]+`)
	matched := tracker.ModifyWithRegexMatch(&edited, re, 16, func(s *string, start, end int) (int, int) {
		*s = (*s)[:end] + " (with)" + (*s)[end:]
		return end, len(" (with)")
	})

	require.True(t, matched)
	assert.Equal(t, "## (instantiate 0) (instantiate 1 (with))", edited)
}

func TestOffsetTracker_ModifyWithRegexMatchReportsNoMatch(t *testing.T) {
	edited := "nothing here"
	tracker := NewOffsetTracker()

	re := regexp.MustCompile(`\(instantiate [0-9]+`)
	matched := tracker.ModifyWithRegexMatch(&edited, re, 0, func(s *string, start, end int) (int, int) {
		t.Fatal("callback must not run without a match")
		return 0, 0
	})

	assert.False(t, matched)
}
