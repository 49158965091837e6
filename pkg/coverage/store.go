package coverage

import (
	"encoding/json"
	"errors"

	"github.com/wasmcov/wasmcov/pkg/debug"
	"github.com/wasmcov/wasmcov/pkg/utils"
)

var ErrCounters = errors.New("invalid counter dump")

// HitRecord is one invocation of the imported counter function, exactly
// the five i32 arguments the instrumented component passes across the
// host border.
type HitRecord struct {
	Idx     int32
	Type    int32
	FileIdx int32
	Line    int32
	Column  int32
}

// CounterSet accumulates counter hits per source position
type CounterSet struct {
	// hits per counter index
	byIdx map[int32]uint64
	// per file, per line, per column hit counts
	byPosition map[int32]map[uint64]map[uint64]uint64
}

// NewCounterSet creates an empty set
func NewCounterSet() *CounterSet {
	return &CounterSet{
		byIdx:      map[int32]uint64{},
		byPosition: map[int32]map[uint64]map[uint64]uint64{},
	}
}

// Record accumulates one hit
func (c *CounterSet) Record(hit HitRecord) error {
	if _, ok := debug.CounterTypeFromInt(hit.Type); !ok {
		return utils.MakeError(ErrCounters, "counter %d has invalid type %d", hit.Idx, hit.Type)
	}
	c.byIdx[hit.Idx] += 1

	lines, ok := c.byPosition[hit.FileIdx]
	if !ok {
		lines = map[uint64]map[uint64]uint64{}
		c.byPosition[hit.FileIdx] = lines
	}
	columns, ok := lines[uint64(hit.Line)]
	if !ok {
		columns = map[uint64]uint64{}
		lines[uint64(hit.Line)] = columns
	}
	columns[uint64(hit.Column)] += 1
	return nil
}

// Count returns the hit count of a counter index
func (c *CounterSet) Count(idx int32) uint64 {
	return c.byIdx[idx]
}

// LineHits returns, for a file and line, the per-column hit counts.
// Columns distinguish the blocks that share a line.
func (c *CounterSet) LineHits(fileIdx int32, line uint64) map[uint64]uint64 {
	lines, ok := c.byPosition[fileIdx]
	if !ok {
		return nil
	}
	return lines[line]
}

// LoadCounters parses a counter dump. Two layouts are accepted: an array
// of [idx, type, file_idx, line, column, count?] hit records (count
// defaults to 1), or a catalogue-order array of one-element [count]
// entries that is rejoined with the given counter list (the Counters of
// an annotation Result). With a nil list, [count] entries are rejected.
func LoadCounters(data []byte, counters []debug.DebugLineRecord) (*CounterSet, error) {
	set := NewCounterSet()

	var records [][]int64
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, utils.MakeError(ErrCounters, "%v", err)
	}

	for i, rec := range records {
		switch len(rec) {
		case 1:
			// plain count in catalogue order
			if i >= len(counters) {
				return nil, utils.MakeError(ErrCounters, "count %d is outside the counter catalogue", i)
			}
			dlr := counters[i]
			for n := int64(0); n < rec[0]; n++ {
				if err := set.Record(HitRecord{
					Idx:     int32(i),
					Type:    int32(debug.CounterBlock),
					FileIdx: int32(dlr.PathIdx),
					Line:    int32(dlr.Line),
					Column:  int32(dlr.Column),
				}); err != nil {
					return nil, err
				}
			}
		case 5, 6:
			hit := HitRecord{
				Idx:     int32(rec[0]),
				Type:    int32(rec[1]),
				FileIdx: int32(rec[2]),
				Line:    int32(rec[3]),
				Column:  int32(rec[4]),
			}
			count := int64(1)
			if len(rec) == 6 {
				count = rec[5]
			}
			for n := int64(0); n < count; n++ {
				if err := set.Record(hit); err != nil {
					return nil, err
				}
			}
		default:
			return nil, utils.MakeError(ErrCounters, "record %d has %d fields, want 1, 5 or 6", i, len(rec))
		}
	}
	return set, nil
}
