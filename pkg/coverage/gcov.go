package coverage

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/wasmcov/wasmcov/pkg/debug"
	"github.com/wasmcov/wasmcov/pkg/utils"
)

// GCovFile builds the annotated listing of one source file: per line, a
// count column, the 1-based line number, and the source text.
type GCovFile struct {
	path     string
	fileIdx  int
	blocks   map[uint64]uint64 // line -> number of instrumented blocks
	counters *CounterSet
	// Source overrides the on-disk contents when the path does not exist
	Source []string
}

// NewGCovFile prepares the listing of the file at fileIdx of the debug
// bundle.
func NewGCovFile(data *debug.DebugData, fileIdx int, counters *CounterSet) *GCovFile {
	blocks := map[uint64]uint64{}
	for _, lb := range data.BlocksPerLine[fileIdx] {
		blocks[lb.Line] = lb.Count
	}
	return &GCovFile{
		path:     data.FileMap[fileIdx],
		fileIdx:  fileIdx,
		blocks:   blocks,
		counters: counters,
	}
}

// Path returns the source file path
func (g *GCovFile) Path() string {
	return g.path
}

// CountForLine returns the total hits of all blocks on a line, and
// whether the line is instrumented at all.
func (g *GCovFile) CountForLine(line uint64) (uint64, bool) {
	if _, instrumented := g.blocks[line]; !instrumented {
		return 0, false
	}
	hits := g.counters.LineHits(int32(g.fileIdx), line)
	var total uint64
	for _, count := range hits {
		total += count
	}
	return total, true
}

// partial reports whether at least one block on the line executed while
// at least one other went uncovered
func (g *GCovFile) partial(line uint64) bool {
	hits := g.counters.LineHits(int32(g.fileIdx), line)
	if len(hits) == 0 {
		return false
	}
	return uint64(len(hits)) < g.blocks[line]
}

// sourceLines returns the file contents, preferring the disk and falling
// back to the in-memory source
func (g *GCovFile) sourceLines() ([]string, error) {
	contents, err := os.ReadFile(g.path)
	if err == nil {
		return strings.Split(string(contents), "\n"), nil
	}
	if g.Source != nil {
		return g.Source, nil
	}
	return nil, err
}

// Render writes the annotated listing. Lines without any instrumented
// block show "-"; lines where some but not all blocks executed get a "*"
// marker. Line numbers are 1-based.
func (g *GCovFile) Render(colorize bool) (string, error) {
	lines, err := g.sourceLines()
	if err != nil {
		return "", err
	}

	type annotated struct {
		count string
		text  string
		hit   bool
		cold  bool
	}
	rows := make([]annotated, len(lines))

	for i, text := range lines {
		line := uint64(i + 1)
		row := annotated{count: "-", text: text}
		if total, instrumented := g.CountForLine(line); instrumented {
			row.count = fmt.Sprintf("%d", total)
			if g.partial(line) {
				row.count += "*"
			}
			row.hit = total > 0
			row.cold = total == 0
		}
		rows[i] = row
	}

	width := utils.Max(utils.Map(rows, func(r annotated) int { return len(r.count) }))

	covered := color.New(color.FgGreen)
	uncovered := color.New(color.FgRed)

	var out strings.Builder
	for i, row := range rows {
		entry := fmt.Sprintf("%-*s: %d:%s", width, row.count, i+1, row.text)
		switch {
		case colorize && row.cold:
			entry = uncovered.Sprint(entry)
		case colorize && row.hit:
			entry = covered.Sprint(entry)
		}
		out.WriteString(entry)
		out.WriteByte('\n')
	}
	return out.String(), nil
}
