package coverage

// LCov tracefile output. One SF block per source file whose canonical
// path exists on disk, with the standard record sequence:
//
//   TN / SF / FN / FNDA / FNF / FNH / BRDA / BRF / BRH / DA / LH / LF /
//   end_of_record
//
// Branch records are part of the layout but never emitted: the
// instrumenter records block entries only.

import (
	"fmt"
	"os"
	"strings"

	"github.com/wasmcov/wasmcov/pkg/debug"
)

type funcDef struct {
	startLine uint64
	endLine   *uint64
	name      string
}

type funcExec struct {
	count   uint64
	funcIdx int
}

type lineExec struct {
	line  uint64
	count uint64
}

// SourceFile is one SF block of a tracefile
type SourceFile struct {
	path      string
	functions []funcDef
	funcExecs []funcExec
	branches  []debug.BranchRecord
	codeLines []lineExec
}

// NewSourceFile builds the SF block of one source file from its counter
// listing and its per-file debug info.
func NewSourceFile(listing *GCovFile, sdi *debug.SourceDebugInfo) *SourceFile {
	sf := &SourceFile{path: listing.Path()}

	if sdi != nil {
		for _, fn := range sdi.Functions {
			sf.functions = append(sf.functions, funcDef{
				startLine: fn.StartLine,
				endLine:   fn.EndLine,
				name:      fn.Name,
			})
		}
		sf.branches = sdi.Branches
	}

	for idx, fn := range sf.functions {
		count, instrumented := listing.CountForLine(fn.startLine)
		if !instrumented {
			continue
		}
		sf.funcExecs = append(sf.funcExecs, funcExec{count: count, funcIdx: idx})
	}

	var lastLine uint64
	for _, fn := range sf.functions {
		if fn.endLine != nil && *fn.endLine > lastLine {
			lastLine = *fn.endLine
		}
		if fn.startLine > lastLine {
			lastLine = fn.startLine
		}
	}
	for line := uint64(1); line <= lastLine; line++ {
		if count, instrumented := listing.CountForLine(line); instrumented {
			sf.codeLines = append(sf.codeLines, lineExec{line: line, count: count})
		}
	}

	return sf
}

// Exists reports whether the source path exists on disk; tracefiles omit
// files that do not.
func (sf *SourceFile) Exists() bool {
	_, err := os.Stat(sf.path)
	return err == nil
}

func (sf *SourceFile) render(out *strings.Builder) {
	fmt.Fprintf(out, "SF:%s\n", sf.path)
	for _, fn := range sf.functions {
		fmt.Fprintf(out, "FN:%d,%s\n", fn.startLine, fn.name)
	}
	for _, exec := range sf.funcExecs {
		fmt.Fprintf(out, "FNDA:%d,%s\n", exec.count, sf.functions[exec.funcIdx].name)
	}
	fmt.Fprintf(out, "FNF:%d\n", len(sf.functions))
	fmt.Fprintf(out, "FNH:%d\n", len(sf.funcExecs))

	for _, branch := range sf.branches {
		fmt.Fprintf(out, "BRDA:%d,%d,%d,-\n", branch.Line, branch.BlockIdx, 0)
	}
	fmt.Fprintf(out, "BRF:%d\n", len(sf.branches))
	fmt.Fprintf(out, "BRH:%d\n", 0)

	hit := 0
	for _, da := range sf.codeLines {
		fmt.Fprintf(out, "DA:%d,%d\n", da.line, da.count)
		if da.count > 0 {
			hit++
		}
	}
	fmt.Fprintf(out, "LH:%d\n", hit)
	fmt.Fprintf(out, "LF:%d\n", len(sf.codeLines))
	out.WriteString("end_of_record\n")
}

// TraceFile is a whole LCov tracefile
type TraceFile struct {
	testName string
	files    []*SourceFile
}

// NewTraceFile assembles a tracefile from an optional test name and the
// per-file blocks
func NewTraceFile(testName string, files []*SourceFile) *TraceFile {
	return &TraceFile{testName: testName, files: files}
}

// Render produces the tracefile contents, omitting files that are not
// present on disk
func (t *TraceFile) Render() string {
	var out strings.Builder
	if t.testName != "" {
		fmt.Fprintf(&out, "TN:%s\n", t.testName)
	}
	for _, sf := range t.files {
		if sf.Exists() {
			sf.render(&out)
		}
	}
	return out.String()
}
