// Package testwasm assembles the synthetic DWARF sections the test suites
// run the instrumenter against: minimal but standard-conforming
// .debug_abbrev/.debug_info pairs and version-4 line programs, built
// byte by byte so every address and line is under the test's control.
package testwasm

import (
	"encoding/binary"
)

// LineRow is one row of a synthetic line program
type LineRow struct {
	Address uint64
	Line    int64
	Column  uint64
	File    uint64 // 1-based file index; 0 keeps the previous file
}

// FuncDIE is one DW_TAG_subprogram of a synthetic compile unit
type FuncDIE struct {
	Name     string
	DeclFile byte
	LowPC    uint32
	// HighPCOffset is emitted in the offset form (DW_FORM_data4)
	HighPCOffset uint32
}

// Unit describes one synthetic compile unit
type Unit struct {
	Name     string
	CompDir  string
	Files    []string // registered under directory 0 (the comp dir)
	Rows     []LineRow
	Funcs    []FuncDIE
}

func appendULEB(out []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
		}
		out = append(out, b)
		if v == 0 {
			return out
		}
	}
}

func appendSLEB(out []byte, v int64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		done := (v == 0 && b&0x40 == 0) || (v == -1 && b&0x40 != 0)
		if !done {
			b |= 0x80
		}
		out = append(out, b)
		if done {
			return out
		}
	}
}

func appendU16(out []byte, v uint16) []byte {
	return binary.LittleEndian.AppendUint16(out, v)
}

func appendU32(out []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(out, v)
}

func appendCString(out []byte, s string) []byte {
	out = append(out, s...)
	return append(out, 0)
}

// DWARF attribute/form/tag constants used by the builders
const (
	dwTagCompileUnit = 0x11
	dwTagSubprogram  = 0x2e

	dwAtName     = 0x03
	dwAtStmtList = 0x10
	dwAtLowPC    = 0x11
	dwAtHighPC   = 0x12
	dwAtCompDir  = 0x1b
	dwAtDeclFile = 0x3a

	dwFormAddr      = 0x01
	dwFormData4     = 0x06
	dwFormString    = 0x08
	dwFormData1     = 0x0b
	dwFormSecOffset = 0x17
)

// BuildAbbrev builds the abbreviation table shared by all synthetic units
func BuildAbbrev() []byte {
	var out []byte

	// abbrev 1: compile unit with children
	out = appendULEB(out, 1)
	out = appendULEB(out, dwTagCompileUnit)
	out = append(out, 1) // has children
	for _, pair := range [][2]uint64{
		{dwAtName, dwFormString},
		{dwAtCompDir, dwFormString},
		{dwAtStmtList, dwFormSecOffset},
	} {
		out = appendULEB(out, pair[0])
		out = appendULEB(out, pair[1])
	}
	out = append(out, 0, 0)

	// abbrev 2: subprogram, leaf
	out = appendULEB(out, 2)
	out = appendULEB(out, dwTagSubprogram)
	out = append(out, 0) // no children
	for _, pair := range [][2]uint64{
		{dwAtName, dwFormString},
		{dwAtDeclFile, dwFormData1},
		{dwAtLowPC, dwFormAddr},
		{dwAtHighPC, dwFormData4},
	} {
		out = appendULEB(out, pair[0])
		out = appendULEB(out, pair[1])
	}
	out = append(out, 0, 0)

	// table terminator
	return append(out, 0)
}

// BuildInfo builds a DWARF32 version 4 .debug_info section holding one
// compile unit whose line program sits at offset 0 of .debug_line.
func BuildInfo(unit Unit) []byte {
	var body []byte

	// compile unit DIE
	body = appendULEB(body, 1)
	body = appendCString(body, unit.Name)
	body = appendCString(body, unit.CompDir)
	body = appendU32(body, 0) // stmt_list

	for _, fn := range unit.Funcs {
		body = appendULEB(body, 2)
		body = appendCString(body, fn.Name)
		body = append(body, fn.DeclFile)
		body = appendU32(body, fn.LowPC)
		body = appendU32(body, fn.HighPCOffset)
	}
	body = appendULEB(body, 0) // end of children

	var header []byte
	header = appendU16(header, 4) // version
	header = appendU32(header, 0) // abbrev offset
	header = append(header, 4)    // address size

	var out []byte
	out = appendU32(out, uint32(len(header)+len(body)))
	out = append(out, header...)
	return append(out, body...)
}

// line program standard opcodes
const (
	lnsCopy        = 0x01
	lnsAdvancePC   = 0x02
	lnsAdvanceLine = 0x03
	lnsSetFile     = 0x04
	lnsSetColumn   = 0x05
	lneEndSequence = 0x01
	lneSetAddress  = 0x02
)

// BuildLine builds a DWARF32 version 4 .debug_line section whose rows are
// exactly the given ones, emitted with standard opcodes only.
func BuildLine(unit Unit) []byte {
	var header []byte
	header = append(header, 1)  // minimum instruction length
	header = append(header, 1)  // maximum operations per instruction
	header = append(header, 1)  // default is_stmt
	header = append(header, 0xfb) // line base (-5)
	header = append(header, 14) // line range
	header = append(header, 13) // opcode base
	header = append(header, 0, 1, 1, 1, 1, 0, 0, 0, 1, 0, 0, 1)
	header = append(header, 0) // no include directories
	for _, file := range unit.Files {
		header = appendCString(header, file)
		header = appendULEB(header, 0) // directory: the comp dir
		header = appendULEB(header, 0) // mtime
		header = appendULEB(header, 0) // length
	}
	header = append(header, 0) // end of file table

	var program []byte
	if len(unit.Rows) > 0 {
		// one sequence; every row re-seeds the address register so rows
		// may come in any order
		line := int64(1)
		file := uint64(1)
		for _, row := range unit.Rows {
			program = append(program, 0)
			program = appendULEB(program, 5)
			program = append(program, lneSetAddress)
			program = appendU32(program, uint32(row.Address))

			if row.File != 0 && row.File != file {
				program = append(program, lnsSetFile)
				program = appendULEB(program, row.File)
				file = row.File
			}
			if row.Line != line {
				program = append(program, lnsAdvanceLine)
				program = appendSLEB(program, row.Line-line)
				line = row.Line
			}
			program = append(program, lnsSetColumn)
			program = appendULEB(program, row.Column)
			program = append(program, lnsCopy)
		}
		program = append(program, lnsAdvancePC)
		program = appendULEB(program, 1)
		program = append(program, 0)
		program = appendULEB(program, 1)
		program = append(program, lneEndSequence)
	}

	var out []byte
	// unit length is filled at the end
	var tail []byte
	tail = appendU16(tail, 4) // version
	tail = appendU32(tail, uint32(len(header)))
	tail = append(tail, header...)
	tail = append(tail, program...)

	out = appendU32(out, uint32(len(tail)))
	return append(out, tail...)
}

// BuildSections builds the custom-section map of one synthetic unit,
// keyed the way the module carries them.
func BuildSections(unit Unit) map[string][]byte {
	return map[string][]byte{
		".debug_abbrev": BuildAbbrev(),
		".debug_info":   BuildInfo(unit),
		".debug_line":   BuildLine(unit),
	}
}
