package wasmbin

import (
	"bytes"
	"errors"

	"github.com/wasmcov/wasmcov/pkg/utils"
)

var (
	ErrNotWasm      = errors.New("not a wasm binary")
	ErrNotComponent = errors.New("binary is a core module, not a component")
	ErrTruncated    = errors.New("truncated wasm binary")
)

var wasmMagic = []byte{0x00, 'a', 's', 'm'}

// binary version+layer words
var (
	coreModuleVersion = []byte{0x01, 0x00, 0x00, 0x00}
	componentVersion  = []byte{0x0d, 0x00, 0x01, 0x00}
)

// component-level section ids
const (
	secCustom     = 0
	secCoreModule = 1
)

// core-module-level section ids
const (
	modSecCustom = 0
	modSecCode   = 10
)

// ModuleInfo describes one inline core module of a component binary
type ModuleInfo struct {
	// Offset of the module's first byte (its magic) in the component
	Offset int
	// CodeSectionOffset is the absolute byte offset of the module's code
	// section payload in the component binary, or -1 when the module has
	// no code section
	CodeSectionOffset int
	// CustomSections holds the module's custom sections by name; DWARF
	// lives here as .debug_* entries
	CustomSections map[string][]byte
}

// decodeULEB128 decodes an unsigned LEB128 value, returning the value and
// the number of bytes consumed
func decodeULEB128(data []byte) (uint64, int, error) {
	var result uint64
	var shift uint

	for i := 0; i < len(data); i++ {
		b := data[i]
		result |= uint64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			return result, i + 1, nil
		}
		if shift >= 64 {
			break
		}
	}
	return 0, 0, utils.MakeError(ErrTruncated, "unterminated LEB128 value")
}

// ScanComponent walks a component binary and returns its inline core
// modules in source order, with their code-section offsets and custom
// sections. Only top-level modules are visited, matching the text
// scanner's view of the component.
func ScanComponent(input []byte) ([]ModuleInfo, error) {
	if len(input) < 8 || !bytes.Equal(input[:4], wasmMagic) {
		return nil, utils.MakeError(ErrNotWasm, "bad magic")
	}
	if bytes.Equal(input[4:8], coreModuleVersion) {
		return nil, utils.MakeError(ErrNotComponent, "core module header")
	}
	if !bytes.Equal(input[4:8], componentVersion) {
		return nil, utils.MakeError(ErrNotWasm, "unknown version/layer %x", input[4:8])
	}

	var modules []ModuleInfo
	pos := 8
	for pos < len(input) {
		id := input[pos]
		pos++
		size, n, err := decodeULEB128(input[pos:])
		if err != nil {
			return nil, err
		}
		pos += n
		if uint64(pos)+size > uint64(len(input)) {
			return nil, utils.MakeError(ErrTruncated, "section %d of size %d exceeds input", id, size)
		}
		payload := input[pos : pos+int(size)]

		if id == secCoreModule {
			info, err := scanModule(payload, pos)
			if err != nil {
				return nil, err
			}
			modules = append(modules, info)
		}
		pos += int(size)
	}
	return modules, nil
}

// scanModule walks one nested core module. base is the absolute offset of
// the module payload within the component, used to report absolute code
// section offsets.
func scanModule(input []byte, base int) (ModuleInfo, error) {
	info := ModuleInfo{
		Offset:            base,
		CodeSectionOffset: -1,
		CustomSections:    map[string][]byte{},
	}

	if len(input) < 8 || !bytes.Equal(input[:4], wasmMagic) {
		return info, utils.MakeError(ErrNotWasm, "nested module at offset %d has bad magic", base)
	}
	if !bytes.Equal(input[4:8], coreModuleVersion) {
		return info, utils.MakeError(ErrNotWasm, "nested module at offset %d has version %x", base, input[4:8])
	}

	pos := 8
	for pos < len(input) {
		id := input[pos]
		pos++
		size, n, err := decodeULEB128(input[pos:])
		if err != nil {
			return info, err
		}
		pos += n
		if uint64(pos)+size > uint64(len(input)) {
			return info, utils.MakeError(ErrTruncated, "module section %d of size %d exceeds module", id, size)
		}
		payload := input[pos : pos+int(size)]

		switch id {
		case modSecCode:
			info.CodeSectionOffset = base + pos
		case modSecCustom:
			name, data, err := splitCustomSection(payload)
			if err != nil {
				return info, err
			}
			info.CustomSections[name] = data
		}
		pos += int(size)
	}
	return info, nil
}

func splitCustomSection(payload []byte) (string, []byte, error) {
	nameLen, n, err := decodeULEB128(payload)
	if err != nil {
		return "", nil, err
	}
	if uint64(n)+nameLen > uint64(len(payload)) {
		return "", nil, utils.MakeError(ErrTruncated, "custom section name exceeds section")
	}
	name := string(payload[n : uint64(n)+nameLen])
	return name, payload[uint64(n)+nameLen:], nil
}
