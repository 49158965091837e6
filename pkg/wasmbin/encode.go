package wasmbin

// Section-level encoder, the inverse of the scanner: assembles core
// modules and components from raw section payloads. The instrumenter
// itself never encodes (re-encoding the edited text is the collaborator's
// job); this exists for tooling that repacks custom sections and for the
// synthetic fixtures the tests are built on.

// appendULEB128 appends the unsigned LEB128 encoding of v
func appendULEB128(out []byte, v uint64) []byte {
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

// appendSection appends a section header and payload
func appendSection(out []byte, id byte, payload []byte) []byte {
	out = append(out, id)
	out = appendULEB128(out, uint64(len(payload)))
	return append(out, payload...)
}

// CustomSection names a custom section payload for the encoder
type CustomSection struct {
	Name string
	Data []byte
}

// EncodeModule assembles a core module: the given custom sections, then a
// code section holding the raw payload (count varint included), in that
// order. A nil code payload omits the code section.
func EncodeModule(customs []CustomSection, code []byte) []byte {
	out := append([]byte{}, wasmMagic...)
	out = append(out, coreModuleVersion...)

	for _, c := range customs {
		var payload []byte
		payload = appendULEB128(payload, uint64(len(c.Name)))
		payload = append(payload, c.Name...)
		payload = append(payload, c.Data...)
		out = appendSection(out, modSecCustom, payload)
	}
	if code != nil {
		out = appendSection(out, modSecCode, code)
	}
	return out
}

// EncodeComponent assembles a component from encoded core modules
func EncodeComponent(modules ...[]byte) []byte {
	out := append([]byte{}, wasmMagic...)
	out = append(out, componentVersion...)

	for _, m := range modules {
		out = appendSection(out, secCoreModule, m)
	}
	return out
}
