package debug

// CounterType tags what control-flow construct a counter sits at. The
// values cross the host FFI as plain i32s, so they are fixed: downstream
// code must accept the whole range even though the instrumenter currently
// emits only CounterBlock.
type CounterType int32

const (
	CounterBlock CounterType = iota
	CounterIf
	CounterElse
	CounterLoop

	numCounterTypes
)

// CounterTypeFromInt validates an i32 received over the FFI border
func CounterTypeFromInt(n int32) (CounterType, bool) {
	if n < 0 || n >= int32(numCounterTypes) {
		return 0, false
	}
	return CounterType(n), true
}

func (t CounterType) String() string {
	switch t {
	case CounterBlock:
		return "Block"
	case CounterIf:
		return "If"
	case CounterElse:
		return "Else"
	case CounterLoop:
		return "Loop"
	}
	return "Unknown"
}
