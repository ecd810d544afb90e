// Package paramdir implements the parameter-exchange engine: a typed
// configuration tree addressed by (directory, index), served over
// pkg/bus the way levcan_param.c's proceedParam dispatches by payload
// size, plus the asynchronous client-side update queue that correlates
// inbound replies back to the caller who asked for them.
//
// Grounded on levcan_param.c (LC_GetParameterValue/LC_SetParameterValue,
// check_align) and the original LC_ParameterAdress_t/LC_ParameterDirectory_t
// layout, using pkg/wire's ValueType/ParamType/CheckAlign for the wire
// side of the same concerns.
package paramdir

import (
	"errors"
	"unsafe"

	"github.com/evonode/evcan/pkg/wire"
)

// ErrOutOfRange is returned by SetValue when the candidate value falls
// outside [Min, Max], mirroring LC_SetParameterValue's range check.
var ErrOutOfRange = errors.New("paramdir: value out of range")

// Parameter binds one wire-visible configuration entry to a concrete
// variable in memory via an unsafe pointer, the same representation
// LC_ParameterAdress_t uses. Ptr is nil for PT_dir entries, which carry
// no backing storage of their own.
type Parameter struct {
	Ptr        unsafe.Pointer
	ValueType  wire.ValueType
	ParamType  wire.ParamType
	Min        int32
	Max        int32
	Step       int32
	Decimal    uint8
	Name       string
	Formatting string
}

// Directory is one addressable group of parameters, the unit the wire
// protocol's "directory" byte selects.
type Directory struct {
	Name       string
	Parameters []Parameter
}

func (d *Directory) Size() int { return len(d.Parameters) }

// Table is the full parameter tree of one node: an ordered list of
// directories, indexed the way the wire protocol's directory byte does.
type Table struct {
	Directories []Directory
}

func (t *Table) Lookup(directory, index uint8) (*Parameter, bool) {
	if int(directory) >= len(t.Directories) {
		return nil, false
	}
	dir := &t.Directories[directory]
	if int(index) >= len(dir.Parameters) {
		return nil, false
	}
	return &dir.Parameters[index], true
}

// aligned is check_align inverted: it reports whether parameter.Ptr is
// safe to dereference as parameter.ValueType's native width.
func aligned(p *Parameter) bool {
	if p.Ptr == nil {
		return false
	}
	return wire.CheckAlign(p.Ptr, p.ValueType.Size())
}

// GetValue reads the live value behind p, scaled to an integer the same
// way LC_GetParameterValue does for float backed parameters. Returns 0
// for nil, reserved, or misaligned addresses, same as the original.
func GetValue(p *Parameter) int32 {
	if !aligned(p) {
		return 0
	}
	switch p.ValueType {
	case wire.TypeI8:
		return int32(*(*int8)(p.Ptr))
	case wire.TypeU8:
		return int32(*(*uint8)(p.Ptr))
	case wire.TypeI16:
		return int32(*(*int16)(p.Ptr))
	case wire.TypeU16:
		return int32(*(*uint16)(p.Ptr))
	case wire.TypeI32:
		return *(*int32)(p.Ptr)
	case wire.TypeF32:
		return wire.EncodeFloatParam(*(*float32)(p.Ptr), p.Decimal)
	default:
		return int32(*(*uint8)(p.Ptr))
	}
}

// RemoteValue caches what is locally known about a REMOTE node's
// parameter, the Go analogue of LC_ParameterValue_t: the client-side
// counterpart to Parameter's local address binding. It has no Ptr of its
// own; ParameterUpdateAsync just overwrites its fields in place when a
// reply for it arrives.
type RemoteValue struct {
	Index      uint8
	Value      int32
	Min        int32
	Max        int32
	Step       int32
	Decimal    uint8
	ParamType  wire.ParamType
	Name       string
	Formatting string
}

// SetValue writes value behind p after range-checking it against
// [Min, Max], mirroring LC_SetParameterValue. A misaligned or reserved
// address is a silent no-op returning nil, matching the original, which
// treats it the same way as a successful write of nothing.
func SetValue(p *Parameter, value int32) error {
	if value > p.Max || value < p.Min {
		return ErrOutOfRange
	}
	if !aligned(p) {
		return nil
	}
	switch p.ValueType {
	case wire.TypeI8, wire.TypeU8:
		*(*uint8)(p.Ptr) = uint8(value)
	case wire.TypeI16, wire.TypeU16:
		*(*uint16)(p.Ptr) = uint16(value)
	case wire.TypeI32:
		*(*uint32)(p.Ptr) = uint32(value)
	case wire.TypeF32:
		*(*float32)(p.Ptr) = wire.DecodeFloatParam(value, p.Decimal)
	}
	return nil
}
