package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"unsafe"
)

// ValueType tags the native storage type backing a ParameterAddress.
type ValueType uint8

const (
	TypeI8 ValueType = iota
	TypeU8
	TypeI16
	TypeU16
	TypeI32
	TypeF32
)

// Size returns the natural size, in bytes, of the value type — also its
// required alignment, per the spec's 2-byte/4-byte alignment rule.
func (t ValueType) Size() uintptr {
	switch t {
	case TypeI8, TypeU8:
		return 1
	case TypeI16, TypeU16:
		return 2
	case TypeI32, TypeF32:
		return 4
	default:
		return 1
	}
}

// ParamType tags the kind of a parameter in its low four bits and carries
// the no-init, req-val and read-only flags in bits 4, 5 and 6. The defining header for LC_ParamType_t was not part of the
// retrieved source; bit positions below are this port's own choice, not a
// literal translation.
type ParamType uint8

const (
	ParamInvalid ParamType = iota
	ParamDir
	ParamValue
	ParamEnum
	ParamBool
	ParamFunc

	paramTypeMask ParamType = 0x0F
	ParamReadOnly ParamType = 0x40
	ParamNoInit   ParamType = 0x10
	ParamReqVal   ParamType = 0x20
)

// Base strips the read-only/no-init/req-val flag bits, returning the bare
// parameter kind.
func (t ParamType) Base() ParamType { return t & paramTypeMask }

func (t ParamType) ReadOnly() bool { return t&ParamReadOnly != 0 }
func (t ParamType) NoInit() bool   { return t&ParamNoInit != 0 }
func (t ParamType) ReqVal() bool   { return t&ParamReqVal != 0 }

// Parameter wire record sizes.
const (
	DescriptorRequestSize = 2 // index, directory
	ValueRequestSize      = 3 // index, directory, 0
	StoreValueSize        = 8 // Value(i32), Directory, Index, 2 bytes trailing padding
	ValueReplySize        = StoreValueSize + 1
	DescriptorHeaderSize  = 20 // Value, Min, Max, Step, Decimal, Directory, Index, ParamType
)

// DescriptorRequest asks a remote node to describe one parameter.
type DescriptorRequest struct {
	Index     uint8
	Directory uint8
}

func EncodeDescriptorRequest(buf []byte, index, directory uint8) int {
	buf[0] = index
	buf[1] = directory
	return DescriptorRequestSize
}

func DecodeDescriptorRequest(payload []byte) (DescriptorRequest, error) {
	if len(payload) != DescriptorRequestSize {
		return DescriptorRequest{}, ErrLength
	}
	return DescriptorRequest{Index: payload[0], Directory: payload[1]}, nil
}

// ValueRequest asks a remote node for the current value of one parameter.
type ValueRequest struct {
	Index     uint8
	Directory uint8
}

func EncodeValueRequest(buf []byte, index, directory uint8) int {
	buf[0] = index
	buf[1] = directory
	buf[2] = 0
	return ValueRequestSize
}

func DecodeValueRequest(payload []byte) (ValueRequest, error) {
	if len(payload) != ValueRequestSize {
		return ValueRequest{}, ErrLength
	}
	return ValueRequest{Index: payload[0], Directory: payload[1]}, nil
}

// StoreValueRecord is both a write-request (exact StoreValueSize) and,
// with one trailing discriminator byte appended, a value-reply
// (ValueReplySize). Callers distinguish the two by payload length.
type StoreValueRecord struct {
	Value     int32
	Directory uint8
	Index     uint8
}

func EncodeStoreValue(buf []byte, value int32, directory, index uint8) int {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(value))
	buf[4] = directory
	buf[5] = index
	buf[6], buf[7] = 0, 0
	return StoreValueSize
}

// EncodeValueReply writes a value-reply record: a StoreValue body plus the
// trailing discriminator byte that marks it as a reply rather than a
// write request.
func EncodeValueReply(buf []byte, value int32, directory, index uint8) int {
	n := EncodeStoreValue(buf, value, directory, index)
	buf[n] = 1
	return n + 1
}

func DecodeStoreValue(payload []byte) (StoreValueRecord, error) {
	if len(payload) < StoreValueSize {
		return StoreValueRecord{}, ErrShort
	}
	return StoreValueRecord{
		Value:     int32(binary.LittleEndian.Uint32(payload[0:4])),
		Directory: payload[4],
		Index:     payload[5],
	}, nil
}

// DescriptorReply is the full metadata + value record for a parameter.
type DescriptorReply struct {
	Value      int32
	Min        int32
	Max        int32
	Step       int32
	Decimal    uint8
	Directory  uint8
	Index      uint8
	ParamType  ParamType
	Name       string
	Formatting string
}

// EncodeDescriptorReply writes buf and returns the written length. buf
// must have room for DescriptorHeaderSize + len(name) + 1 + len(formatting) + 1.
func EncodeDescriptorReply(buf []byte, r DescriptorReply) int {
	binary.LittleEndian.PutUint32(buf[0:4], uint32(r.Value))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(r.Min))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(r.Max))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(r.Step))
	buf[16] = r.Decimal
	buf[17] = r.Directory
	buf[18] = r.Index
	buf[19] = uint8(r.ParamType)
	offset := DescriptorHeaderSize
	n := copy(buf[offset:], r.Name)
	buf[offset+n] = 0
	offset += n + 1
	n = copy(buf[offset:], r.Formatting)
	buf[offset+n] = 0
	offset += n + 1
	return offset
}

// DecodeDescriptorReply enforces invariant 6: sizeof(header) + strlen(name)
// + 1 + strlen(fmt) + 1 <= len(payload).
func DecodeDescriptorReply(payload []byte) (DescriptorReply, error) {
	if len(payload) < DescriptorHeaderSize+2 {
		return DescriptorReply{}, ErrShort
	}
	r := DescriptorReply{
		Value:     int32(binary.LittleEndian.Uint32(payload[0:4])),
		Min:       int32(binary.LittleEndian.Uint32(payload[4:8])),
		Max:       int32(binary.LittleEndian.Uint32(payload[8:12])),
		Step:      int32(binary.LittleEndian.Uint32(payload[12:16])),
		Decimal:   payload[16],
		Directory: payload[17],
		Index:     payload[18],
		ParamType: ParamType(payload[19]),
	}
	rest := payload[DescriptorHeaderSize:]
	nameEnd := bytes.IndexByte(rest, 0)
	if nameEnd < 0 {
		return DescriptorReply{}, ErrUnterminated
	}
	fmtBytes := rest[nameEnd+1:]
	fmtEnd := bytes.IndexByte(fmtBytes, 0)
	if fmtEnd < 0 {
		return DescriptorReply{}, ErrUnterminated
	}
	r.Name = string(rest[:nameEnd])
	r.Formatting = string(fmtBytes[:fmtEnd])
	return r, nil
}

// CheckAlign implements the alignment rule for in-place parameter access:
// refuse addresses in the reserved sentinel region (<=255) or not
// naturally aligned for size.
func CheckAlign(ptr unsafe.Pointer, size uintptr) bool {
	addr := uintptr(ptr)
	if addr <= 255 {
		return false
	}
	if size > 1 && addr%size != 0 {
		return false
	}
	return true
}

// pow10 computes 10^decimal by repeated multiplication, matching the
// original's pow10i rather than math.Pow, so small-decimal float scaling
// stays exact.
func pow10(decimal uint8) float64 {
	result := 1.0
	for i := uint8(0); i < decimal; i++ {
		result *= 10
	}
	return result
}

// EncodeFloatParam converts a native float32 to the wire's scaled integer
// representation: int = round(float * 10^decimal).
func EncodeFloatParam(value float32, decimal uint8) int32 {
	return int32(math.Round(float64(value) * pow10(decimal)))
}

// DecodeFloatParam converts a wire scaled integer back to a native
// float32: float = int / 10^decimal.
func DecodeFloatParam(scaled int32, decimal uint8) float32 {
	return float32(float64(scaled) / pow10(decimal))
}
