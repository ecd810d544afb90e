package paramdir

import (
	"testing"
	"unsafe"

	"github.com/evonode/evcan/pkg/wire"
	"github.com/stretchr/testify/assert"
)

func TestGetSetValueInt32RoundTrip(t *testing.T) {
	var backing int32 = 7
	p := &Parameter{Ptr: unsafe.Pointer(&backing), ValueType: wire.TypeI32, Min: -100, Max: 100}

	assert.Equal(t, int32(7), GetValue(p))
	assert.NoError(t, SetValue(p, 42))
	assert.Equal(t, int32(42), backing)
	assert.Equal(t, int32(42), GetValue(p))
}

func TestSetValueRejectsOutOfRange(t *testing.T) {
	var backing uint16 = 3
	p := &Parameter{Ptr: unsafe.Pointer(&backing), ValueType: wire.TypeU16, Min: 0, Max: 10}

	err := SetValue(p, 99)
	assert.ErrorIs(t, err, ErrOutOfRange)
	assert.Equal(t, uint16(3), backing) // unchanged
}

func TestGetValueFloatScaling(t *testing.T) {
	var backing float32 = 12.5
	p := &Parameter{Ptr: unsafe.Pointer(&backing), ValueType: wire.TypeF32, Min: -10000, Max: 10000, Decimal: 1}

	assert.Equal(t, int32(125), GetValue(p))
}

func TestSetValueFloatScaling(t *testing.T) {
	var backing float32
	p := &Parameter{Ptr: unsafe.Pointer(&backing), ValueType: wire.TypeF32, Min: -10000, Max: 10000, Decimal: 2}

	assert.NoError(t, SetValue(p, 350))
	assert.InDelta(t, 3.5, backing, 0.0001)
}

func TestGetValueNilPointerReturnsZero(t *testing.T) {
	p := &Parameter{ValueType: wire.TypeI32}
	assert.Equal(t, int32(0), GetValue(p))
}

func TestTableLookupOutOfRange(t *testing.T) {
	table := &Table{Directories: []Directory{{Parameters: make([]Parameter, 2)}}}
	_, ok := table.Lookup(0, 5)
	assert.False(t, ok)
	_, ok = table.Lookup(5, 0)
	assert.False(t, ok)
	_, ok = table.Lookup(0, 1)
	assert.True(t, ok)
}
