package wire

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenRoundTrip(t *testing.T) {
	buf := make([]byte, 64)
	n := EncodeOpen(buf, 0x01, "config.bin")
	record, err := DecodeOpen(buf[:n])
	require.NoError(t, err)
	assert.EqualValues(t, 0x01, record.Mode)
	assert.Equal(t, "config.bin", record.Name)
}

func TestReadRoundTrip(t *testing.T) {
	buf := make([]byte, ReadHeaderSize)
	n := EncodeRead(buf, 52, 100)
	require.Equal(t, ReadHeaderSize, n)
	record, err := DecodeRead(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 52, record.ToRead)
	assert.EqualValues(t, 100, record.Position)
}

func TestWriteRoundTripCarriesData(t *testing.T) {
	buf := make([]byte, 64)
	n := EncodeWrite(buf, 10, []byte("HELLO"))
	record, err := DecodeWrite(buf[:n])
	require.NoError(t, err)
	assert.EqualValues(t, 5, record.ToWrite)
	assert.EqualValues(t, 10, record.Position)
	assert.Equal(t, []byte("HELLO"), record.Data)
}

func TestWriteRejectsInconsistentLength(t *testing.T) {
	buf := make([]byte, 64)
	n := EncodeWrite(buf, 0, []byte("HELLO"))
	_, err := DecodeWrite(buf[:n-1])
	assert.ErrorIs(t, err, ErrLength)
}

func TestLseekRoundTripUsesFullRecordSize(t *testing.T) {
	buf := make([]byte, LseekHeaderSize)
	n := EncodeLseek(buf, 0xdeadbeef)
	require.Equal(t, LseekHeaderSize, n)
	record, err := DecodeLseek(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 0xdeadbeef, record.Position)
}

func TestCloseAndAckSizeAreOperationOnly(t *testing.T) {
	buf := make([]byte, CloseHeaderSize)
	EncodeClose(buf)
	require.NoError(t, DecodeClose(buf))

	EncodeAckSize(buf)
	require.NoError(t, DecodeAckSize(buf))
	assert.Error(t, DecodeClose(buf))
}

func TestAckRoundTrip(t *testing.T) {
	buf := make([]byte, AckHeaderSize)
	EncodeAck(buf, 0, 1234)
	record, err := DecodeAck(buf)
	require.NoError(t, err)
	assert.EqualValues(t, 0, record.Error)
	assert.EqualValues(t, 1234, record.Position)
}

func TestAckRejectsWrongLength(t *testing.T) {
	buf := make([]byte, AckHeaderSize+1)
	EncodeAck(buf, 0, 0)
	_, err := DecodeAck(buf)
	assert.ErrorIs(t, err, ErrLength)
}

func TestDataRoundTripScenarioA(t *testing.T) {
	// ObjectDataSize=64, sizeof(DataHeader)=12, server holds "HELLO" at position 0.
	buf := make([]byte, 64)
	n := EncodeData(buf, 0, 0, []byte("HELLO"))
	require.Equal(t, DataHeaderSize+5, n)
	record, err := DecodeData(buf[:n])
	require.NoError(t, err)
	assert.EqualValues(t, 0, record.Error)
	assert.EqualValues(t, 0, record.Position)
	assert.EqualValues(t, 5, record.Total)
	assert.Equal(t, []byte("HELLO"), record.Data)
}

func TestOpenRejectsUnterminatedName(t *testing.T) {
	buf := make([]byte, OpenHeaderSize+3)
	putOp(buf, FileOpOpen)
	binary.LittleEndian.PutUint16(buf[2:4], 0)
	buf[4], buf[5], buf[6] = 'a', 'b', 'c' // no trailing NUL
	_, err := DecodeOpen(buf)
	assert.ErrorIs(t, err, ErrUnterminated)
}
