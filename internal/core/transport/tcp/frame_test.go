package tcp

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-commstack/pkg/interfaces"
)

func TestFrame_Data(t *testing.T) {
	var buf bytes.Buffer
	in := &frame{
		typ:     frameData,
		env:     interfaces.Envelope{Context: 0xdeadbeef, Kind: interfaces.KindCollective, Tag: -12345},
		source:  7,
		payload: []byte("payload"),
	}
	require.NoError(t, writeFrame(&buf, in))

	out, err := readFrame(&buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, in.env, out.env)
	assert.Equal(t, 7, out.source)
	assert.Equal(t, "payload", string(out.payload))
}

func TestFrame_HelloAndAbort(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, &frame{typ: frameHello, source: 2, jobID: "job"}))
	require.NoError(t, writeFrame(&buf, &frame{typ: frameAbort, source: 1, status: -3}))

	hello, err := readFrame(&buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, frameHello, hello.typ)
	assert.Equal(t, "job", hello.jobID)

	abort, err := readFrame(&buf, 1024)
	require.NoError(t, err)
	assert.Equal(t, frameAbort, abort.typ)
	assert.Equal(t, -3, abort.status)
}

func TestFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeFrame(&buf, &frame{typ: frameData, payload: make([]byte, 100)}))
	_, err := readFrame(&buf, 50)
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrame_Malformed(t *testing.T) {
	t.Run("截断的字段", func(t *testing.T) {
		rec := protowire.AppendTag(nil, fieldPayload, protowire.BytesType)
		rec = protowire.AppendVarint(rec, 10)
		assert.ErrorIs(t, readRaw(t, rec), ErrMalformedFrame)
	})

	t.Run("未知帧类型", func(t *testing.T) {
		rec := protowire.AppendTag(nil, fieldType, protowire.VarintType)
		rec = protowire.AppendVarint(rec, 99)
		assert.ErrorIs(t, readRaw(t, rec), ErrMalformedFrame)
	})

	t.Run("未知字段被跳过", func(t *testing.T) {
		rec := protowire.AppendTag(nil, 42, protowire.BytesType)
		rec = protowire.AppendString(rec, "future")
		rec = protowire.AppendTag(rec, fieldType, protowire.VarintType)
		rec = protowire.AppendVarint(rec, uint64(frameHello))
		assert.NoError(t, readRaw(t, rec))
	})
}

func readRaw(t *testing.T, rec []byte) error {
	t.Helper()
	var buf bytes.Buffer
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(rec)))
	buf.Write(hdr[:])
	buf.Write(rec)
	_, err := readFrame(&buf, 1024)
	return err
}
