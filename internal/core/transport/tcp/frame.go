package tcp

import (
	"encoding/binary"
	"fmt"
	"io"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-commstack/pkg/interfaces"
)

// frameType 帧类型
type frameType uint64

const (
	frameData frameType = iota + 1
	frameHello
	frameAbort
)

// 记录字段号
const (
	fieldType    protowire.Number = 1
	fieldKind    protowire.Number = 2
	fieldContext protowire.Number = 3
	fieldTag     protowire.Number = 4
	fieldSource  protowire.Number = 5
	fieldJobID   protowire.Number = 6
	fieldStatus  protowire.Number = 7
	fieldPayload protowire.Number = 8
)

// frame 线上帧
type frame struct {
	typ     frameType
	env     interfaces.Envelope
	source  int
	jobID   string
	status  int
	payload []byte
}

// ============================================================================
//                              编解码
// ============================================================================

// marshal 编码为 protowire 记录
func (f *frame) marshal() []byte {
	b := make([]byte, 0, 32+len(f.jobID)+len(f.payload))
	b = protowire.AppendTag(b, fieldType, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.typ))
	b = protowire.AppendTag(b, fieldSource, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(f.source))

	switch f.typ {
	case frameData:
		b = protowire.AppendTag(b, fieldKind, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.env.Kind))
		b = protowire.AppendTag(b, fieldContext, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(f.env.Context))
		b = protowire.AppendTag(b, fieldTag, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(f.env.Tag))
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, f.payload)
	case frameHello:
		b = protowire.AppendTag(b, fieldJobID, protowire.BytesType)
		b = protowire.AppendString(b, f.jobID)
	case frameAbort:
		b = protowire.AppendTag(b, fieldStatus, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(f.status)))
	}
	return b
}

// unmarshal 解析 protowire 记录，未知字段跳过
func (f *frame) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrMalformedFrame, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case typ == protowire.VarintType && num != fieldJobID && num != fieldPayload:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
			f.setVarint(num, v)
		case typ == protowire.BytesType && (num == fieldJobID || num == fieldPayload):
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
			if num == fieldJobID {
				f.jobID = string(v)
			} else {
				f.payload = v
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: field %d: %v", ErrMalformedFrame, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if f.typ < frameData || f.typ > frameAbort {
		return fmt.Errorf("%w: unknown frame type %d", ErrMalformedFrame, f.typ)
	}
	return nil
}

func (f *frame) setVarint(num protowire.Number, v uint64) {
	switch num {
	case fieldType:
		f.typ = frameType(v)
	case fieldKind:
		f.env.Kind = interfaces.EnvelopeKind(v)
	case fieldContext:
		f.env.Context = uint32(v)
	case fieldTag:
		f.env.Tag = protowire.DecodeZigZag(v)
	case fieldSource:
		f.source = int(v)
	case fieldStatus:
		f.status = int(protowire.DecodeZigZag(v))
	}
}

// ============================================================================
//                              读写
// ============================================================================

// writeFrame 写入一帧（长度前缀 + 记录）
func writeFrame(w io.Writer, f *frame) error {
	rec := f.marshal()
	buf := make([]byte, 4+len(rec))
	binary.BigEndian.PutUint32(buf, uint32(len(rec)))
	copy(buf[4:], rec)
	_, err := w.Write(buf)
	return err
}

// readFrame 读取一帧
func readFrame(r io.Reader, maxBytes int) (*frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(hdr[:])

	// 检查帧长度，防止内存耗尽
	if uint64(length) > uint64(maxBytes) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxBytes)
	}

	rec := make([]byte, length)
	if _, err := io.ReadFull(r, rec); err != nil {
		return nil, err
	}
	f := &frame{}
	if err := f.unmarshal(rec); err != nil {
		return nil, err
	}
	return f, nil
}
