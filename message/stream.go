package message

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"
)

// Frame layout, little endian:
//
//	id      uint64
//	type    uint8
//	payload Double: float64; Vector2d: 2 x float64; Vector3d: 3 x float64;
//	        String: uint32 length + bytes; String8: uint8 length + bytes
const headerSize = 9

var (
	ErrTruncated   = errors.New("truncated message frame")
	ErrUnknownType = errors.New("unknown message data type")
)

// Decode splits a tick buffer into messages. Decoding stops at the first
// frame that is truncated or malformed; the messages decoded before it are
// returned along with the error describing why the rest was dropped.
func Decode(buf []byte) ([]Message, error) {
	msgs := make([]Message, 0, len(buf)/(headerSize+8))
	for offset := 0; offset < len(buf); {
		m, n, err := decodeOne(buf[offset:])
		if err != nil {
			return msgs, errors.Wrapf(err, "at offset %d", offset)
		}
		msgs = append(msgs, m)
		offset += n
	}
	return msgs, nil
}

func decodeOne(buf []byte) (Message, int, error) {
	if len(buf) < headerSize {
		return Message{}, 0, ErrTruncated
	}
	m := Message{
		ID:   ID(binary.LittleEndian.Uint64(buf)),
		Type: DataType(buf[8]),
	}
	if !m.Type.valid() {
		return Message{}, 0, errors.Wrapf(ErrUnknownType, "type %d", buf[8])
	}
	body := buf[headerSize:]

	switch m.Type {
	case TypeDouble, TypeVector2d, TypeVector3d:
		// numeric type values equal their component count
		count := int(m.Type)
		if len(body) < count*8 {
			return Message{}, 0, ErrTruncated
		}
		for i := 0; i < count; i++ {
			m.v[i] = math.Float64frombits(binary.LittleEndian.Uint64(body[i*8:]))
		}
		return m, headerSize + count*8, nil
	case TypeString:
		if len(body) < 4 {
			return Message{}, 0, ErrTruncated
		}
		// compare before converting, a large length must not wrap a 32-bit int
		n := binary.LittleEndian.Uint32(body)
		if uint64(n) > uint64(len(body)-4) {
			return Message{}, 0, ErrTruncated
		}
		l := int(n)
		m.str = string(body[4 : 4+l])
		return m, headerSize + 4 + l, nil
	default: // TypeString8
		if len(body) < 1 {
			return Message{}, 0, ErrTruncated
		}
		l := int(body[0])
		if len(body)-1 < l {
			return Message{}, 0, ErrTruncated
		}
		m.str = string(body[1 : 1+l])
		return m, headerSize + 1 + l, nil
	}
}

// Append encodes m onto buf. String8 payloads longer than 255 bytes are cut.
func Append(buf []byte, m Message) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, uint64(m.ID))
	buf = append(buf, byte(m.Type))
	switch m.Type {
	case TypeDouble, TypeVector2d, TypeVector3d:
		for i := 0; i < int(m.Type); i++ {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(m.v[i]))
		}
	case TypeString:
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(m.str)))
		buf = append(buf, m.str...)
	case TypeString8:
		s := m.str
		if len(s) > math.MaxUint8 {
			s = s[:math.MaxUint8]
		}
		buf = append(buf, byte(len(s)))
		buf = append(buf, s...)
	}
	return buf
}

// Encode is a convenience wrapper that appends every message to a new buffer.
func Encode(msgs ...Message) []byte {
	var buf []byte
	for _, m := range msgs {
		buf = Append(buf, m)
	}
	return buf
}
