package packet

import (
	"encoding/binary"
	"errors"
	"unicode/utf8"
)

const (
	statusData     byte = 0x01
	statusLast     byte = 0x02
	statusReserved byte = 0xFC

	// MinHeaderLen is the shortest valid frame (status, file id, at least one name byte).
	MinHeaderLen = 3
	// MinDataLen is the shortest valid Data frame (status, file id, packet number).
	MinDataLen = 4
)

var (
	// ErrTooShort indicates the buffer is below the minimum frame size.
	ErrTooShort = errors.New("packet too short")
	// ErrInvalidFormat indicates reserved status bits are set or the file name is not UTF-8.
	ErrInvalidFormat = errors.New("invalid packet format")
)

// Packet is either a Header or a Data frame.
type Packet interface {
	// FileID returns the transfer the packet belongs to.
	FileID() byte
	// Marshal encodes the packet in wire format.
	Marshal() ([]byte, error)
	isPacket()
}

// Header announces the name of a file transfer.
type Header struct {
	ID   byte
	Name string
}

// Data carries one fragment of file content.
type Data struct {
	ID      byte
	Number  uint16
	Last    bool
	Payload []byte
}

func (h Header) FileID() byte { return h.ID }
func (d Data) FileID() byte   { return d.ID }

func (Header) isPacket() {}
func (Data) isPacket()   {}

// Decode parses one datagram. The payload of a Data packet is copied, so buf
// may be reused once Decode returns.
func Decode(buf []byte) (Packet, error) {
	if len(buf) < MinHeaderLen {
		return nil, ErrTooShort
	}
	status := buf[0]
	isData := status&statusData != 0
	if isData && len(buf) < MinDataLen {
		return nil, ErrTooShort
	}
	if status&statusReserved != 0 {
		return nil, ErrInvalidFormat
	}
	if !isData {
		name := buf[2:]
		if !utf8.Valid(name) {
			return nil, ErrInvalidFormat
		}
		return Header{ID: buf[1], Name: string(name)}, nil
	}
	payload := make([]byte, len(buf)-MinDataLen)
	copy(payload, buf[MinDataLen:])
	return Data{
		ID:      buf[1],
		Number:  binary.BigEndian.Uint16(buf[2:4]),
		Last:    status&statusLast != 0,
		Payload: payload,
	}, nil
}

// AppendHeader appends the wire encoding of a Header frame to dst.
func AppendHeader(dst []byte, id byte, name string) ([]byte, error) {
	if !utf8.ValidString(name) {
		return dst, ErrInvalidFormat
	}
	dst = append(dst, 0, id)
	return append(dst, name...), nil
}

// AppendData appends the wire encoding of a Data frame to dst.
func AppendData(dst []byte, id byte, number uint16, last bool, payload []byte) []byte {
	status := statusData
	if last {
		status |= statusLast
	}
	dst = append(dst, status, id)
	dst = binary.BigEndian.AppendUint16(dst, number)
	return append(dst, payload...)
}

func (h Header) Marshal() ([]byte, error) {
	return AppendHeader(make([]byte, 0, 2+len(h.Name)), h.ID, h.Name)
}

func (d Data) Marshal() ([]byte, error) {
	return AppendData(make([]byte, 0, MinDataLen+len(d.Payload)), d.ID, d.Number, d.Last, d.Payload), nil
}
