// Package radio implements the node-to-node frame codec: an 8-byte
// little-endian header and a fixed-width zero-padded payload. Only the
// codec lives here; modulation and the RF driver are out of scope, the
// encoded frames are published on the bus for a future TX path.
package radio

import (
	"encoding/binary"

	"swarmnode-go/errcode"
)

// MaxPayload caps the data carried by one frame.
const MaxPayload = 32

// Frames are fixed-width on the wire.
const (
	HeaderSize = 8
	FrameSize  = HeaderSize + MaxPayload
)

// Broadcast is the target id every node accepts.
const Broadcast uint16 = 0

// Control carries the frame's flag bits.
type Control uint8

const (
	AckRequest Control = 1 << iota
	AckResponse
	Emergency
	Retransmit
)

func (c Control) Has(f Control) bool { return c&f != 0 }

// Header routes and sequences one frame.
type Header struct {
	Sender     uint16
	Target     uint16
	Seq        uint16
	Control    Control
	PayloadLen uint8
}

// Frame is one radio packet: header plus padded payload.
type Frame struct {
	Header  Header
	Payload [MaxPayload]byte
}

// NewFrame builds a frame around payload. An oversized payload is an
// error, not a silent truncation.
func NewFrame(sender, target, seq uint16, payload []byte) (Frame, error) {
	if len(payload) > MaxPayload {
		return Frame{}, &errcode.E{C: errcode.InvalidParams, Op: "radio frame", Msg: "payload exceeds 32 bytes"}
	}
	f := Frame{Header: Header{
		Sender:     sender,
		Target:     target,
		Seq:        seq,
		PayloadLen: uint8(len(payload)),
	}}
	copy(f.Payload[:], payload)
	return f, nil
}

// Data returns the live payload bytes, padding excluded.
func (f *Frame) Data() []byte { return f.Payload[:f.Header.PayloadLen] }

// AppendTo serializes the frame onto buf and returns the result.
func (f *Frame) AppendTo(buf []byte) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, f.Header.Sender)
	buf = binary.LittleEndian.AppendUint16(buf, f.Header.Target)
	buf = binary.LittleEndian.AppendUint16(buf, f.Header.Seq)
	buf = append(buf, byte(f.Header.Control), f.Header.PayloadLen)
	return append(buf, f.Payload[:]...)
}

// Bytes serializes the frame into a fresh buffer of FrameSize bytes.
func (f *Frame) Bytes() []byte { return f.AppendTo(make([]byte, 0, FrameSize)) }

// Decode parses one frame from b.
func Decode(b []byte) (Frame, error) {
	if len(b) < FrameSize {
		return Frame{}, &errcode.E{C: errcode.InvalidParams, Op: "radio decode", Msg: "short frame"}
	}
	var f Frame
	f.Header.Sender = binary.LittleEndian.Uint16(b[0:2])
	f.Header.Target = binary.LittleEndian.Uint16(b[2:4])
	f.Header.Seq = binary.LittleEndian.Uint16(b[4:6])
	f.Header.Control = Control(b[6])
	f.Header.PayloadLen = b[7]
	if f.Header.PayloadLen > MaxPayload {
		return Frame{}, &errcode.E{C: errcode.InvalidParams, Op: "radio decode", Msg: "payload length out of range"}
	}
	copy(f.Payload[:], b[HeaderSize:FrameSize])
	return f, nil
}
