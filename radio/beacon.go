package radio

import (
	"encoding/binary"

	"swarmnode-go/errcode"
	"swarmnode-go/types"
)

// BeaconType tags a beacon payload.
const BeaconType byte = 0x01

const beaconLen = 13

// Beacon payload layout, little-endian:
//
//	[0]    type byte (BeaconType)
//	[1:3]  DeciC  int16
//	[3:5]  DeciRH int16
//	[5:13] TSMs   int64

// EncodeBeacon packs a sensor reading into a broadcast frame.
func EncodeBeacon(sender, seq uint16, r types.Reading) Frame {
	var p [beaconLen]byte
	p[0] = BeaconType
	binary.LittleEndian.PutUint16(p[1:3], uint16(r.DeciC))
	binary.LittleEndian.PutUint16(p[3:5], uint16(r.DeciRH))
	binary.LittleEndian.PutUint64(p[5:13], uint64(r.TSMs))
	f, _ := NewFrame(sender, Broadcast, seq, p[:])
	return f
}

// DecodeBeacon unpacks a beacon payload. The sensor identity is not
// carried on air; the returned reading's Sensor field is empty.
func DecodeBeacon(f *Frame) (types.Reading, error) {
	d := f.Data()
	if len(d) != beaconLen || d[0] != BeaconType {
		return types.Reading{}, &errcode.E{C: errcode.InvalidParams, Op: "beacon decode", Msg: "not a beacon payload"}
	}
	return types.Reading{
		DeciC:  int16(binary.LittleEndian.Uint16(d[1:3])),
		DeciRH: int16(binary.LittleEndian.Uint16(d[3:5])),
		TSMs:   int64(binary.LittleEndian.Uint64(d[5:13])),
	}, nil
}
