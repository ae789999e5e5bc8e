package main

import "encoding/binary"

// HeaderSize is the fixed length, in bytes, of a MediaHeader on the wire.
const HeaderSize = 22

// media_type values.
const (
	MediaTypeAudio = 0
	MediaTypeVideo = 1
)

// Flag bits packed into the header's flags byte.
const (
	FlagKeyframe      = 0x80
	FlagEndOfFrame    = 0x40
	FlagFEC           = 0x20
	FlagMarker        = 0x10
	FlagHasDepDesc    = 0x08
)

// MediaHeader is the 22-byte fixed header shared byte-for-byte by the SFU
// and the client media runtime. Every bit pattern is a valid header; parsing
// never fails on content, only on length.
type MediaHeader struct {
	Version    uint8
	MediaType  uint8
	CodecID    uint8
	Flags      uint8
	RoomID     uint32
	UserID     uint32
	Sequence   uint32
	Timestamp  uint32
	SpatialID  uint8
	TemporalID uint8
	DTX        bool
}

// ParseMediaHeader parses the first 22 bytes of data as a MediaHeader.
// It reports ok=false if data is shorter than HeaderSize; it never fails on
// content.
func ParseMediaHeader(data []byte) (h MediaHeader, ok bool) {
	if len(data) < HeaderSize {
		return MediaHeader{}, false
	}
	h.Version = data[0]
	h.MediaType = data[1]
	h.CodecID = data[2]
	h.Flags = data[3]
	h.RoomID = binary.BigEndian.Uint32(data[4:8])
	h.UserID = binary.BigEndian.Uint32(data[8:12])
	h.Sequence = binary.BigEndian.Uint32(data[12:16])
	h.Timestamp = binary.BigEndian.Uint32(data[16:20])
	h.SpatialID = data[20] >> 4
	h.TemporalID = data[20] & 0x0F
	h.DTX = data[21]&0x80 != 0
	return h, true
}

// Encode serializes h into exactly HeaderSize bytes.
func (h MediaHeader) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	buf[0] = h.Version
	buf[1] = h.MediaType
	buf[2] = h.CodecID
	buf[3] = h.Flags
	binary.BigEndian.PutUint32(buf[4:8], h.RoomID)
	binary.BigEndian.PutUint32(buf[8:12], h.UserID)
	binary.BigEndian.PutUint32(buf[12:16], h.Sequence)
	binary.BigEndian.PutUint32(buf[16:20], h.Timestamp)
	buf[20] = (h.SpatialID << 4) | (h.TemporalID & 0x0F)
	if h.DTX {
		buf[21] = 0x80
	}
	return buf
}

func (h MediaHeader) IsKeyframe() bool    { return h.Flags&FlagKeyframe != 0 }
func (h MediaHeader) IsEndOfFrame() bool  { return h.Flags&FlagEndOfFrame != 0 }
func (h MediaHeader) IsFEC() bool         { return h.Flags&FlagFEC != 0 }
func (h MediaHeader) IsMarker() bool      { return h.Flags&FlagMarker != 0 }
func (h MediaHeader) HasDepDesc() bool    { return h.Flags&FlagHasDepDesc != 0 }
