package client

import "encoding/binary"

// headerSize is the fixed wire header size shared by the SFU and every
// client, exactly as in the server's header.go.
const headerSize = 22

const (
	mediaTypeAudio uint8 = 0
	mediaTypeVideo uint8 = 1

	codecIDOpus uint8 = 1
)

const flagEndOfFrame uint8 = 0x40

// mediaHeader is the client-side counterpart of the server's MediaHeader: the
// same 22-byte big-endian layout, encoded for outbound frames and parsed for
// inbound ones.
type mediaHeader struct {
	Version   uint8
	MediaType uint8
	CodecID   uint8
	Flags     uint8
	RoomID    uint32
	UserID    uint32
	Sequence  uint32
	Timestamp uint32
	Spatial   uint8
	Temporal  uint8
	DTX       bool
}

// encode serializes h into the fixed 22-byte wire layout.
func (h mediaHeader) encode() [headerSize]byte {
	var buf [headerSize]byte
	buf[0] = h.Version
	buf[1] = h.MediaType
	buf[2] = h.CodecID
	buf[3] = h.Flags
	binary.BigEndian.PutUint32(buf[4:8], h.RoomID)
	binary.BigEndian.PutUint32(buf[8:12], h.UserID)
	binary.BigEndian.PutUint32(buf[12:16], h.Sequence)
	binary.BigEndian.PutUint32(buf[16:20], h.Timestamp)
	buf[20] = (h.Spatial << 4) | (h.Temporal & 0x0F)
	if h.DTX {
		buf[21] = 0x80
	}
	return buf
}

// parseMediaHeader reads the fixed 22-byte header from the front of data.
// Returns ok=false if data is shorter than headerSize.
func parseMediaHeader(data []byte) (mediaHeader, bool) {
	if len(data) < headerSize {
		return mediaHeader{}, false
	}
	var h mediaHeader
	h.Version = data[0]
	h.MediaType = data[1]
	h.CodecID = data[2]
	h.Flags = data[3]
	h.RoomID = binary.BigEndian.Uint32(data[4:8])
	h.UserID = binary.BigEndian.Uint32(data[8:12])
	h.Sequence = binary.BigEndian.Uint32(data[12:16])
	h.Timestamp = binary.BigEndian.Uint32(data[16:20])
	h.Spatial = data[20] >> 4
	h.Temporal = data[20] & 0x0F
	h.DTX = data[21]&0x80 != 0
	return h, true
}

// payload returns the bytes of data following the fixed header.
func payload(data []byte) []byte {
	if len(data) < headerSize {
		return nil
	}
	return data[headerSize:]
}
