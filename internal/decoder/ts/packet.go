package ts

import "encoding/binary"

const (
	PacketSize = 188
	SyncByte   = 0x47
	NullPID    = 0x1FFF
	PATPID     = 0x0000
)

type header struct {
	PID           uint16
	PUSI          bool // payload unit start
	TEI           bool // transport error
	Scrambling    uint8
	AdaptField    bool
	HasPayload    bool
	CC            uint8
	Discontinuity bool
	Payload       []byte
}

// parseHeader decodes one 188-byte packet starting with the sync byte.
func parseHeader(p []byte) header {
	h := header{
		TEI:        p[1]&0x80 != 0,
		PUSI:       p[1]&0x40 != 0,
		PID:        binary.BigEndian.Uint16(p[1:3]) & 0x1FFF,
		Scrambling: p[3] >> 6,
		AdaptField: p[3]&0x20 != 0,
		HasPayload: p[3]&0x10 != 0,
		CC:         p[3] & 0x0F,
	}
	off := 4
	if h.AdaptField {
		alen := int(p[4])
		if alen > 0 && 5 < len(p) {
			h.Discontinuity = p[5]&0x80 != 0
		}
		off += 1 + alen
	}
	if h.HasPayload && off < len(p) {
		h.Payload = p[off:]
	}
	return h
}

// crc32MPEG is the non-reflected CRC-32/MPEG-2 used by PSI sections. Run
// over a section including its CRC it yields zero.
func crc32MPEG(b []byte) uint32 {
	crc := uint32(0xFFFFFFFF)
	for _, v := range b {
		crc ^= uint32(v) << 24
		for i := 0; i < 8; i++ {
			if crc&0x80000000 != 0 {
				crc = crc<<1 ^ 0x04C11DB7
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}
