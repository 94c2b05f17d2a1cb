package ts

import (
	"encoding/binary"
	"fmt"
)

const (
	tablePAT = 0x00
	tablePMT = 0x02
)

type program struct {
	Number uint16
	PMTPID uint16
	PCRPID uint16
	// Version is -1 until the PMT was seen.
	Version int
	Streams []elementary
}

type elementary struct {
	PID  uint16
	Type uint8
}

type patInfo struct {
	Seen      bool
	TSID      uint16
	Version   uint8
	NetworkID uint16
}

// section collects a PSI section that may span several packets.
type section struct {
	data []byte
}

func (s *section) want() int {
	if len(s.data) < 3 {
		return -1
	}
	return 3 + int(binary.BigEndian.Uint16(s.data[1:3])&0x0FFF)
}

// feedSection hands a PSI payload for pid to the section assembler and
// decodes each section it completes.
func (d *Decoder) feedSection(pid uint16, h header) {
	payload := h.Payload
	if h.PUSI {
		if len(payload) == 0 {
			return
		}
		ptr := int(payload[0])
		payload = payload[1:]
		if ptr > len(payload) {
			return
		}
		if s, ok := d.sections[pid]; ok {
			s.data = append(s.data, payload[:ptr]...)
			d.completeSection(pid, s)
		}
		payload = payload[ptr:]
		d.sections[pid] = &section{data: append([]byte(nil), payload...)}
		d.completeSection(pid, d.sections[pid])
		return
	}
	if s, ok := d.sections[pid]; ok {
		s.data = append(s.data, payload...)
		d.completeSection(pid, s)
	}
}

func (d *Decoder) completeSection(pid uint16, s *section) {
	n := s.want()
	if n < 0 || len(s.data) < n {
		if len(s.data) > 0 && s.data[0] == 0xFF {
			delete(d.sections, pid)
		}
		return
	}
	delete(d.sections, pid)
	if err := d.table(pid, s.data[:n]); err != nil {
		d.logf(2, "table decode failed", "pid", pid, "err", err)
		d.pid(pid).CRCErrors++
	}
}

func (d *Decoder) table(pid uint16, sec []byte) error {
	if len(sec) < 12 {
		return fmt.Errorf("section too short (%d bytes)", len(sec))
	}
	if crc32MPEG(sec) != 0 {
		return fmt.Errorf("crc mismatch on table 0x%02x", sec[0])
	}
	id := binary.BigEndian.Uint16(sec[3:5])
	version := (sec[5] >> 1) & 0x1F
	body := sec[8 : len(sec)-4]

	switch {
	case sec[0] == tablePAT && pid == PATPID:
		d.pat = patInfo{Seen: true, TSID: id, Version: version}
		for i := 0; i+4 <= len(body); i += 4 {
			num := binary.BigEndian.Uint16(body[i:])
			ppid := binary.BigEndian.Uint16(body[i+2:]) & 0x1FFF
			if num == 0 {
				d.pat.NetworkID = ppid
				continue
			}
			p, ok := d.programs[num]
			if !ok {
				p = &program{Number: num, Version: -1}
				d.programs[num] = p
			}
			p.PMTPID = ppid
			d.pmtPIDs[ppid] = num
			d.pid(ppid).Kind = "PMT"
		}
		d.logf(3, "PAT", "tsid", id, "version", version, "programs", len(d.programs))
	case sec[0] == tablePMT:
		p, ok := d.programs[id]
		if !ok {
			p = &program{Number: id, PMTPID: pid}
			d.programs[id] = p
		}
		if len(body) < 4 {
			return fmt.Errorf("pmt body too short")
		}
		p.Version = int(version)
		p.PCRPID = binary.BigEndian.Uint16(body[0:2]) & 0x1FFF
		info := int(binary.BigEndian.Uint16(body[2:4]) & 0x0FFF)
		es := body[min(4+info, len(body)):]
		p.Streams = p.Streams[:0]
		for len(es) >= 5 {
			e := elementary{Type: es[0], PID: binary.BigEndian.Uint16(es[1:3]) & 0x1FFF}
			p.Streams = append(p.Streams, e)
			d.pid(e.PID).Kind = streamTypeName(e.Type)
			n := 5 + int(binary.BigEndian.Uint16(es[3:5])&0x0FFF)
			if n > len(es) {
				break
			}
			es = es[n:]
		}
		d.logf(3, "PMT", "program", id, "version", version, "streams", len(p.Streams))
	}
	return nil
}

func streamTypeName(t uint8) string {
	switch t {
	case 0x01:
		return "MPEG-1 video"
	case 0x02:
		return "MPEG-2 video"
	case 0x03:
		return "MPEG-1 audio"
	case 0x04:
		return "MPEG-2 audio"
	case 0x06:
		return "private PES"
	case 0x0F:
		return "AAC audio"
	case 0x1B:
		return "H.264 video"
	case 0x24:
		return "H.265 video"
	case 0x81:
		return "AC-3 audio"
	case 0x86:
		return "SCTE-35"
	default:
		return fmt.Sprintf("stream type 0x%02x", t)
	}
}
