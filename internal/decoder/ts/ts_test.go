package ts

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"tsprobe/internal/decoder"
)

func makePacket(pid uint16, cc uint8, pusi bool, payload []byte) []byte {
	p := make([]byte, PacketSize)
	for i := range p {
		p[i] = 0xFF
	}
	p[0] = SyncByte
	binary.BigEndian.PutUint16(p[1:3], pid&0x1FFF)
	if pusi {
		p[1] |= 0x40
	}
	p[3] = 0x10 | (cc & 0x0F)
	copy(p[4:], payload)
	return p
}

func withCRC(sec []byte) []byte {
	crc := crc32MPEG(sec)
	return binary.BigEndian.AppendUint32(sec, crc)
}

// patSection maps program -> PMT PID.
func patSection(tsid uint16, programs map[uint16]uint16) []byte {
	body := []byte{}
	for num, pid := range programs {
		body = binary.BigEndian.AppendUint16(body, num)
		body = binary.BigEndian.AppendUint16(body, 0xE000|pid)
	}
	sec := []byte{tablePAT, 0, 0}
	binary.BigEndian.PutUint16(sec[1:3], 0xB000|uint16(5+len(body)+4))
	sec = binary.BigEndian.AppendUint16(sec, tsid)
	sec = append(sec, 0xC1|3<<1, 0, 0)
	sec = append(sec, body...)
	return withCRC(sec)
}

func pmtSection(program, pcr uint16, streams []elementary) []byte {
	body := binary.BigEndian.AppendUint16(nil, 0xE000|pcr)
	body = append(body, 0xF0, 0x00)
	for _, e := range streams {
		body = append(body, e.Type)
		body = binary.BigEndian.AppendUint16(body, 0xE000|e.PID)
		body = append(body, 0xF0, 0x00)
	}
	sec := []byte{tablePMT, 0, 0}
	binary.BigEndian.PutUint16(sec[1:3], 0xB000|uint16(5+len(body)+4))
	sec = binary.BigEndian.AppendUint16(sec, program)
	sec = append(sec, 0xC1, 0, 0)
	sec = append(sec, body...)
	return withCRC(sec)
}

func psiPacket(pid uint16, cc uint8, sec []byte) []byte {
	return makePacket(pid, cc, true, append([]byte{0}, sec...))
}

func stream() []byte {
	var b bytes.Buffer
	b.Write(psiPacket(0, 0, patSection(7, map[uint16]uint16{1: 0x100})))
	b.Write(psiPacket(0x100, 0, pmtSection(1, 0x101, []elementary{{PID: 0x101, Type: 0x1B}, {PID: 0x102, Type: 0x0F}})))
	for i := 0; i < 10; i++ {
		b.Write(makePacket(0x101, uint8(i), i == 0, []byte{0, 0, 1, 0xE0}))
	}
	return b.Bytes()
}

func TestCRC32MPEG_CheckValue(t *testing.T) {
	if got := crc32MPEG([]byte("123456789")); got != 0x0376E6E7 {
		t.Fatalf("crc = %08x, want 0376e6e7", got)
	}
	if crc32MPEG(withCRC([]byte{1, 2, 3})) != 0 {
		t.Fatal("crc over data+crc must be zero")
	}
}

func TestDecoder_TablesAndCounters(t *testing.T) {
	d := New(Options{})
	if err := d.Process(stream(), time.Millisecond); err != nil {
		t.Fatalf("Process: %v", err)
	}

	s := d.Snapshot(decoder.Table)
	if s.PAT == nil || s.PAT.TSID != 7 || s.PAT.Version != 3 {
		t.Fatalf("unexpected PAT: %+v", s.PAT)
	}
	if len(s.Programs) != 1 {
		t.Fatalf("want 1 program, got %d", len(s.Programs))
	}
	p := s.Programs[0]
	if p.Number != 1 || p.PMTPID != 0x100 || p.PCRPID != 0x101 || len(p.Streams) != 2 {
		t.Fatalf("unexpected program: %+v", p)
	}
	if p.Streams[0].Name != "H.264 video" || p.Streams[1].Name != "AAC audio" {
		t.Fatalf("unexpected stream names: %+v", p.Streams)
	}

	bw := d.Snapshot(decoder.Bandwidth)
	if bw.Packets != 12 {
		t.Fatalf("want 12 packets, got %d", bw.Packets)
	}
	var video *StreamSummary
	for i := range bw.Streams {
		if bw.Streams[i].PID == 0x101 {
			video = &bw.Streams[i]
		}
	}
	if video == nil || video.Packets != 10 || video.CCErrors != 0 || video.Kind != "H.264 video" {
		t.Fatalf("unexpected video stats: %+v", video)
	}
}

func TestDecoder_PacketsSplitAcrossChunks(t *testing.T) {
	whole := New(Options{})
	split := New(Options{})
	data := stream()
	if err := whole.Process(data, 0); err != nil {
		t.Fatal(err)
	}
	for off := 0; off < len(data); off += 100 {
		end := min(off+100, len(data))
		if err := split.Process(data[off:end], 0); err != nil {
			t.Fatalf("chunk at %d: %v", off, err)
		}
	}
	if whole.packets != split.packets || split.packets != 12 {
		t.Fatalf("whole %d split %d", whole.packets, split.packets)
	}
	if len(split.programs) != 1 {
		t.Fatalf("split stream lost PSI: %d programs", len(split.programs))
	}
}

func TestDecoder_ContinuityErrors(t *testing.T) {
	d := New(Options{})
	var b bytes.Buffer
	for _, cc := range []uint8{0, 1, 2, 2, 5, 6} {
		b.Write(makePacket(0x200, cc, false, nil))
	}
	if err := d.Process(b.Bytes(), 0); err != nil {
		t.Fatal(err)
	}
	if got := d.pids[0x200].CCErrors; got != 1 {
		t.Fatalf("want 1 continuity error (duplicate tolerated), got %d", got)
	}
}

func TestDecoder_ResyncAndSyncLost(t *testing.T) {
	d := New(Options{})
	data := append([]byte{1, 2, 3}, makePacket(0x300, 0, false, nil)...)
	data = append(data, makePacket(0x300, 1, false, nil)...)
	if err := d.Process(data, 0); err != nil {
		t.Fatalf("short junk must be tolerated: %v", err)
	}
	if d.syncLosses != 1 || d.packets != 2 {
		t.Fatalf("losses %d packets %d", d.syncLosses, d.packets)
	}

	junk := bytes.Repeat([]byte{0x00}, maxJunk+1)
	if err := d.Process(junk, 0); !errors.Is(err, decoder.ErrSyncLost) {
		t.Fatalf("want ErrSyncLost, got %v", err)
	}
}

func TestDecoder_ResyncNeedsTwoAlignedSyncBytes(t *testing.T) {
	d := New(Options{})
	// a lone 0x47 inside junk is not a packet start
	junk := bytes.Repeat([]byte{0x00}, 300)
	junk[10] = SyncByte
	data := append(junk, makePacket(0x400, 0, false, nil)...)
	data = append(data, makePacket(0x400, 1, false, nil)...)
	if err := d.Process(data, 0); err != nil {
		t.Fatal(err)
	}
	if d.packets != 2 || d.pids[0x400] == nil || d.pids[0x400].Packets != 2 {
		t.Fatalf("packets %d, pids %v", d.packets, len(d.pids))
	}
}

func TestDecoder_RandomBytesFailWithoutCountingPackets(t *testing.T) {
	d := New(Options{})
	rng := rand.New(rand.NewPCG(1, 2))
	chunk := make([]byte, 7*PacketSize)
	var err error
	for i := 0; i < 2000 && err == nil; i++ {
		for j := range chunk {
			chunk[j] = byte(rng.UintN(256))
		}
		err = d.Process(chunk, 0)
	}
	if !errors.Is(err, decoder.ErrSyncLost) {
		t.Fatalf("want ErrSyncLost on random input, got %v", err)
	}
	if d.packets > 10 {
		t.Fatalf("counted %d packets from random bytes", d.packets)
	}
}

func TestDecoder_CorruptSectionCountsCRC(t *testing.T) {
	d := New(Options{})
	sec := patSection(1, map[uint16]uint16{1: 0x100})
	sec[len(sec)-1] ^= 0xFF
	if err := d.Process(psiPacket(0, 0, sec), 0); err != nil {
		t.Fatal(err)
	}
	if d.pat.Seen {
		t.Fatal("PAT with bad CRC must be ignored")
	}
	if d.pids[0].CRCErrors != 1 {
		t.Fatalf("want 1 crc error, got %d", d.pids[0].CRCErrors)
	}
}

func TestDecoder_SummarizeFormats(t *testing.T) {
	for _, format := range []decoder.Format{decoder.FormatText, decoder.FormatJSON, decoder.FormatYAML} {
		d := New(Options{Format: format, Label: "run-1"})
		data := stream()
		_ = d.Process(data[:PacketSize*6], 0)
		_ = d.Process(data[PacketSize*6:], time.Second)

		var out bytes.Buffer
		if err := d.Summarize(&out, decoder.Bandwidth); err != nil {
			t.Fatalf("%s: Summarize: %v", format, err)
		}
		var s Summary
		switch format {
		case decoder.FormatJSON:
			if err := json.Unmarshal(out.Bytes(), &s); err != nil {
				t.Fatalf("json: %v", err)
			}
		case decoder.FormatYAML:
			if err := yaml.Unmarshal(out.Bytes(), &s); err != nil {
				t.Fatalf("yaml: %v", err)
			}
		default:
			if !strings.Contains(out.String(), "# run-1") || !strings.Contains(out.String(), "0x0101") {
				t.Fatalf("text summary missing content:\n%s", out.String())
			}
			continue
		}
		if s.Label != "run-1" || s.Packets != 12 || s.Mode != "bandwidth" || s.DurationMS != 1000 {
			t.Fatalf("%s: unexpected summary %+v", format, s)
		}
	}
}

func TestDecoder_PacketAndWireHistoryBounded(t *testing.T) {
	d := New(Options{History: 4})
	for i := 0; i < 10; i++ {
		_ = d.Process(makePacket(0x400, uint8(i), false, nil), time.Duration(i)*time.Millisecond)
	}
	p := d.Snapshot(decoder.Packet)
	if len(p.Recent) != 4 || p.Recent[0].CC != 6 || p.Recent[3].CC != 9 {
		t.Fatalf("unexpected packet history: %+v", p.Recent)
	}
	w := d.Snapshot(decoder.Wire)
	if len(w.Wire) != 4 || w.Wire[0].Seq != 7 || w.Wire[1].DeltaUS != 1000 {
		t.Fatalf("unexpected wire history: %+v", w.Wire)
	}
}
