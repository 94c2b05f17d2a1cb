// Package ts is the bundled MPEG transport stream analyzer behind the
// decoder.Decoder interface. It follows 188-byte packets across chunk
// boundaries, keeps per-PID counters, decodes PAT and PMT, and renders the
// summaries the pipeline snapshots.
package ts

import (
	"bytes"
	"io"
	"log/slog"
	"time"

	"tsprobe/internal/decoder"
)

// maxJunk is how many bytes without a sync byte are tolerated before the
// stream is declared unreadable.
const maxJunk = 8 * PacketSize

type Options struct {
	// Level is the decoder verbosity: 0 none, 1 error, 2 warn, 3 debug.
	Level  int
	Logger *slog.Logger
	Format decoder.Format
	// Label is printed in every summary header.
	Label string
	// History bounds the packet and wire rings. Default 32.
	History int
}

type pidStats struct {
	PID       uint16
	Kind      string
	Packets   uint64
	CCErrors  uint64
	TEIErrors uint64
	CRCErrors uint64
	Scrambled bool
	First     time.Duration
	Last      time.Duration
	lastCC    int
}

type packetRecord struct {
	At         time.Duration
	PID        uint16
	PUSI       bool
	TEI        bool
	Scrambling uint8
	AdaptField bool
	HasPayload bool
	CC         uint8
}

type arrival struct {
	At  time.Duration
	PID uint16
	Seq uint64
}

type Decoder struct {
	log    *slog.Logger
	level  int
	format decoder.Format
	label  string

	carry  []byte
	joined []byte
	junk   int
	// resync is set from a sync loss until two packets line up again.
	resync bool

	pids     map[uint16]*pidStats
	sections map[uint16]*section
	programs map[uint16]*program
	pmtPIDs  map[uint16]uint16
	pat      patInfo

	recent *ring[packetRecord]
	wire   *ring[arrival]

	packets     uint64
	syncLosses  uint64
	first, last time.Duration
}

var _ decoder.Decoder = (*Decoder)(nil)

func New(opts Options) *Decoder {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Format == "" {
		opts.Format = decoder.FormatText
	}
	if opts.History <= 0 {
		opts.History = 32
	}
	return &Decoder{
		log:      opts.Logger.With("component", "ts-decoder"),
		level:    opts.Level,
		format:   opts.Format,
		label:    opts.Label,
		carry:    make([]byte, 0, PacketSize),
		pids:     make(map[uint16]*pidStats),
		sections: make(map[uint16]*section),
		programs: make(map[uint16]*program),
		pmtPIDs:  make(map[uint16]uint16),
		recent:   newRing[packetRecord](opts.History),
		wire:     newRing[arrival](opts.History),
	}
}

// Process implements decoder.Decoder. Bytes that do not complete a packet
// are kept for the next call. After sync is lost a candidate packet is only
// accepted when the next packet starts with a sync byte too.
func (d *Decoder) Process(data []byte, ts time.Duration) error {
	buf := data
	if len(d.carry) > 0 {
		d.joined = append(append(d.joined[:0], d.carry...), data...)
		d.carry = d.carry[:0]
		buf = d.joined
	}

	for len(buf) > 0 {
		if buf[0] != SyncByte {
			if !d.resync {
				d.resync = true
				d.syncLosses++
				d.logf(2, "sync lost", "at", ts)
			}
			i := bytes.IndexByte(buf, SyncByte)
			if i < 0 {
				d.junk += len(buf)
				break
			}
			d.junk += i
			buf = buf[i:]
			if d.junk > maxJunk {
				break
			}
			continue
		}
		if d.resync {
			if len(buf) <= PacketSize {
				d.carry = append(d.carry, buf...)
				break
			}
			if buf[PacketSize] != SyncByte {
				d.junk++
				buf = buf[1:]
				if d.junk > maxJunk {
					break
				}
				continue
			}
			d.resync = false
		}
		if len(buf) < PacketSize {
			d.carry = append(d.carry, buf...)
			break
		}
		d.junk = 0
		d.packet(buf[:PacketSize], ts)
		buf = buf[PacketSize:]
	}

	if d.junk > maxJunk {
		d.logf(1, "no sync byte found", "bytes", d.junk)
		return decoder.ErrSyncLost
	}
	return nil
}

func (d *Decoder) packet(p []byte, ts time.Duration) {
	h := parseHeader(p)
	st := d.pid(h.PID)

	if d.packets == 0 {
		d.first = ts
	}
	d.packets++
	d.last = ts

	if st.Packets == 0 {
		st.First = ts
	}
	st.Packets++
	st.Last = ts
	if h.TEI {
		st.TEIErrors++
	}
	if h.Scrambling != 0 {
		st.Scrambled = true
	}
	if h.PID != NullPID && h.HasPayload {
		if st.lastCC >= 0 && !h.Discontinuity {
			want := uint8(st.lastCC+1) & 0x0F
			if h.CC != want && int(h.CC) != st.lastCC {
				st.CCErrors++
				d.logf(2, "continuity error", "pid", h.PID, "want", want, "got", h.CC)
			}
		}
		st.lastCC = int(h.CC)
	}

	d.recent.push(packetRecord{
		At:         ts,
		PID:        h.PID,
		PUSI:       h.PUSI,
		TEI:        h.TEI,
		Scrambling: h.Scrambling,
		AdaptField: h.AdaptField,
		HasPayload: h.HasPayload,
		CC:         h.CC,
	})
	d.wire.push(arrival{At: ts, PID: h.PID, Seq: d.packets})

	if h.TEI || len(h.Payload) == 0 {
		return
	}
	if _, isPMT := d.pmtPIDs[h.PID]; h.PID == PATPID || isPMT {
		d.feedSection(h.PID, h)
	}
}

func (d *Decoder) pid(pid uint16) *pidStats {
	st, ok := d.pids[pid]
	if !ok {
		st = &pidStats{PID: pid, lastCC: -1}
		switch pid {
		case PATPID:
			st.Kind = "PAT"
		case 0x0001:
			st.Kind = "CAT"
		case 0x0010:
			st.Kind = "NIT"
		case 0x0011:
			st.Kind = "SDT/BAT"
		case 0x0012:
			st.Kind = "EIT"
		case 0x0014:
			st.Kind = "TDT/TOT"
		case NullPID:
			st.Kind = "null"
		}
		d.pids[pid] = st
	}
	return st
}

// Close implements decoder.Decoder.
func (d *Decoder) Close() error {
	if len(d.carry) > 0 {
		d.logf(3, "dropping partial packet", "bytes", len(d.carry))
	}
	d.carry = d.carry[:0]
	clear(d.sections)
	return nil
}

func (d *Decoder) logf(level int, msg string, args ...any) {
	if d.level < level {
		return
	}
	switch level {
	case 1:
		d.log.Error(msg, args...)
	case 2:
		d.log.Warn(msg, args...)
	default:
		d.log.Debug(msg, args...)
	}
}
