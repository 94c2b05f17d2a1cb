package ts

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"tsprobe/internal/decoder"
)

type Summary struct {
	Label      string  `json:"label,omitempty" yaml:"label,omitempty"`
	Mode       string  `json:"mode" yaml:"mode"`
	Packets    uint64  `json:"packets" yaml:"packets"`
	SyncLosses uint64  `json:"sync_losses" yaml:"sync_losses"`
	DurationMS int64   `json:"duration_ms" yaml:"duration_ms"`
	Bitrate    float64 `json:"bitrate_bps" yaml:"bitrate_bps"`

	Streams  []StreamSummary  `json:"streams,omitempty" yaml:"streams,omitempty"`
	PAT      *PATSummary      `json:"pat,omitempty" yaml:"pat,omitempty"`
	Programs []ProgramSummary `json:"programs,omitempty" yaml:"programs,omitempty"`
	Recent   []PacketSummary  `json:"recent,omitempty" yaml:"recent,omitempty"`
	Wire     []ArrivalSummary `json:"wire,omitempty" yaml:"wire,omitempty"`
}

type StreamSummary struct {
	PID       uint16  `json:"pid" yaml:"pid"`
	Kind      string  `json:"kind,omitempty" yaml:"kind,omitempty"`
	Packets   uint64  `json:"packets" yaml:"packets"`
	Bitrate   float64 `json:"bitrate_bps" yaml:"bitrate_bps"`
	CCErrors  uint64  `json:"cc_errors" yaml:"cc_errors"`
	TEIErrors uint64  `json:"tei_errors" yaml:"tei_errors"`
	CRCErrors uint64  `json:"crc_errors" yaml:"crc_errors"`
	Scrambled bool    `json:"scrambled" yaml:"scrambled"`
}

type PATSummary struct {
	TSID      uint16 `json:"tsid" yaml:"tsid"`
	Version   uint8  `json:"version" yaml:"version"`
	NetworkID uint16 `json:"network_pid,omitempty" yaml:"network_pid,omitempty"`
}

type ProgramSummary struct {
	Number  uint16      `json:"number" yaml:"number"`
	PMTPID  uint16      `json:"pmt_pid" yaml:"pmt_pid"`
	PCRPID  uint16      `json:"pcr_pid" yaml:"pcr_pid"`
	Version int         `json:"version" yaml:"version"`
	Streams []ESSummary `json:"streams,omitempty" yaml:"streams,omitempty"`
}

type ESSummary struct {
	PID  uint16 `json:"pid" yaml:"pid"`
	Type uint8  `json:"type" yaml:"type"`
	Name string `json:"name" yaml:"name"`
}

type PacketSummary struct {
	AtUS       int64  `json:"at_us" yaml:"at_us"`
	PID        uint16 `json:"pid" yaml:"pid"`
	PUSI       bool   `json:"pusi" yaml:"pusi"`
	TEI        bool   `json:"tei" yaml:"tei"`
	Scrambling uint8  `json:"scrambling" yaml:"scrambling"`
	AdaptField bool   `json:"adaptation_field" yaml:"adaptation_field"`
	HasPayload bool   `json:"payload" yaml:"payload"`
	CC         uint8  `json:"cc" yaml:"cc"`
}

type ArrivalSummary struct {
	Seq     uint64 `json:"seq" yaml:"seq"`
	AtUS    int64  `json:"at_us" yaml:"at_us"`
	DeltaUS int64  `json:"delta_us" yaml:"delta_us"`
	PID     uint16 `json:"pid" yaml:"pid"`
}

// Snapshot builds the report for mode from the current state.
func (d *Decoder) Snapshot(mode decoder.Mode) Summary {
	s := Summary{
		Label:      d.label,
		Mode:       mode.String(),
		Packets:    d.packets,
		SyncLosses: d.syncLosses,
		DurationMS: (d.last - d.first).Milliseconds(),
		Bitrate:    bitrate(d.packets, d.first, d.last),
	}
	switch mode {
	case decoder.Bandwidth:
		s.Streams = d.streams()
	case decoder.Table:
		if d.pat.Seen {
			s.PAT = &PATSummary{TSID: d.pat.TSID, Version: d.pat.Version, NetworkID: d.pat.NetworkID}
		}
		s.Programs = d.programList()
	case decoder.Packet:
		for _, r := range d.recent.items() {
			s.Recent = append(s.Recent, PacketSummary{
				AtUS:       r.At.Microseconds(),
				PID:        r.PID,
				PUSI:       r.PUSI,
				TEI:        r.TEI,
				Scrambling: r.Scrambling,
				AdaptField: r.AdaptField,
				HasPayload: r.HasPayload,
				CC:         r.CC,
			})
		}
	case decoder.Wire:
		var prev time.Duration
		for i, a := range d.wire.items() {
			delta := time.Duration(0)
			if i > 0 {
				delta = a.At - prev
			}
			prev = a.At
			s.Wire = append(s.Wire, ArrivalSummary{Seq: a.Seq, AtUS: a.At.Microseconds(), DeltaUS: delta.Microseconds(), PID: a.PID})
		}
	}
	return s
}

// Summarize implements decoder.Decoder.
func (d *Decoder) Summarize(w io.Writer, mode decoder.Mode) error {
	s := d.Snapshot(mode)
	switch d.format {
	case decoder.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	case decoder.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(s); err != nil {
			return err
		}
		return enc.Close()
	default:
		return writeText(w, s)
	}
}

func (d *Decoder) streams() []StreamSummary {
	out := make([]StreamSummary, 0, len(d.pids))
	for _, st := range d.pids {
		out = append(out, StreamSummary{
			PID:       st.PID,
			Kind:      st.Kind,
			Packets:   st.Packets,
			Bitrate:   bitrate(st.Packets, st.First, st.Last),
			CCErrors:  st.CCErrors,
			TEIErrors: st.TEIErrors,
			CRCErrors: st.CRCErrors,
			Scrambled: st.Scrambled,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PID < out[j].PID })
	return out
}

func (d *Decoder) programList() []ProgramSummary {
	out := make([]ProgramSummary, 0, len(d.programs))
	for _, p := range d.programs {
		ps := ProgramSummary{Number: p.Number, PMTPID: p.PMTPID, PCRPID: p.PCRPID, Version: p.Version}
		for _, e := range p.Streams {
			ps.Streams = append(ps.Streams, ESSummary{PID: e.PID, Type: e.Type, Name: streamTypeName(e.Type)})
		}
		out = append(out, ps)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func bitrate(packets uint64, first, last time.Duration) float64 {
	span := (last - first).Seconds()
	if span <= 0 {
		return 0
	}
	return float64(packets*PacketSize*8) / span
}

func writeText(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if s.Label != "" {
		fmt.Fprintf(tw, "# %s\n", s.Label)
	}
	fmt.Fprintf(tw, "mode: %s\tpackets: %d\tsync losses: %d\tduration: %dms\tbitrate: %.0f bps\n",
		s.Mode, s.Packets, s.SyncLosses, s.DurationMS, s.Bitrate)

	switch {
	case s.Streams != nil:
		fmt.Fprintln(tw, "PID\tKIND\tPACKETS\tBITRATE\tCC ERR\tTEI ERR\tCRC ERR\tSCRAMBLED")
		for _, st := range s.Streams {
			fmt.Fprintf(tw, "0x%04x\t%s\t%d\t%.0f\t%d\t%d\t%d\t%t\n",
				st.PID, st.Kind, st.Packets, st.Bitrate, st.CCErrors, st.TEIErrors, st.CRCErrors, st.Scrambled)
		}
	case s.PAT != nil || s.Programs != nil:
		if s.PAT != nil {
			fmt.Fprintf(tw, "PAT tsid=%d version=%d\n", s.PAT.TSID, s.PAT.Version)
		}
		for _, p := range s.Programs {
			fmt.Fprintf(tw, "  program %d\tpmt=0x%04x\tpcr=0x%04x\tversion=%d\n", p.Number, p.PMTPID, p.PCRPID, p.Version)
			for _, e := range p.Streams {
				fmt.Fprintf(tw, "    es 0x%04x\ttype 0x%02x\t%s\n", e.PID, e.Type, e.Name)
			}
		}
	case s.Recent != nil:
		fmt.Fprintln(tw, "AT(us)\tPID\tPUSI\tTEI\tSCR\tAF\tPAYLOAD\tCC")
		for _, p := range s.Recent {
			fmt.Fprintf(tw, "%d\t0x%04x\t%t\t%t\t%d\t%t\t%t\t%d\n",
				p.AtUS, p.PID, p.PUSI, p.TEI, p.Scrambling, p.AdaptField, p.HasPayload, p.CC)
		}
	case s.Wire != nil:
		fmt.Fprintln(tw, "SEQ\tAT(us)\tDELTA(us)\tPID")
		for _, a := range s.Wire {
			fmt.Fprintf(tw, "%d\t%d\t%d\t0x%04x\n", a.Seq, a.AtUS, a.DeltaUS, a.PID)
		}
	}
	return tw.Flush()
}
