package decoder

import "testing"

func TestParseMode(t *testing.T) {
	cases := []struct {
		in   string
		want Mode
		err  bool
	}{
		{"", Bandwidth, false},
		{"bandwidth", Bandwidth, false},
		{"Table", Table, false},
		{"packets", Packet, false},
		{"wire", Wire, false},
		{"histogram", Bandwidth, true},
	}
	for _, c := range cases {
		got, err := ParseMode(c.in)
		if (err != nil) != c.err {
			t.Fatalf("ParseMode(%q) err = %v, want error %v", c.in, err, c.err)
		}
		if got != c.want {
			t.Fatalf("ParseMode(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestMode_TextRoundTrip(t *testing.T) {
	var m Mode
	if err := m.UnmarshalText([]byte("table")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	b, _ := m.MarshalText()
	if string(b) != "table" {
		t.Fatalf("MarshalText = %q", b)
	}
	if Mode(9).String() != "mode(9)" {
		t.Fatalf("unexpected String for out of range mode: %s", Mode(9))
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "JSON": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Fatalf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
}
