package tdms

import (
	"errors"
	"testing"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		name        string
		path        string
		wantGroup   string
		wantChannel string
		wantErr     error
	}{
		{name: "root", path: "/", wantGroup: "", wantChannel: ""},
		{name: "group", path: "/'measurements'", wantGroup: "measurements", wantChannel: ""},
		{name: "channel", path: "/'measurements'/'voltage'", wantGroup: "measurements", wantChannel: "voltage"},
		{name: "escaped quote", path: "/'it''s a group'", wantGroup: "it's a group", wantChannel: ""},
		{name: "missing leading slash", path: "'measurements'", wantErr: ErrInvalidPath},
		{name: "unclosed quote", path: "/'measurements", wantErr: ErrInvalidPath},
		{name: "too many components", path: "/'a'/'b'/'c'", wantErr: ErrInvalidPath},
		{name: "empty string", path: "", wantErr: ErrInvalidPath},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			group, channel, err := parsePath(c.path)
			if !errors.Is(err, c.wantErr) {
				t.Fatalf("expected error %v, got %v", c.wantErr, err)
			}
			if c.wantErr != nil {
				return
			}
			if group != c.wantGroup || channel != c.wantChannel {
				t.Errorf("expected (%q, %q), got (%q, %q)", c.wantGroup, c.wantChannel, group, channel)
			}
		})
	}
}

func TestBuildPathRoundTrip(t *testing.T) {
	cases := []struct {
		group   string
		channel string
	}{
		{"", ""},
		{"measurements", ""},
		{"measurements", "voltage"},
		{"it's a group", "a 'channel'"},
	}

	for _, c := range cases {
		built := buildPath(c.group, c.channel)
		group, channel, err := parsePath(built)
		if err != nil {
			t.Fatalf("parsePath(%q) failed: %v", built, err)
		}
		if group != c.group || channel != c.channel {
			t.Errorf("round trip mismatch for (%q, %q): built %q parsed back as (%q, %q)", c.group, c.channel, built, group, channel)
		}
	}
}
