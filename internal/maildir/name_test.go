package maildir

import (
	"testing"
)

func TestNameString(t *testing.T) {
	tests := []struct {
		name Name
		want string
	}{
		{Name{"me@example.com", 101, false}, "me@example.com-101"},
		{Name{"me@example.com", 95, true}, "me@example.com-95:2,S"},
		{Name{"first-last@example.com", 7, false}, "first-last@example.com-7"},
		{Name{"a", 0, true}, "a-0:2,S"},
	}
	for _, tt := range tests {
		if got := tt.name.String(); got != tt.want {
			t.Errorf("%#v.String() = %q, want %q", tt.name, got, tt.want)
		}
		got, ok := ParseName(tt.want)
		if !ok {
			t.Errorf("ParseName(%q) failed", tt.want)
			continue
		}
		if got != tt.name {
			t.Errorf("ParseName(%q) = %#v, want %#v", tt.want, got, tt.name)
		}
	}
}

func TestParseNameFlags(t *testing.T) {
	tests := []struct {
		file string
		want Name
	}{
		{"me@example.com-12:2,RS", Name{"me@example.com", 12, true}},
		{"me@example.com-12:2,", Name{"me@example.com", 12, false}},
		{"me@example.com-4294967295", Name{"me@example.com", 4294967295, false}},
	}
	for _, tt := range tests {
		got, ok := ParseName(tt.file)
		if !ok || got != tt.want {
			t.Errorf("ParseName(%q) = %#v, %v, want %#v", tt.file, got, ok, tt.want)
		}
	}
}

func TestParseNameRejects(t *testing.T) {
	for _, file := range []string{
		"",
		"nodash",
		"-12",
		"me@example.com-",
		"me@example.com-abc",
		"me@example.com-012",
		"me@example.com-+12",
		"me@example.com-4294967296",
		"me@example.com-12:1,S",
		"1700000000.123.abcdef0123456789",
	} {
		if got, ok := ParseName(file); ok {
			t.Errorf("ParseName(%q) = %#v, want failure", file, got)
		}
	}
}
