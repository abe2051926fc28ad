package receiver

import (
	"testing"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Header
	}{
		{
			name: "plain",
			raw:  "From: Alice <alice@example.com>\r\nSubject: Invoice #44\r\n\r\nbody",
			want: Header{From: "Alice <alice@example.com>", Subject: "Invoice #44"},
		},
		{
			name: "bare address",
			raw:  "From: bob@example.com\r\nSubject: hi\r\n\r\n",
			want: Header{From: "bob@example.com", Subject: "hi"},
		},
		{
			name: "encoded words",
			raw:  "From: =?UTF-8?Q?Z=C3=BCrich?= <z@example.com>\r\nSubject: =?UTF-8?B?SGFsbMO2?=\r\n\r\n",
			want: Header{From: "Zürich <z@example.com>", Subject: "Hallö"},
		},
		{
			name: "no headers of interest",
			raw:  "X-Other: 1\r\n\r\nbody",
			want: Header{},
		},
		{
			name: "garbage",
			raw:  "not a message",
			want: Header{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseHeader([]byte(tt.raw)); got != tt.want {
				t.Errorf("ParseHeader() = %#v, want %#v", got, tt.want)
			}
		})
	}
}
