package receiver

import (
	"bytes"

	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// Header holds the fields used for filtering and notification.
type Header struct {
	From    string
	Subject string
}

// ParseHeader extracts From and Subject from raw message bytes, decoding
// encoded words. Unparseable input yields an empty Header.
func ParseHeader(raw []byte) Header {
	// An unknown transfer encoding still yields a usable header.
	reader, _ := mail.CreateReader(bytes.NewReader(raw))
	if reader == nil {
		return Header{}
	}
	defer reader.Close()

	var h Header
	if subject, err := reader.Header.Subject(); err == nil {
		h.Subject = subject
	} else {
		h.Subject = reader.Header.Get("Subject")
	}

	if addrs, err := reader.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		h.From = formatAddress(addrs[0])
	} else if from, err := reader.Header.Text("From"); err == nil {
		h.From = from
	} else {
		h.From = reader.Header.Get("From")
	}
	return h
}

func formatAddress(a *mail.Address) string {
	if a.Name == "" {
		return a.Address
	}
	return a.Name + " <" + a.Address + ">"
}
