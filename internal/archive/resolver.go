package archive

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
)

// Location is the deterministic destination for one archived message.
type Location struct {
	Dir    string
	Eml    string
	Labels string
}

// Resolve derives the archive location for a message from its Date header
// and session sequence number:
//
//	<root>/<account>/<year>/<month>-<abbrev>/<day>-<weekday>/<seq>.eml
//
// The date keeps its originating zone offset, so repeated runs against the
// same message land on the same path.
func Resolve(root, account string, date time.Time, seq uint32) Location {
	dir := filepath.Join(root, account,
		fmt.Sprintf("%04d", date.Year()),
		date.Format("01-Jan"),
		date.Format("02-Mon"))
	base := fmt.Sprintf("%010d", seq)
	return Location{
		Dir:    dir,
		Eml:    filepath.Join(dir, base+".eml"),
		Labels: filepath.Join(dir, base+".labels.json"),
	}
}

// messageDate extracts the Date header from a raw message. A missing or
// unparsable header is an error: without it the message cannot be placed.
func messageDate(raw []byte) (time.Time, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return time.Time{}, fmt.Errorf("failed to parse message: %w", err)
	}
	header := mail.Header{Header: entity.Header}
	if header.Get("Date") == "" {
		return time.Time{}, errors.New("message has no Date header")
	}
	date, err := header.Date()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse Date header: %w", err)
	}
	return date, nil
}
