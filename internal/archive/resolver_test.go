package archive

import (
	"path/filepath"
	"testing"
	"time"
)

func TestResolveLayout(t *testing.T) {
	date := time.Date(2021, time.January, 1, 12, 0, 0, 0, time.UTC) // a Friday
	loc := Resolve("/archive", "user@example.com", date, 1)

	wantDir := filepath.Join("/archive", "user@example.com", "2021", "01-Jan", "01-Fri")
	if loc.Dir != wantDir {
		t.Errorf("Dir = %q, want %q", loc.Dir, wantDir)
	}
	if want := filepath.Join(wantDir, "0000000001.eml"); loc.Eml != want {
		t.Errorf("Eml = %q, want %q", loc.Eml, want)
	}
	if want := filepath.Join(wantDir, "0000000001.labels.json"); loc.Labels != want {
		t.Errorf("Labels = %q, want %q", loc.Labels, want)
	}
}

func TestResolveDeterministic(t *testing.T) {
	date := time.Date(2019, time.December, 31, 23, 30, 0, 0, time.FixedZone("", 9*3600))
	first := Resolve("out", "a@example.com", date, 42)
	second := Resolve("out", "a@example.com", date, 42)
	if first != second {
		t.Fatalf("repeated calls differ: %+v vs %+v", first, second)
	}
}

func TestResolveUsesOriginatingOffset(t *testing.T) {
	// 23:30 on Dec 31 in +09:00 is still Dec 31 in that zone, even though
	// it is Dec 31 14:30 UTC; the path follows the header's own zone.
	date := time.Date(2019, time.December, 31, 23, 30, 0, 0, time.FixedZone("", 9*3600))
	loc := Resolve("out", "a@example.com", date, 7)
	wantDir := filepath.Join("out", "a@example.com", "2019", "12-Dec", "31-Tue")
	if loc.Dir != wantDir {
		t.Errorf("Dir = %q, want %q", loc.Dir, wantDir)
	}
}

func TestMessageDate(t *testing.T) {
	raw := []byte("From: a@example.com\r\nDate: Fri, 01 Jan 2021 12:00:00 +0000\r\nSubject: hi\r\n\r\nbody\r\n")
	date, err := messageDate(raw)
	if err != nil {
		t.Fatalf("messageDate failed: %v", err)
	}
	want := time.Date(2021, time.January, 1, 12, 0, 0, 0, time.UTC)
	if !date.Equal(want) {
		t.Errorf("date = %v, want %v", date, want)
	}
}

func TestMessageDateMissing(t *testing.T) {
	raw := []byte("From: a@example.com\r\nSubject: hi\r\n\r\nbody\r\n")
	if _, err := messageDate(raw); err == nil {
		t.Fatal("expected an error for a message without a Date header")
	}
}

func TestMessageDateUnparsable(t *testing.T) {
	raw := []byte("From: a@example.com\r\nDate: not a date\r\n\r\nbody\r\n")
	if _, err := messageDate(raw); err == nil {
		t.Fatal("expected an error for an unparsable Date header")
	}
}
