// Package archive implements the message archival pipeline: search for
// messages older than the retention window, write each one to its resolved
// location, then mark it for deletion.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mixelka/gmailarchiver/internal/mailbox"
)

// retentionDays is how old a message must be before it qualifies for
// archival. The cutoff is recomputed at every run.
const retentionDays = 90

// Session is the mailbox capability set the archiver drives. The
// implementation is a single stateful connection, so calls are strictly
// sequential.
type Session interface {
	Authenticate(account, accessToken string) error
	Select(name string) error
	SearchBefore(cutoff time.Time) ([]uint32, error)
	FetchBody(seq uint32) ([]byte, error)
	FetchLabels(seq uint32) ([]string, error)
	MarkTrash(seq uint32) error
}

// Entry describes one archived message for the local index.
type Entry struct {
	Account     string
	SeqNum      uint32
	MessageDate time.Time
	Path        string
	Labels      []string
}

// Recorder persists a note about each archived message. Recording is
// best-effort: the archiver logs failures and keeps going.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
}

// Archiver archives every message older than the retention window for one
// account into one output root.
type Archiver struct {
	Session  Session
	Log      *slog.Logger
	Recorder Recorder // optional

	Account     string
	AccessToken string
	Root        string
	Mailbox     string // defaults to mailbox.AllMail
	Delete      bool

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Result reports the outcome of a run.
type Result struct {
	Processed int
}

// Run executes the pipeline. A fetch failure or an unplaceable message
// aborts the run: continuing would leave a silently incomplete archive.
// Once a message is durably on disk, a failed trash flag never unwinds it.
func (a *Archiver) Run(ctx context.Context) (Result, error) {
	if err := a.Session.Authenticate(a.Account, a.AccessToken); err != nil {
		return Result{}, fmt.Errorf("failed to authenticate: %w", err)
	}
	box := a.Mailbox
	if box == "" {
		box = mailbox.AllMail
	}
	if err := a.Session.Select(box); err != nil {
		return Result{}, fmt.Errorf("failed to select %s: %w", box, err)
	}

	cutoff := a.now().AddDate(0, 0, -retentionDays)
	seqs, err := a.Session.SearchBefore(cutoff)
	if err != nil {
		// A failed search shares the no-op path with an empty one. The
		// warning keeps a server-side problem visible.
		a.Log.Warn("search failed, treating as no matches", "error", err)
		return Result{}, nil
	}
	if len(seqs) == 0 {
		a.Log.Info("no messages matched criteria", "cutoff", cutoff.Format("02-Jan-2006"))
		return Result{}, nil
	}

	res := Result{}
	for _, seq := range seqs {
		if err := a.archiveOne(ctx, seq); err != nil {
			return res, err
		}
		res.Processed++
	}
	return res, nil
}

func (a *Archiver) archiveOne(ctx context.Context, seq uint32) error {
	body, err := a.Session.FetchBody(seq)
	if err != nil {
		return fmt.Errorf("failed to fetch message %d: %w", seq, err)
	}
	date, err := messageDate(body)
	if err != nil {
		return fmt.Errorf("message %d: %w", seq, err)
	}

	loc := Resolve(a.Root, a.Account, date, seq)
	if err := os.MkdirAll(loc.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", loc.Dir, err)
	}
	a.Log.Debug("writing message", "seq", seq, "path", loc.Eml)
	if err := os.WriteFile(loc.Eml, append(body, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", loc.Eml, err)
	}

	labels, err := a.Session.FetchLabels(seq)
	if err != nil {
		a.Log.Debug("no labels for message", "seq", seq, "error", err)
		labels = nil
	}
	if len(labels) > 0 {
		if err := writeLabels(loc.Labels, labels); err != nil {
			return err
		}
	}

	if a.Recorder != nil {
		entry := Entry{
			Account:     a.Account,
			SeqNum:      seq,
			MessageDate: date,
			Path:        loc.Eml,
			Labels:      labels,
		}
		if err := a.Recorder.Record(ctx, entry); err != nil {
			a.Log.Error("failed to index message", "seq", seq, "error", err)
		}
	}

	if a.Delete {
		if err := a.Session.MarkTrash(seq); err != nil {
			// The artifact is already on disk; keeping data wins over
			// enforcing deletion.
			a.Log.Error("failed to mark message for deletion", "seq", seq, "error", err)
		}
	}
	return nil
}

func writeLabels(path string, labels []string) error {
	data, err := json.MarshalIndent(labels, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode labels: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func (a *Archiver) now() time.Time {
	if a.Clock != nil {
		return a.Clock()
	}
	return time.Now()
}
