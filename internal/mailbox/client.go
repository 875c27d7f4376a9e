// Package mailbox wraps one authenticated IMAP connection to Gmail.
package mailbox

import (
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"

	"github.com/mixelka/gmailarchiver/internal/auth"
)

// AllMail is Gmail's canonical archive folder. The name carries reserved
// characters, so it goes over the wire as a quoted string; the client
// library handles the quoting.
const AllMail = "[Gmail]/All Mail"

// TrashLabel moves a message into Gmail's recoverable trash when added to
// its label set, rather than deleting it outright.
const TrashLabel = `\Trash`

// labelsItem is Gmail's per-message label list extension.
const labelsItem = imap.FetchItem("X-GM-LABELS")

// Config configuration for the IMAP connection
type Config struct {
	Server      string // host:port
	DialTimeout time.Duration
}

// Client drives a single stateful IMAP connection. It issues one command at
// a time; the connection does not tolerate concurrent commands.
type Client struct {
	config Config
	client *client.Client
	logger *slog.Logger
}

// Dial connects to the IMAP server over TLS.
func Dial(cfg Config, logger *slog.Logger) (*Client, error) {
	logger = logger.With("server", cfg.Server)
	logger.Debug("connecting to IMAP server")

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	dialer := &net.Dialer{Timeout: timeout}
	conn, err := tls.DialWithDialer(dialer, "tcp", cfg.Server, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create IMAP client: %w", err)
	}

	return &Client{config: cfg, client: imapClient, logger: logger}, nil
}

// Authenticate performs a one-shot XOAUTH2 exchange for the account.
func (c *Client) Authenticate(account, accessToken string) error {
	if err := c.client.Authenticate(auth.NewXOAuth2(account, accessToken)); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	c.logger.Debug("authenticated", "account", account)
	return nil
}

// Select switches the active folder.
func (c *Client) Select(name string) error {
	if _, err := c.client.Select(name, false); err != nil {
		return fmt.Errorf("failed to select %s: %w", name, err)
	}
	return nil
}

// SearchBefore returns the sequence numbers of messages received before
// cutoff, in server order.
func (c *Client) SearchBefore(cutoff time.Time) ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Before = cutoff
	seqs, err := c.client.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}
	return seqs, nil
}

// FetchBody fetches the raw wire-format content of one message.
func (c *Client) FetchBody(seq uint32) ([]byte, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.client.Fetch(seqSet, items, messages)
	}()

	var body []byte
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		b, err := io.ReadAll(r)
		if err != nil {
			<-done
			return nil, fmt.Errorf("failed to read body of message %d: %w", seq, err)
		}
		body = b
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch message %d: %w", seq, err)
	}
	if body == nil {
		return nil, fmt.Errorf("message %d: server returned no body", seq)
	}
	return body, nil
}

// FetchLabels fetches the Gmail label list of one message. Callers treat
// errors and empty lists alike: no sidecar is written.
func (c *Client) FetchLabels(seq uint32) ([]string, error) {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)
	go func() {
		done <- c.client.Fetch(seqSet, []imap.FetchItem{labelsItem}, messages)
	}()

	var labels []string
	for msg := range messages {
		labels = append(labels, flattenLabels(msg.Items[labelsItem])...)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("failed to fetch labels of message %d: %w", seq, err)
	}
	return labels, nil
}

// flattenLabels unwraps the raw X-GM-LABELS field list.
func flattenLabels(v interface{}) []string {
	var out []string
	switch v := v.(type) {
	case []interface{}:
		for _, item := range v {
			out = append(out, flattenLabels(item)...)
		}
	case string:
		out = append(out, v)
	case imap.RawString:
		out = append(out, string(v))
	}
	return out
}

// MarkTrash adds Gmail's trash label to one message. Server-side trash
// retention applies; this is not a permanent delete.
func (c *Client) MarkTrash(seq uint32) error {
	seqSet := new(imap.SeqSet)
	seqSet.AddNum(seq)

	item := imap.StoreItem("+X-GM-LABELS")
	if err := c.client.Store(seqSet, item, []interface{}{TrashLabel}, nil); err != nil {
		return fmt.Errorf("failed to mark message %d for deletion: %w", seq, err)
	}
	return nil
}

// Close closes the selected mailbox.
func (c *Client) Close() error {
	return c.client.Close()
}

// Logout ends the session.
func (c *Client) Logout() error {
	return c.client.Logout()
}
