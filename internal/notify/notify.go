// Package notify sends stuck-subject alerts as text messages through a
// textbelt-style HTTP gateway.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultURL is the gateway used when none is configured.
const DefaultURL = "http://textbelt.com/canada"

const defaultTimeout = 10 * time.Second

// Message renders the alert text. Durations are reported in minutes.
func Message(cageID string, tag uint64, inside time.Duration, stuck bool) string {
	if stuck {
		return fmt.Sprintf("Mouse %d has been inside the chamber of cage %s for %.2f minutes.",
			tag, cageID, inside.Minutes())
	}
	return fmt.Sprintf("Mouse %d, the erstwhile stuck mouse in cage %s has finally left the chamber after being inside for %.2f minutes.",
		tag, cageID, inside.Minutes())
}

// Textbelt posts one form per phone number.
type Textbelt struct {
	url     string
	cageID  string
	phones  []string
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures a Textbelt.
type Option func(*Textbelt)

func WithURL(u string) Option { return func(n *Textbelt) { n.url = u } }

func WithClient(c *http.Client) Option { return func(n *Textbelt) { n.client = c } }

func WithTimeout(d time.Duration) Option { return func(n *Textbelt) { n.timeout = d } }

func WithLogger(l *slog.Logger) Option { return func(n *Textbelt) { n.logger = l } }

// NewTextbelt returns a notifier for cageID that alerts phones.
func NewTextbelt(cageID string, phones []string, opts ...Option) *Textbelt {
	n := &Textbelt{
		url:     DefaultURL,
		cageID:  cageID,
		phones:  phones,
		client:  http.DefaultClient,
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(n)
	}
	if n.logger == nil {
		n.logger = slog.Default()
	}
	return n
}

// Notify sends the alert to every phone in parallel and waits at most the
// configured timeout. Failures are logged, never returned.
func (n *Textbelt) Notify(tag uint64, inside time.Duration, stuck bool) {
	msg := Message(n.cageID, tag, inside, stuck)
	if err := n.send(msg); err != nil {
		n.logger.Error("notification failed", "tag", tag, "stuck", stuck, "error", err)
		return
	}
	n.logger.Info("notification sent", "tag", tag, "stuck", stuck, "recipients", len(n.phones), "message", msg)
}

func (n *Textbelt) send(msg string) error {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()

	// Each recipient is independent: one failed post must not cancel the rest.
	var g errgroup.Group
	errs := make([]error, len(n.phones))
	for i, phone := range n.phones {
		g.Go(func() error {
			errs[i] = n.post(ctx, phone, msg)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (n *Textbelt) post(ctx context.Context, phone, msg string) error {
	form := url.Values{"number": {phone}, "message": {msg}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post to %s: %w", phone, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post to %s: status %s", phone, resp.Status)
	}
	return nil
}
