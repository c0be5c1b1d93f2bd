// SPDX-License-Identifier: MPL-2.0

// Package report forwards errors to Sentry and formats them for the terminal.
package report

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"lance/api"
	"lance/prompt"

	"github.com/getsentry/sentry-go"
)

const flushTimeout = 2 * time.Second

// Reporter sends errors to Sentry. The zero value and a nil *Reporter are
// disabled and drop everything.
type Reporter struct {
	hub    *sentry.Hub
	logger *slog.Logger
}

// New creates a Reporter. An empty dsn yields a disabled reporter.
func New(dsn, release, environment string, logger *slog.Logger) (*Reporter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == "" {
		return &Reporter{logger: logger}, nil
	}
	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          release,
		Environment:      environment,
		AttachStacktrace: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}
	return &Reporter{hub: sentry.NewHub(client, sentry.NewScope()), logger: logger}, nil
}

func (r *Reporter) Enabled() bool {
	return r != nil && r.hub != nil
}

// SetUser attaches the account to later events.
func (r *Reporter) SetUser(id, email string) {
	if !r.Enabled() {
		return
	}
	r.hub.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetUser(sentry.User{ID: id, Email: email})
	})
}

// Capture reports err unless it is a cancellation or a declined prompt.
func (r *Reporter) Capture(err error, extra map[string]any) {
	if err == nil || Ignored(err) || !r.Enabled() {
		return
	}
	r.hub.WithScope(func(scope *sentry.Scope) {
		for k, v := range extra {
			scope.SetExtra(k, v)
		}
		var rerr *api.ResponseError
		if errors.As(err, &rerr) {
			scope.SetTag("status", fmt.Sprint(rerr.StatusCode))
			scope.SetExtra("response", string(rerr.Body))
		}
		r.hub.CaptureException(err)
	})
}

func (r *Reporter) CaptureMessage(msg string) {
	if !r.Enabled() {
		return
	}
	r.hub.CaptureMessage(msg)
}

// Flush waits for queued events to be sent.
func (r *Reporter) Flush() {
	if !r.Enabled() {
		return
	}
	if !r.hub.Flush(flushTimeout) {
		r.logger.Debug("sentry flush timed out")
	}
}

// Ignored reports whether err is a deliberate stop rather than a failure.
func Ignored(err error) bool {
	return errors.Is(err, api.ErrCanceled) || errors.Is(err, prompt.ErrAborted)
}

// Describe renders err for the terminal. In debug mode server responses are
// printed in full.
func Describe(err error, debug bool) string {
	var rerr *api.ResponseError
	switch {
	case errors.Is(err, api.ErrUnreachable):
		msg := "Could not reach Imagelance servers, check your internet connection."
		if debug {
			msg += "\n" + err.Error()
		}
		return msg
	case errors.Is(err, api.ErrInvalidUser):
		return err.Error()
	case errors.As(err, &rerr) && debug && len(rerr.Body) > 0:
		return err.Error() + "\n" + strings.TrimSpace(string(rerr.Body))
	}
	return err.Error()
}
