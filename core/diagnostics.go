// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lance/report"
)

var errSentryTest = errors.New("Hello")

// SendReport prints the redacted configuration, environment and host info
// and sends it to error tracking.
func (a *App) SendReport(ctx context.Context, environ []string) (report.Snapshot, error) {
	cfg, err := a.Config.All()
	if err != nil {
		return report.Snapshot{}, err
	}
	snapshot := report.NewSnapshot(cfg, environ)
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return snapshot, fmt.Errorf("failed to encode report: %w", err)
	}
	a.Reporter.Capture(errors.New("Report"), map[string]any{
		"config": snapshot.Config,
		"env":    snapshot.Env,
		"host":   snapshot.Host,
	})
	a.Reporter.Flush()
	fmt.Fprintln(a.Out, string(raw))
	return snapshot, nil
}

// TestSentry sends a test message and then fails with a test error, which
// the caller reports like any other.
func (a *App) TestSentry(ctx context.Context) error {
	if !a.Reporter.Enabled() {
		a.warn("Error reporting is disabled, set --sentry-dsn to enable it")
	}
	a.Reporter.CaptureMessage("Test")
	a.Reporter.Flush()
	fmt.Fprintln(a.Out, "OK")
	return errSentryTest
}

// TestAccounts checks that the accounts service answers.
func (a *App) TestAccounts(ctx context.Context) error {
	if err := a.API.Ping(ctx); err != nil {
		return err
	}
	a.success("PONG!")
	return nil
}
