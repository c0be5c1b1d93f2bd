package report

import (
	"errors"
	"fmt"
	"testing"

	"lance/api"
	"lance/config"
	"lance/prompt"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDisabledReporter(t *testing.T) {
	r, err := New("", "1.0.0", "test", nil)
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	r.Capture(errors.New("boom"), nil)
	r.CaptureMessage("hello")
	r.SetUser("1", "jane@example.com")
	r.Flush()

	var nilReporter *Reporter
	assert.False(t, nilReporter.Enabled())
	nilReporter.Capture(errors.New("boom"), nil)
}

func TestIgnored(t *testing.T) {
	assert.True(t, Ignored(api.ErrCanceled))
	assert.True(t, Ignored(fmt.Errorf("store: %w", api.ErrCanceled)))
	assert.True(t, Ignored(prompt.ErrAborted))
	assert.False(t, Ignored(errors.New("boom")))
}

func TestDescribe(t *testing.T) {
	rerr := &api.ResponseError{Method: "GET", URL: "http://x/y", Status: "500 Internal Server Error", StatusCode: 500, Body: []byte(`{"trace":"deep"}`)}

	assert.NotContains(t, Describe(rerr, false), "deep")
	assert.Contains(t, Describe(rerr, true), `{"trace":"deep"}`)

	unreachable := fmt.Errorf("%w: dial tcp: refused", api.ErrUnreachable)
	assert.NotContains(t, Describe(unreachable, false), "refused")
	assert.Contains(t, Describe(unreachable, true), "refused")
}

func TestSnapshotRedacts(t *testing.T) {
	s := NewSnapshot(map[string]any{
		config.KeyUsername:         "jane",
		config.KeyPassword:         "s3cret",
		config.KeyToken:            map[string]any{"access_token": "abc"},
		config.KeyLastSyncResponse: []any{1, 2, 3},
	}, []string{"HOME=/home/jane", "LANCE_SENTRY_DSN=https://k@sentry", "GITHUB_TOKEN=ghp", "EMPTY="})

	assert.Equal(t, "jane", s.Config[config.KeyUsername])
	assert.Equal(t, redacted, s.Config[config.KeyPassword])
	assert.Equal(t, redacted, s.Config[config.KeyToken])
	assert.Equal(t, "<skipped>", s.Config[config.KeyLastSyncResponse])
	assert.Equal(t, "/home/jane", s.Env["HOME"])
	assert.Equal(t, redacted, s.Env["LANCE_SENTRY_DSN"])
	assert.Equal(t, redacted, s.Env["GITHUB_TOKEN"])
	assert.Equal(t, "", s.Env["EMPTY"])
	assert.NotEmpty(t, s.Host.OS)
}
