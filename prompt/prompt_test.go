package prompt

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		def   bool
		want  bool
	}{
		{input: "y\n", want: true},
		{input: "YES\n", want: true},
		{input: "n\n", def: true, want: false},
		{input: "\n", def: true, want: true},
		{input: "\n", def: false, want: false},
		{input: "maybe\ny\n", want: true},
	}
	for _, tc := range tests {
		t.Run(strings.TrimSpace(tc.input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewTerminalWith(strings.NewReader(tc.input), &out, false)
			got, err := p.Confirm("Continue?", tc.def)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Contains(t, out.String(), "Continue?")
		})
	}
}

func TestConfirmEOFAborts(t *testing.T) {
	p := NewTerminalWith(strings.NewReader(""), &bytes.Buffer{}, false)
	_, err := p.Confirm("Continue?", false)
	assert.ErrorIs(t, err, ErrAborted)
}

func TestInput(t *testing.T) {
	p := NewTerminalWith(strings.NewReader("\n  my message  \nlast"), &bytes.Buffer{}, false)

	got, err := p.Input("Commit message", "Changes")
	require.NoError(t, err)
	assert.Equal(t, "Changes", got)

	got, err = p.Input("Commit message", "Changes")
	require.NoError(t, err)
	assert.Equal(t, "my message", got)

	got, err = p.Input("Name", "")
	require.NoError(t, err)
	assert.Equal(t, "last", got)
}

func TestSelectNeedsTerminal(t *testing.T) {
	p := NewTerminalWith(strings.NewReader(""), &bytes.Buffer{}, false)
	_, err := p.Select("Brand", []string{"a", "b"})
	assert.ErrorIs(t, err, ErrNoTerminal)

	_, err = p.Select("Brand", nil)
	assert.Error(t, err)

	got, err := p.MultiSelect("Repos", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
