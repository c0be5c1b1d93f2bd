// SPDX-License-Identifier: MPL-2.0

// Package prompt asks the user questions on the terminal.
package prompt

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"lance/ui"

	"github.com/ktr0731/go-fuzzyfinder"
	"golang.org/x/term"
)

var (
	// ErrAborted is returned when the user cancels a prompt.
	ErrAborted    = errors.New("aborted by user")
	ErrNoTerminal = errors.New("no terminal available for interactive prompt")
)

type Prompter interface {
	Confirm(message string, def bool) (bool, error)
	Input(message, def string) (string, error)
	Select(message string, options []string) (int, error)
	MultiSelect(message string, options []string) ([]int, error)
}

type Terminal struct {
	in          *bufio.Reader
	out         io.Writer
	interactive bool
}

func NewTerminal() *Terminal {
	return NewTerminalWith(os.Stdin, os.Stdout, term.IsTerminal(int(os.Stdin.Fd())))
}

// NewTerminalWith reads answers from in. Search lists need interactive.
func NewTerminalWith(in io.Reader, out io.Writer, interactive bool) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out, interactive: interactive}
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		if errors.Is(err, io.EOF) {
			return "", ErrAborted
		}
		return "", fmt.Errorf("failed to read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) Confirm(message string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}
	for {
		fmt.Fprintf(t.out, "%s %s ", ui.Highlight.Render("?"), message+" ("+hint+")")
		answer, err := t.readLine()
		if err != nil {
			return false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(t.out, ui.Warning.Render("Please answer yes or no."))
	}
}

func (t *Terminal) Input(message, def string) (string, error) {
	label := message
	if def != "" {
		label += " (" + def + ")"
	}
	fmt.Fprintf(t.out, "%s %s ", ui.Highlight.Render("?"), label)
	answer, err := t.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (t *Terminal) Select(message string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, fmt.Errorf("nothing to choose for %q", message)
	}
	if !t.interactive {
		return -1, ErrNoTerminal
	}
	idx, err := fuzzyfinder.Find(
		options,
		func(i int) string { return options[i] },
		fuzzyfinder.WithPromptString(message+"> "),
	)
	if err != nil {
		if errors.Is(err, fuzzyfinder.ErrAbort) {
			return -1, ErrAborted
		}
		return -1, fmt.Errorf("select %s: %w", message, err)
	}
	return idx, nil
}

func (t *Terminal) MultiSelect(message string, options []string) ([]int, error) {
	if len(options) == 0 {
		return nil, nil
	}
	if !t.interactive {
		return nil, ErrNoTerminal
	}
	indices, err := fuzzyfinder.FindMulti(
		options,
		func(i int) string { return options[i] },
		fuzzyfinder.WithPromptString(message+" (tab to select)> "),
	)
	if err != nil {
		if errors.Is(err, fuzzyfinder.ErrAbort) {
			return nil, ErrAborted
		}
		return nil, fmt.Errorf("select %s: %w", message, err)
	}
	return indices, nil
}
