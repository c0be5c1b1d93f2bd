// SPDX-License-Identifier: MPL-2.0

// Package ui holds the terminal styles shared by all commands.
package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	Title = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1).
		Bold(true)

	Error = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FF4C4C")).
		Bold(true)

	Warning = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#FFB000"))

	Success = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#00FA9A")).
		Bold(true)

	Info = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	Highlight = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EE6FF8")).
			Bold(true)

	Link = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#5FAFFF")).
		Underline(true)

	header = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cell   = lipgloss.NewStyle().Padding(0, 1)
)

func Successf(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Success.Render(fmt.Sprintf(format, args...)))
}

func Warnf(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Warning.Render(fmt.Sprintf(format, args...)))
}

func Errorf(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Error.Render(fmt.Sprintf(format, args...)))
}

func Infof(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, Info.Render(fmt.Sprintf(format, args...)))
}

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return header
			}
			return cell
		})
	return t.String()
}
