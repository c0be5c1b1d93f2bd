// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"lance/config"
	"lance/prompt"
	"lance/ui"
	"lance/util/pathutil"
)

// Install chooses the templates root and marks the CLI as installed.
func (a *App) Install(ctx context.Context) (string, error) {
	if current := a.Config.Root(); current != "" {
		change, err := a.Prompt.Confirm(fmt.Sprintf("Root folder for templates is already set to %s. Do you want to change its location?", current), false)
		if err != nil {
			return "", err
		}
		if !change {
			return current, prompt.ErrAborted
		}
	}

	username := a.Config.String(config.KeyUsername)
	if username == "" {
		return "", fmt.Errorf("no git username stored, run \"lance login\" first")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to resolve working directory: %w", err)
	}

	locations := []string{
		filepath.Join(home, "imagelance-templates", username),
		filepath.Join(home, "Projects", "imagelance-templates", username),
		filepath.Join(cwd, "imagelance-templates", username),
	}
	options := []string{
		fmt.Sprintf("%s (~/imagelance-templates/%s)", locations[0], username),
		fmt.Sprintf("%s (~/Projects/imagelance-templates/%s)", locations[1], username),
		fmt.Sprintf("%s (create imagelance-templates/%s in current folder)", locations[2], username),
		"Custom path",
	}

	idx, err := a.Prompt.Select("Select root directory location for template synchronization", options)
	if err != nil {
		return "", err
	}

	var dir string
	if idx < len(locations) {
		dir = locations[idx]
	} else {
		custom, err := a.Prompt.Input("Root directory", "")
		if err != nil {
			return "", err
		}
		if dir, err = pathutil.ResolveAbsolute(custom); err != nil {
			return "", err
		}
		if dir == "" {
			return "", fmt.Errorf("no directory given")
		}
	}

	if err := pathutil.EnsureDir(dir); err != nil {
		return "", err
	}
	if err := a.Config.SetRoot(dir); err != nil {
		return "", fmt.Errorf("failed to store root: %w", err)
	}
	if err := a.Config.SetInstalled(true); err != nil {
		return "", fmt.Errorf("failed to store install state: %w", err)
	}
	fmt.Fprintln(a.Out, "Root folder for templates set to:", ui.Link.Render(dir))
	return dir, nil
}
