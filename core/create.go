// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"lance/api"
	"lance/prompt"
	"lance/ui"
	"lance/util/pathutil"

	"gopkg.in/yaml.v3"
)

const minNameLength = 4

var outputCategories = []api.Choice{
	{Label: "HTML", Value: "html"},
	{Label: "Static", Value: "image"},
	{Label: "Print", Value: "print"},
	{Label: "Video", Value: "video"},
	{Label: "Audio", Value: "audio"},
	{Label: "Fallback", Value: "fallback"},
}

func titles(choices []api.Choice) []string {
	out := make([]string, len(choices))
	for i, c := range choices {
		out[i] = c.Title()
	}
	return out
}

// splitTags turns a comma separated answer into trimmed, non-empty tags.
func splitTags(s string) []string {
	tags := []string{}
	for _, tag := range strings.Split(s, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

type createSummary struct {
	Brand          string   `yaml:"brand"`
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description,omitempty"`
	Mode           string   `yaml:"mode"`
	OutputCategory string   `yaml:"outputCategory,omitempty"`
	Template       string   `yaml:"template,omitempty"`
	Tags           []string `yaml:"tags,flow"`
}

// Create asks for the properties of a new template, creates its repository
// and clones it into the root.
func (a *App) Create(ctx context.Context) (Visual, error) {
	root, err := a.Root()
	if err != nil {
		return Visual{}, err
	}

	orgs, err := a.API.Orgs(ctx)
	if err != nil {
		return Visual{}, err
	}
	if len(orgs) == 0 {
		return Visual{}, fmt.Errorf("you are not a member of any brand")
	}
	brand := orgs[0].Name
	if len(orgs) > 1 {
		options := make([]string, len(orgs))
		for i, org := range orgs {
			options[i] = fmt.Sprintf("%s (%s)", org.FullName, org.Name)
		}
		idx, err := a.Prompt.Select("Select brand", options)
		if err != nil {
			return Visual{}, err
		}
		brand = orgs[idx].Name
	}

	req := api.CreateRepositoryRequest{}
	modes := []string{"blank", "template"}
	idx, err := a.Prompt.Select("Select mode", []string{"Create blank", "Create from template"})
	if err != nil {
		return Visual{}, err
	}
	req.Mode = modes[idx]

	if req.Mode == "blank" {
		idx, err := a.Prompt.Select("Select format", titles(outputCategories))
		if err != nil {
			return Visual{}, err
		}
		req.OutputCategory = outputCategories[idx].Value
	} else {
		templates, err := a.API.Templates(ctx, brand)
		if err != nil {
			return Visual{}, err
		}
		if len(templates) == 0 {
			return Visual{}, fmt.Errorf("brand %s has no starter templates", brand)
		}
		idx, err := a.Prompt.Select("Select template", titles(templates))
		if err != nil {
			return Visual{}, err
		}
		req.Template = templates[idx].Value
	}

	for {
		name, err := a.Prompt.Input(fmt.Sprintf("Template name %s (public, can be changed later)", ui.Warning.Render("[min 4 characters]")), "")
		if err != nil {
			return Visual{}, err
		}
		if name = strings.TrimSpace(name); len(name) >= minNameLength {
			req.Name = name
			break
		}
		a.warn("Name must have at least %d characters", minNameLength)
	}
	if req.Description, err = a.Prompt.Input("Description (optional)", ""); err != nil {
		return Visual{}, err
	}
	tags, err := a.Prompt.Input("Tags (separate with a comma, optional)", "")
	if err != nil {
		return Visual{}, err
	}
	req.Tags = splitTags(tags)

	summary, err := yaml.Marshal(createSummary{
		Brand:          brand,
		Name:           req.Name,
		Description:    req.Description,
		Mode:           req.Mode,
		OutputCategory: req.OutputCategory,
		Template:       req.Template,
		Tags:           req.Tags,
	})
	if err != nil {
		return Visual{}, fmt.Errorf("failed to render summary: %w", err)
	}
	fmt.Fprintln(a.Out, string(summary))
	ok, err := a.Prompt.Confirm("Is everything correct?", true)
	if err != nil {
		return Visual{}, err
	}
	if !ok {
		return Visual{}, prompt.ErrAborted
	}

	repo, err := a.API.CreateRepository(ctx, brand, req)
	if err != nil {
		return Visual{}, err
	}
	a.success("Template %s created", repo.FullName)

	v := Visual{Brand: brand, Repo: repo.Name, Path: filepath.Join(root, brand, repo.Name)}
	if err := pathutil.EnsureDir(filepath.Dir(v.Path)); err != nil {
		return v, err
	}
	if err := a.Git.Clone(ctx, a.cloneURL(repo), v.Path, 0); err != nil {
		return v, err
	}
	if err := a.setIdentity(ctx, v.Path); err != nil {
		return v, err
	}

	name := v.Name()
	if repo.FullName != "" {
		name = repo.FullName
	}
	if err := a.Config.SetNewestVisual(name); err != nil {
		return v, fmt.Errorf("failed to store newest template: %w", err)
	}
	fmt.Fprintln(a.Out, "Template cloned into", ui.Link.Render(v.Path))
	fmt.Fprintf(a.Out, "Start developing with %s\n", ui.Highlight.Render("lance dev --newest"))
	return v, nil
}

// cloneURL prefers the clone_url returned by the server, with the stored git
// credentials injected.
func (a *App) cloneURL(repo *api.Repository) string {
	if repo.CloneURL == "" {
		brand, name, _ := strings.Cut(repo.FullName, "/")
		return a.origin(brand, name)
	}
	u, err := url.Parse(repo.CloneURL)
	if err != nil {
		brand, name, _ := strings.Cut(repo.FullName, "/")
		return a.origin(brand, name)
	}
	if username, password := a.Config.GitCredentials(); username != "" {
		u.User = url.UserPassword(username, password)
	}
	return u.String()
}
