// SPDX-License-Identifier: MPL-2.0

package core

import (
	"fmt"
	"slices"
)

// SelectVisual asks for a brand, skipped when there is only one, and then
// for a template of that brand. Templates are listed newest name first.
func (a *App) SelectVisual() (Visual, error) {
	visuals, err := a.Visuals()
	if err != nil {
		return Visual{}, err
	}
	var brands []string
	for _, v := range visuals {
		if !slices.Contains(brands, v.Brand) {
			brands = append(brands, v.Brand)
		}
	}
	if len(brands) == 0 {
		return Visual{}, ErrNoTemplates
	}

	brand := brands[0]
	if len(brands) > 1 {
		idx, err := a.Prompt.Select("Select brand", brands)
		if err != nil {
			return Visual{}, err
		}
		brand = brands[idx]
	}

	var candidates []Visual
	for _, v := range visuals {
		if v.Brand == brand {
			candidates = append(candidates, v)
		}
	}
	slices.Reverse(candidates)
	options := make([]string, len(candidates))
	for i, v := range candidates {
		options[i] = v.Repo
	}
	idx, err := a.Prompt.Select("Select template", options)
	if err != nil {
		return Visual{}, err
	}
	return candidates[idx], nil
}

// FindVisual resolves "brand/repo" to a local template.
func (a *App) FindVisual(name string) (Visual, error) {
	brand, repo, err := ParseVisual(name)
	if err != nil {
		return Visual{}, err
	}
	visuals, err := a.Visuals()
	if err != nil {
		return Visual{}, err
	}
	for _, v := range visuals {
		if v.Brand == brand && v.Repo == repo {
			return v, nil
		}
	}
	return Visual{}, fmt.Errorf("template %s/%s not found locally", brand, repo)
}
