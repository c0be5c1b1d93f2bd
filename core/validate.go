// SPDX-License-Identifier: MPL-2.0

package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"lance/api"

	"github.com/tidwall/jsonc"
)

var ErrInvalidTemplates = errors.New("some templates are invalid")

// ValidateOptions limits validation to one "brand/repo" when Visual is set.
type ValidateOptions struct {
	Visual string
}

// Validate checks config.json and schema.json of the local templates against
// the remote validator.
func (a *App) Validate(ctx context.Context, opts ValidateOptions) error {
	var visuals []Visual
	if opts.Visual != "" {
		v, err := a.FindVisual(opts.Visual)
		if err != nil {
			return err
		}
		visuals = []Visual{v}
	} else {
		all, err := a.Visuals()
		if err != nil {
			return err
		}
		visuals = all
	}

	invalid := 0
	for _, v := range visuals {
		ok, err := a.validateVisual(ctx, v)
		if err != nil {
			a.ReportItem(v.Name(), err)
			invalid++
			continue
		}
		if !ok {
			invalid++
		}
	}
	a.success("Done.")
	if invalid > 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTemplates, invalid)
	}
	return nil
}

// readJSONC decodes a JSON file that may contain comments and trailing
// commas. A missing file yields ok false.
func readJSONC(path string) (any, bool, error) {
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var v any
	if err := json.Unmarshal(jsonc.ToJSON(raw), &v); err != nil {
		return nil, true, fmt.Errorf("%s is not valid JSON: %w", filepath.Base(path), err)
	}
	return v, true, nil
}

func (a *App) validateVisual(ctx context.Context, v Visual) (bool, error) {
	valid := true

	cfg, found, err := readJSONC(filepath.Join(v.Path, "config.json"))
	if err != nil {
		return false, err
	}
	if found {
		fmt.Fprintf(a.Out, "Checking config of %s\n", v.Name())
		// Repos outside the brand-name-category scheme are validated without one.
		category, _ := api.OutputCategory(v.Repo)
		result, err := a.API.ValidateConfig(ctx, cfg, category)
		if err != nil {
			return false, err
		}
		valid = a.printValidation(result) && valid
	}

	schema, found, err := readJSONC(filepath.Join(v.Path, "schema.json"))
	if err != nil {
		return false, err
	}
	if found {
		fmt.Fprintf(a.Out, "Checking schema of %s\n", v.Name())
		result, err := a.API.ValidateSchema(ctx, schema)
		if err != nil {
			return false, err
		}
		valid = a.printValidation(result) && valid
	}
	return valid, nil
}

func (a *App) printValidation(result *api.ValidationResult) bool {
	for _, msg := range result.ByLevel("warning") {
		a.warn("%s", msg)
	}
	errs := result.ByLevel("error")
	for _, msg := range errs {
		a.fail("%s", msg)
	}
	return result.IsValid && len(errs) == 0
}
