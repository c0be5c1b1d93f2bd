// SPDX-License-Identifier: MPL-2.0

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

func orgHeader(org string) http.Header {
	return http.Header{"X-Organization": []string{org}}
}

func (c *Client) Orgs(ctx context.Context) ([]Org, error) {
	var orgs []Org
	err := c.DoJSON(ctx, Request{URL: c.env.DevstackURL("/gitea/orgs")}, true, &orgs)
	if err != nil {
		return nil, fmt.Errorf("failed to list brands: %w", err)
	}
	return orgs, nil
}

// Syncs lists the subscriptions of the current user within orgs.
func (c *Client) Syncs(ctx context.Context, orgs []string) ([]Sync, error) {
	query := url.Values{}
	for _, org := range orgs {
		query.Add("organizations[]", org)
	}
	var syncs []Sync
	err := c.DoJSON(ctx, Request{URL: c.env.DevstackURL("/syncs"), Query: query}, true, &syncs)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed templates: %w", err)
	}
	return syncs, nil
}

// Repository returns nil without error when the server has no such repo.
func (c *Client) Repository(ctx context.Context, org, repo string) (*Repository, error) {
	var payload struct {
		Repo *Repository `json:"repo"`
	}
	err := c.DoJSON(ctx, Request{
		URL:    c.env.DevstackURL("/gitea/repos/" + url.PathEscape(repo)),
		Header: orgHeader(org),
	}, true, &payload)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load repository %s/%s: %w", org, repo, err)
	}
	return payload.Repo, nil
}

func (c *Client) Branches(ctx context.Context, org, repo string) ([]Choice, error) {
	var payload struct {
		Branches []Choice `json:"branches"`
	}
	err := c.DoJSON(ctx, Request{
		URL:    c.env.DevstackURL("/gitea/branches"),
		Query:  url.Values{"gitRepoName": []string{repo}},
		Header: orgHeader(org),
	}, true, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to list branches of %s/%s: %w", org, repo, err)
	}
	return payload.Branches, nil
}

func (c *Client) Templates(ctx context.Context, brand string) ([]Choice, error) {
	var payload struct {
		Templates []Choice `json:"templates"`
	}
	err := c.DoJSON(ctx, Request{
		URL:    c.env.DevstackURL("/gitea/templates"),
		Header: http.Header{"X-Brand": []string{brand}},
	}, true, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to list starter templates: %w", err)
	}
	return payload.Templates, nil
}

func (c *Client) CreateRepository(ctx context.Context, brand string, req CreateRepositoryRequest) (*Repository, error) {
	var payload struct {
		Repo *Repository `json:"repo"`
	}
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		URL:    c.env.DevstackURL("/gitea/repos"),
		Header: http.Header{"X-Brand": []string{brand}},
		JSON:   req,
	}, true, &payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create template repository: %w", err)
	}
	if payload.Repo == nil {
		return nil, fmt.Errorf("create repository response missing repo")
	}
	return payload.Repo, nil
}

// RunningBundle returns the open edit session for the repo, or nil.
func (c *Client) RunningBundle(ctx context.Context, org, repo, outputCategory string) (*Bundle, error) {
	var payload struct {
		Bundle *Bundle `json:"bundle"`
	}
	err := c.DoJSON(ctx, Request{
		URL: c.env.DevstackURL("/bundles/running"),
		Query: url.Values{
			"gitOrgName":     []string{org},
			"gitRepoName":    []string{repo},
			"outputCategory": []string{outputCategory},
		},
		Header: orgHeader(org),
	}, true, &payload)
	if IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up running bundle: %w", err)
	}
	if payload.Bundle == nil || payload.Bundle.ID == "" {
		return nil, nil
	}
	return payload.Bundle, nil
}

// CreateBundle opens an edit session with the remote file watcher stopped;
// it is started again by StartBundleWatcher after the snapshot is ingested.
func (c *Client) CreateBundle(ctx context.Context, org, repo, branch, outputCategory string) (*Bundle, error) {
	var bundle Bundle
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		URL:    c.env.DevstackURL("/bundles"),
		Header: orgHeader(org),
		JSON: map[string]any{
			"branch":           branch,
			"gitOrgName":       org,
			"gitRepoName":      repo,
			"outputCategory":   outputCategory,
			"startFileWatcher": false,
		},
	}, true, &bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to start bundle: %w", err)
	}
	if bundle.ID == "" {
		return nil, fmt.Errorf("bundle response missing id")
	}
	if bundle.Branch == "" {
		bundle.Branch = branch
	}
	return &bundle, nil
}

// DeleteBundle discards the session without saving remote changes.
func (c *Client) DeleteBundle(ctx context.Context, bundle Bundle) error {
	err := c.DoJSON(ctx, Request{
		Method: http.MethodDelete,
		URL:    c.env.DevstackURL("/bundles/" + bundle.ID.String()),
		JSON: map[string]any{
			"saveChanges":   false,
			"commitMessage": "CLI stopped",
			"targetBranch":  bundle.Branch,
		},
	}, true, nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to delete bundle %s: %w", bundle.ID, err)
	}
	return nil
}

func (c *Client) StartBundleWatcher(ctx context.Context, org string, bundleID ID) error {
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		URL:    c.env.DevstackURL("/bundle-watchers/start/" + bundleID.String()),
		Header: orgHeader(org),
	}, true, nil)
	if err != nil {
		return fmt.Errorf("failed to start bundle watcher: %w", err)
	}
	return nil
}

// CreateResize starts the remote bundler for one resize folder.
func (c *Client) CreateResize(ctx context.Context, org string, bundleID ID, label string) (*Resize, error) {
	var resize Resize
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		URL:    c.env.DevstackURL("/resizes"),
		Header: orgHeader(org),
		JSON: map[string]any{
			"bundleId": bundleID,
			"label":    label,
		},
	}, true, &resize)
	if err != nil {
		return nil, fmt.Errorf("failed to start bundler for %s: %w", label, err)
	}
	if resize.Label == "" {
		resize.Label = label
	}
	return &resize, nil
}

func (c *Client) DeleteResize(ctx context.Context, id ID) error {
	err := c.DoJSON(ctx, Request{
		Method: http.MethodDelete,
		URL:    c.env.DevstackURL("/resizes/" + id.String()),
	}, true, nil)
	if err != nil && !IsNotFound(err) {
		return fmt.Errorf("failed to stop bundler %s: %w", id, err)
	}
	return nil
}

// ValidateConfig checks a template config. An empty outputCategory is sent
// as null.
func (c *Client) ValidateConfig(ctx context.Context, cfg any, outputCategory string) (*ValidationResult, error) {
	var category any
	if outputCategory != "" {
		category = outputCategory
	}
	var result ValidationResult
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		URL:    c.env.DevstackURL("public/bundle-validator/config"),
		JSON: map[string]any{
			"config":         cfg,
			"outputCategory": category,
		},
	}, false, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}
	return &result, nil
}

func (c *Client) ValidateSchema(ctx context.Context, schema any) (*ValidationResult, error) {
	var result ValidationResult
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		URL:    c.env.DevstackURL("public/bundle-validator/schema"),
		JSON:   map[string]any{"schema": schema},
	}, false, &result)
	if err != nil {
		return nil, fmt.Errorf("failed to validate schema: %w", err)
	}
	return &result, nil
}

// Ingest uploads a zipped snapshot of the template into the bundle root.
// progress may be nil.
func (c *Client) Ingest(ctx context.Context, bundleID ID, name string, r io.Reader, size int64, progress ProgressFunc) error {
	body, contentType := multipartBody([]formField{
		{"bundleId", bundleID.String()},
		{"path", "/"},
	}, "files[]", name, r, size, progress)
	err := c.DoJSON(ctx, Request{
		Method: http.MethodPost,
		URL:    c.env.DevstackURL("/ingest"),
		Header: http.Header{"Content-Type": []string{contentType}},
		Body:   body,
		Upload: true,
	}, true, nil)
	if err != nil {
		return fmt.Errorf("failed to ingest snapshot: %w", err)
	}
	return nil
}
