// SPDX-License-Identifier: MPL-2.0

package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

// Endpoint is a bundle filesystem RPC. Path carries {placeholders} that are
// substituted with query-escaped values.
type Endpoint struct {
	Method string
	Path   string
}

// Expand substitutes every {key} in the endpoint path.
func (e Endpoint) Expand(params map[string]string) string {
	out := e.Path
	for k, v := range params {
		out = strings.ReplaceAll(out, "{"+k+"}", url.QueryEscape(v))
	}
	return out
}

var filesystemEndpoints = map[string]Endpoint{
	"list":     {http.MethodGet, "/filesystem/{bundleId}?path={path}"},
	"show":     {http.MethodGet, "/filesystem/{bundleId}/show?path={path}"},
	"store":    {http.MethodPost, "/filesystem/{bundleId}/store?path={path}"},
	"upload":   {http.MethodPost, "/filesystem/upload"},
	"mkdir":    {http.MethodPost, "/filesystem/{bundleId}/mkdir?path={path}"},
	"mkresize": {http.MethodPost, "/filesystem/{bundleId}/mkresize"},
	"mkfile":   {http.MethodPost, "/filesystem/{bundleId}/mkfile?path={path}"},
	"rename":   {http.MethodPost, "/filesystem/{bundleId}/rename?name={name}"},
	"move":     {http.MethodPost, "/filesystem/{bundleId}/move?destPath={destPath}"},
	"rollback": {http.MethodPost, "/git/{bundleId}/rollback?path={path}"},
	"copy":     {http.MethodPost, "/filesystem/{bundleId}/copy?srcPath={srcPath}&destPath={destPath}"},
	"delete":   {http.MethodDelete, "/filesystem/{bundleId}?path={path}"},
}

// Filesystem is the set of filesystem RPCs bound to one bundle.
type Filesystem struct {
	client    *Client
	bundleID  ID
	endpoints map[string]Endpoint
}

func NewFilesystem(client *Client, bundleID ID) *Filesystem {
	bound := make(map[string]Endpoint, len(filesystemEndpoints))
	for name, e := range filesystemEndpoints {
		e.Path = strings.ReplaceAll(e.Path, "{bundleId}", url.PathEscape(bundleID.String()))
		bound[name] = e
	}
	return &Filesystem{client: client, bundleID: bundleID, endpoints: bound}
}

func (f *Filesystem) BundleID() ID {
	return f.bundleID
}

// Endpoint returns the bound endpoint by name.
func (f *Filesystem) Endpoint(name string) (Endpoint, bool) {
	e, ok := f.endpoints[name]
	return e, ok
}

func (f *Filesystem) call(ctx context.Context, name string, params map[string]string, req Request, out any) error {
	e, ok := f.endpoints[name]
	if !ok {
		return fmt.Errorf("unknown filesystem endpoint %q", name)
	}
	req.Method = e.Method
	req.URL = f.client.env.DevstackURL(e.Expand(params))
	if err := f.client.DoJSON(ctx, req, true, out); err != nil {
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func (f *Filesystem) List(ctx context.Context, p string) ([]FileEntry, error) {
	var entries []FileEntry
	err := f.call(ctx, "list", map[string]string{"path": p}, Request{}, &entries)
	return entries, err
}

func (f *Filesystem) Show(ctx context.Context, p string) (string, error) {
	var payload struct {
		Content string `json:"content"`
	}
	err := f.call(ctx, "show", map[string]string{"path": p}, Request{}, &payload)
	return payload.Content, err
}

// Store overwrites the whole remote file with content.
func (f *Filesystem) Store(ctx context.Context, p, content string) error {
	return f.call(ctx, "store", map[string]string{"path": p}, Request{
		JSON: map[string]string{"content": content},
	}, nil)
}

// Upload creates a new remote file at p from r.
func (f *Filesystem) Upload(ctx context.Context, p string, r io.Reader) error {
	dir := path.Dir("/" + strings.TrimPrefix(p, "/"))
	body, contentType := multipartBody([]formField{
		{"bundleId", f.bundleID.String()},
		{"path", dir},
	}, "files[]", path.Base(p), r, 0, nil)
	return f.call(ctx, "upload", nil, Request{
		Header: http.Header{"Content-Type": []string{contentType}},
		Body:   body,
		Upload: true,
	}, nil)
}

func (f *Filesystem) Mkdir(ctx context.Context, p string) error {
	return f.call(ctx, "mkdir", map[string]string{"path": p}, Request{}, nil)
}

func (f *Filesystem) Mkfile(ctx context.Context, p string) error {
	return f.call(ctx, "mkfile", map[string]string{"path": p}, Request{}, nil)
}

func (f *Filesystem) Mkresize(ctx context.Context, label string) error {
	return f.call(ctx, "mkresize", nil, Request{JSON: map[string]string{"label": label}}, nil)
}

func (f *Filesystem) Rename(ctx context.Context, p, name string) error {
	return f.call(ctx, "rename", map[string]string{"name": name}, Request{
		JSON: map[string]string{"path": p},
	}, nil)
}

func (f *Filesystem) Move(ctx context.Context, p, dest string) error {
	return f.call(ctx, "move", map[string]string{"destPath": dest}, Request{
		JSON: map[string]string{"path": p},
	}, nil)
}

func (f *Filesystem) Copy(ctx context.Context, src, dest string) error {
	return f.call(ctx, "copy", map[string]string{"srcPath": src, "destPath": dest}, Request{}, nil)
}

func (f *Filesystem) Rollback(ctx context.Context, p string) error {
	return f.call(ctx, "rollback", map[string]string{"path": p}, Request{}, nil)
}

// Delete removes a remote file or directory. A 404 counts as success since
// removing a directory also removes its children remotely.
func (f *Filesystem) Delete(ctx context.Context, p string) error {
	err := f.call(ctx, "delete", map[string]string{"path": p}, Request{}, nil)
	if IsNotFound(err) {
		return nil
	}
	return err
}
