// SPDX-License-Identifier: MPL-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"lance/config"
	"lance/ui"

	"github.com/google/uuid"
)

const (
	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10
)

// Request describes one outbound call. JSON, when set, is marshalled as the
// body and takes precedence over Body.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	JSON   any
	Body   io.Reader
	// Upload requests run without the default client timeout.
	Upload bool
}

type Options struct {
	CLIName    string
	CLIVersion string
	Logger     *slog.Logger
	HTTPClient *http.Client
	// OnVersionRejected defaults to printing upgrade instructions and exiting
	// with status 1.
	OnVersionRejected func(*VersionError)
}

type Client struct {
	env          Environment
	cfg          *config.Config
	httpClient   *http.Client
	uploadClient *http.Client
	logger       *slog.Logger
	cliName      string
	cliVersion   string
	onVersion    func(*VersionError)
}

func NewClient(env Environment, cfg *config.Config, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := opts.HTTPClient
	uploadClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
		uploadClient = &http.Client{}
	}
	onVersion := opts.OnVersionRejected
	if onVersion == nil {
		onVersion = exitOnVersionRejected
	}
	return &Client{
		env:          env,
		cfg:          cfg,
		httpClient:   httpClient,
		uploadClient: uploadClient,
		logger:       logger,
		cliName:      opts.CLIName,
		cliVersion:   opts.CLIVersion,
		onVersion:    onVersion,
	}
}

func (c *Client) Env() Environment {
	return c.env
}

func (c *Client) Config() *config.Config {
	return c.cfg
}

// Do issues req and returns the response of a 2xx answer. The caller closes
// the body.
func (c *Client) Do(ctx context.Context, req Request, withAuth bool) (*http.Response, error) {
	token := c.cfg.AccessToken()
	if withAuth && token == "" {
		return nil, ErrInvalidUser
	}

	target := req.URL
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	body := req.Body
	if req.JSON != nil {
		data, err := json.Marshal(req.JSON)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Cli", c.cliName)
	httpReq.Header.Set("X-Cli-Version", c.cliVersion)
	httpReq.Header.Set("X-Request-Id", uuid.New().String())
	if req.JSON != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if withAuth {
		httpReq.Header.Set("Authorization", token)
	}
	for k, values := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	client := c.httpClient
	if req.Upload {
		client = c.uploadClient
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, ErrCanceled
		}
		c.logger.Debug("request failed", slog.String("method", method), slog.String("url", target), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %s %s: %v", ErrUnreachable, method, req.URL, err)
	}
	c.logger.Debug("request",
		slog.String("method", method),
		slog.String("url", target),
		slog.Int("status", resp.StatusCode),
		slog.Duration("took", time.Since(start)),
	)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()

	data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if readErr != nil && errors.Is(readErr, context.Canceled) {
		return nil, ErrCanceled
	}
	rerr, parsed := newResponseError(method, req.URL, resp, data)
	if parsed != nil && parsed.Type == typeVersionNotAllowed {
		var payload struct {
			MinimalCLIVersion string `json:"minimalCliVersion"`
		}
		_ = json.Unmarshal(parsed.Data, &payload)
		verr := &VersionError{Installed: c.cliVersion, Minimal: payload.MinimalCLIVersion}
		c.onVersion(verr)
		return nil, verr
	}
	return nil, rerr
}

// DoJSON issues req and decodes a 2xx body into out. A nil out discards the
// body.
func (c *Client) DoJSON(ctx context.Context, req Request, withAuth bool, out any) error {
	resp, err := c.Do(ctx, req, withAuth)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, context.Canceled) {
			return ErrCanceled
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("failed to decode response from %s: %w", req.URL, err)
	}
	return nil
}

func exitOnVersionRejected(verr *VersionError) {
	fmt.Fprintln(os.Stderr, ui.Error.Render("This version of the CLI is no longer supported."))
	fmt.Fprintf(os.Stderr, "Installed version: %s\n", verr.Installed)
	if verr.Minimal != "" {
		fmt.Fprintf(os.Stderr, "Required version:  %s or newer\n", verr.Minimal)
	}
	fmt.Fprintln(os.Stderr, "Download the latest release and replace the lance binary on your PATH.")
	os.Exit(1)
}
