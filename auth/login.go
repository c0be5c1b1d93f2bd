// SPDX-License-Identifier: MPL-2.0

// Package auth implements the browser based OAuth login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"lance/api"
	"lance/config"
	"lance/ui"
	"lance/util/retry"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/nrednav/cuid2"
	"github.com/pkg/browser"
	slogecho "github.com/samber/slog-echo"
)

const (
	DefaultPort     = 8050
	DefaultInterval = 2 * time.Second
	DefaultAttempts = 60
	stateLength     = 32
)

var ErrLoginTimeout = errors.New("login timed out, please try again")

const successPage = `<!doctype html>
<html><head><meta charset="utf-8"><title>Imagelance CLI</title></head>
<body style="font-family:sans-serif;text-align:center;padding-top:4em">
<h1>You are logged in</h1><p>You can close this window and return to the terminal.</p>
</body></html>`

type Options struct {
	// Port of the local callback server. 0 picks a free port.
	Port         int
	ClientSecret string
	Interval     time.Duration
	Attempts     int
	OpenBrowser  func(url string) error
	Out          io.Writer
	Logger       *slog.Logger
	Debug        bool
}

func (o *Options) defaults() {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Attempts <= 0 {
		o.Attempts = DefaultAttempts
	}
	if o.OpenBrowser == nil {
		o.OpenBrowser = browser.OpenURL
	}
	if o.Out == nil {
		o.Out = os.Stdout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

type tokenBox struct {
	mu  sync.Mutex
	tok *config.Token
}

func (b *tokenBox) set(tok *config.Token) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tok = tok
}

func (b *tokenBox) get() *config.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tok
}

func newState() (string, error) {
	generate, err := cuid2.Init(cuid2.WithLength(stateLength))
	if err != nil {
		return "", err
	}
	return generate(), nil
}

// Login opens the browser on the authorize page, waits for the callback,
// then persists the token and the user profile.
func Login(ctx context.Context, client *api.Client, opts Options) (*api.User, error) {
	opts.defaults()

	state, err := newState()
	if err != nil {
		return nil, fmt.Errorf("failed to generate login state: %w", err)
	}

	ln, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", opts.Port))
	if err != nil {
		return nil, fmt.Errorf("failed to start login callback server: %w", err)
	}
	redirectURI := fmt.Sprintf("http://localhost:%d", ln.Addr().(*net.TCPAddr).Port)

	box := &tokenBox{}
	e := callbackServer(client, opts, state, redirectURI, box)
	server := &http.Server{Handler: e}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			opts.Logger.Error("Login callback server stopped", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	if opts.Debug {
		fmt.Fprintf(opts.Out, "Listening on %s\n", ln.Addr())
	}

	authorizeURL := client.Env().AuthorizeURL(redirectURI, state)
	fmt.Fprintln(opts.Out, ui.Success.Render("Opening browser ")+ui.Link.Render(authorizeURL))
	if err := opts.OpenBrowser(authorizeURL); err != nil {
		opts.Logger.Debug("Failed to open browser", slog.Any("error", err))
		fmt.Fprintln(opts.Out, "Open the URL above in your browser to continue.")
	}
	fmt.Fprintln(opts.Out, ui.Info.Render("Awaiting login in browser..."))

	err = retry.Poll(ctx, opts.Interval, opts.Attempts, func(ctx context.Context, attempt int) (bool, error) {
		if opts.Debug {
			opts.Logger.Debug("Awaiting login", slog.Int("attempt", attempt))
		}
		return box.get() != nil, nil
	})
	if errors.Is(err, retry.ErrExhausted) {
		return nil, ErrLoginTimeout
	}
	if err != nil {
		return nil, err
	}

	cfg := client.Config()
	if err := cfg.SetToken(*box.get()); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}
	user, err := client.User(ctx)
	if err != nil {
		return nil, err
	}
	if err := cfg.SetUser(user.Account()); err != nil {
		return nil, fmt.Errorf("failed to store user: %w", err)
	}
	fmt.Fprintln(opts.Out, ui.Success.Render(fmt.Sprintf("User %s successfully logged in", user.Email)))
	return user, nil
}

func callbackServer(client *api.Client, opts Options, state, redirectURI string, box *tokenBox) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	if opts.Debug {
		e.Use(slogecho.New(opts.Logger))
	}
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1 << 10,
		LogLevel:  log.ERROR,
	}))

	e.GET("/", func(c echo.Context) error {
		code := c.QueryParam("code")
		if code == "" {
			return c.String(http.StatusBadRequest, "Unable to login")
		}
		if got := c.QueryParam("state"); got != "" && got != state {
			return c.String(http.StatusBadRequest, "Unable to login: state mismatch")
		}
		tok, err := client.ExchangeCode(c.Request().Context(), opts.ClientSecret, code, redirectURI)
		if err != nil {
			opts.Logger.Debug("Code exchange failed", slog.Any("error", err))
			return c.String(http.StatusBadRequest, err.Error())
		}
		box.set(tok)
		return c.HTML(http.StatusOK, successPage)
	})
	return e
}
