// SPDX-License-Identifier: MPL-2.0

// Package cli wires the command tree to the core and dev packages.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"lance/api"
	"lance/auth"
	"lance/config"
	"lance/core"
	"lance/dev"
	"lance/git"
	"lance/prompt"
	"lance/report"
	"lance/ui"
	"lance/util/signals"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
)

// Build carries values set at link time.
type Build struct {
	Name         string
	Version      string
	SentryDSN    string
	ClientSecret string
}

type globals struct {
	debug        *bool
	local        *bool
	env          *string
	configPath   *string
	sentryDSN    *string
	clientSecret *string
}

// runtime is what a command needs once flags are parsed.
type runtime struct {
	app      *core.App
	store    config.Store
	reporter *report.Reporter
}

func (r *runtime) close() {
	r.reporter.Flush()
	if r.store != nil {
		r.store.Close()
	}
}

type cli struct {
	build  Build
	flags  globals
	stdout io.Writer
	stderr io.Writer
	// newPrompter is swapped in tests.
	newPrompter func() prompt.Prompter
	rt          *runtime
}

func (c *cli) logger() *slog.Logger {
	level := slog.LevelInfo
	if *c.flags.debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(c.stdout, &slog.HandlerOptions{Level: level}))
}

// setup opens the config store and builds the app. It runs after flag
// parsing, from inside the selected command.
func (c *cli) setup() (*core.App, error) {
	if c.rt != nil {
		return c.rt.app, nil
	}
	logger := c.logger()
	env, err := api.LookupEnvironment(*c.flags.env, *c.flags.local)
	if err != nil {
		return nil, err
	}

	path := *c.flags.configPath
	if path == "" {
		if path, err = config.DefaultPath(); err != nil {
			return nil, err
		}
	}
	store, err := config.OpenSQLiteStore(path)
	if err != nil {
		return nil, err
	}
	cfg := config.New(store)

	reporter, err := report.New(*c.flags.sentryDSN, c.build.Version, env.Name, logger)
	if err != nil {
		logger.Warn("Error reporting disabled", slog.Any("error", err))
		reporter, _ = report.New("", c.build.Version, env.Name, logger)
	}

	client := api.NewClient(env, cfg, api.Options{
		CLIName:    c.build.Name,
		CLIVersion: c.build.Version,
		Logger:     logger,
	})
	app := (&core.App{
		Config:   cfg,
		API:      client,
		Git:      git.NewExec(logger),
		Prompt:   c.newPrompter(),
		Reporter: reporter,
		Logger:   logger,
		Out:      c.stdout,
		Debug:    *c.flags.debug,
	}).Init()
	app.Login = func(ctx context.Context) error {
		_, err := c.login(ctx, app)
		return err
	}
	c.rt = &runtime{app: app, store: store, reporter: reporter}
	return app, nil
}

func (c *cli) login(ctx context.Context, app *core.App) (*api.User, error) {
	user, err := auth.Login(ctx, app.API, auth.Options{
		Port:         auth.DefaultPort,
		ClientSecret: *c.flags.clientSecret,
		Out:          app.Out,
		Logger:       app.Logger,
		Debug:        app.Debug,
	})
	if err != nil {
		return nil, err
	}
	app.Reporter.SetUser(fmt.Sprint(user.ID), user.Email)
	return user, nil
}

type execFunc func(ctx context.Context, app *core.App, args []string) error

// withApp builds the app before running fn.
func (c *cli) withApp(fn execFunc) func(context.Context, []string) error {
	return func(ctx context.Context, args []string) error {
		app, err := c.setup()
		if err != nil {
			return err
		}
		return fn(ctx, app, args)
	}
}

// withUser additionally makes sure a user is logged in.
func (c *cli) withUser(fn execFunc) func(context.Context, []string) error {
	return c.withApp(func(ctx context.Context, app *core.App, args []string) error {
		if _, err := app.EnsureUser(ctx); err != nil {
			return err
		}
		return fn(ctx, app, args)
	})
}

func (c *cli) command() *ff.Command {
	rootFlags := ff.NewFlagSet(c.build.Name)
	c.flags = globals{
		debug:        rootFlags.BoolLong("debug", "print debug output and full server responses"),
		local:        rootFlags.BoolLong("local", "use the local development environment"),
		env:          rootFlags.StringLong("env", "production", "environment: production or local"),
		configPath:   rootFlags.StringLong("config", "", "path to the config database"),
		sentryDSN:    rootFlags.StringLong("sentry-dsn", c.build.SentryDSN, "Sentry DSN for error reports, empty disables them"),
		clientSecret: rootFlags.StringLong("client-secret", c.build.ClientSecret, "OAuth client secret used by login"),
	}
	root := &ff.Command{
		Name:  c.build.Name,
		Usage: c.build.Name + " <subcommand> [FLAGS]",
		Flags: rootFlags,
	}

	sub := func(name, usage, help string, flags *ff.FlagSet, exec func(context.Context, []string) error) {
		if flags == nil {
			flags = ff.NewFlagSet(name).SetParent(rootFlags)
		}
		root.Subcommands = append(root.Subcommands, &ff.Command{
			Name:      name,
			Usage:     c.build.Name + " " + usage,
			ShortHelp: help,
			Flags:     flags,
			Exec:      exec,
		})
	}

	sub("login", "login", "log in with your Imagelance account", nil, c.withApp(func(ctx context.Context, app *core.App, args []string) error {
		if _, err := c.login(ctx, app); err != nil {
			return err
		}
		if !app.Config.IsInstalled() {
			fmt.Fprintf(app.Out, "Next, choose where templates live with %s\n", ui.Highlight.Render(c.build.Name+" install"))
		}
		return nil
	}))

	sub("install", "install", "choose the root folder for templates", nil, c.withUser(func(ctx context.Context, app *core.App, args []string) error {
		_, err := app.Install(ctx)
		return err
	}))

	syncFlags := ff.NewFlagSet("sync").SetParent(rootFlags)
	shallow := syncFlags.BoolLong("shallow", "clone new templates with depth 1")
	sub("sync", "sync [--shallow]", "download all templates you are subscribed to", syncFlags, c.withUser(func(ctx context.Context, app *core.App, args []string) error {
		_, err := app.Sync(ctx, core.SyncOptions{Shallow: *shallow})
		return err
	}))

	sub("fetch", "fetch", "git fetch every local template", nil, c.withUser(func(ctx context.Context, app *core.App, args []string) error {
		return app.Fetch(ctx)
	}))
	sub("pull", "pull", "git pull every local template", nil, c.withUser(func(ctx context.Context, app *core.App, args []string) error {
		return app.Pull(ctx)
	}))
	sub("push", "push", "commit and push selected templates", nil, c.withUser(func(ctx context.Context, app *core.App, args []string) error {
		return app.Push(ctx)
	}))
	sub("status", "status", "show branch and changes of local templates", nil, c.withApp(func(ctx context.Context, app *core.App, args []string) error {
		_, err := app.Status(ctx)
		return err
	}))

	sub("clone", "clone <brand/repo>", "clone a single template", nil, c.withUser(func(ctx context.Context, app *core.App, args []string) error {
		if len(args) != 1 {
			return core.ErrInvalidVisual
		}
		_, err := app.Clone(ctx, args[0])
		return err
	}))

	sub("create", "create", "create a new template", nil, c.withUser(func(ctx context.Context, app *core.App, args []string) error {
		_, err := app.Create(ctx)
		return err
	}))

	devFlags := ff.NewFlagSet("dev").SetParent(rootFlags)
	template := devFlags.StringLong("template", "", "template to develop, as brand/repo")
	newest := devFlags.BoolLong("newest", "develop the most recently created template")
	latest := devFlags.BoolLong("latest", "develop the template of the last dev session")
	keep := devFlags.BoolLong("keep-bundle", "leave the remote bundle running on exit")
	sub("dev", "dev [--template brand/repo] [--newest] [--latest] [--keep-bundle]", "develop a template with live preview", devFlags, c.withUser(func(ctx context.Context, app *core.App, args []string) error {
		session := &dev.Session{App: app, Opts: dev.Options{
			Template:   *template,
			Newest:     *newest,
			Latest:     *latest,
			KeepBundle: *keep,
		}}
		return session.Run(ctx)
	}))

	sub("validate", "validate [brand/repo]", "validate config.json and schema.json of local templates", nil, c.withApp(func(ctx context.Context, app *core.App, args []string) error {
		opts := core.ValidateOptions{}
		if len(args) > 0 {
			opts.Visual = args[0]
		}
		return app.Validate(ctx, opts)
	}))

	sub("version", "version", "print the CLI version", nil, func(ctx context.Context, args []string) error {
		fmt.Fprintf(c.stdout, "%s %s\n", c.build.Name, c.build.Version)
		return nil
	})

	sub("send-report", "send-report", "(diagnostic) send the redacted configuration to error tracking", nil, c.withApp(func(ctx context.Context, app *core.App, args []string) error {
		_, err := app.SendReport(ctx, report.Environ())
		return err
	}))
	sub("test-sentry", "test-sentry", "(diagnostic) send a test event to error tracking", nil, c.withApp(func(ctx context.Context, app *core.App, args []string) error {
		return app.TestSentry(ctx)
	}))
	sub("test-accounts", "test-accounts", "(diagnostic) check that the accounts service answers", nil, c.withApp(func(ctx context.Context, app *core.App, args []string) error {
		return app.TestAccounts(ctx)
	}))

	return root
}

// Run parses args, runs the selected command and returns the exit code.
func Run(ctx context.Context, args []string, build Build, stdout, stderr io.Writer) int {
	c := &cli{
		build:  build,
		stdout: stdout,
		stderr: stderr,
		newPrompter: func() prompt.Prompter {
			return prompt.NewTerminal()
		},
	}
	return c.run(ctx, args)
}

func (c *cli) run(ctx context.Context, args []string) int {
	root := c.command()
	defer func() {
		if c.rt != nil {
			c.rt.close()
		}
	}()

	err := root.Parse(args, ff.WithEnvVarPrefix("LANCE"))
	if err == nil {
		err = root.Run(ctx)
	}
	switch {
	case errors.Is(err, ff.ErrHelp), errors.Is(err, ff.ErrNoExec):
		fmt.Fprintf(c.stderr, "%s\n", ffhelp.Command(root.GetSelected()))
		return 0
	case err != nil && root.GetSelected() == root:
		fmt.Fprintf(c.stderr, "%s\n", ffhelp.Command(root))
	}
	return c.exit(err)
}

// exit reports err and maps it to an exit code.
func (c *cli) exit(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, prompt.ErrAborted):
		return 0
	case errors.Is(err, api.ErrCanceled), errors.Is(err, context.Canceled):
		return 130
	}
	debug := c.flags.debug != nil && *c.flags.debug
	fmt.Fprintln(c.stderr, ui.Error.Render(report.Describe(err, debug)))
	// Per-template failures were reported one by one already.
	if c.rt != nil && !errors.Is(err, core.ErrSomeItemsFailed) {
		c.rt.reporter.Capture(err, nil)
	}
	if errors.Is(err, api.ErrInvalidUser) {
		fmt.Fprintf(c.stderr, "Run %s to log in again.\n", ui.Highlight.Render(c.build.Name+" login"))
	}
	return 1
}

// Main is the entry point used by package main.
func Main(build Build) {
	ctx, stop := signals.NotifyContext(context.Background())
	code := Run(ctx, os.Args[1:], build, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
