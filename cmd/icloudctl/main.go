// icloudctl logs in to iCloud, keeps the resulting session between runs and
// issues read-only calls with it.
//
// Sessions are kept in an age-sealed file by default, or in Redis when
// --redis-addr is given. Reusing a saved session keeps the trust cookie from
// an earlier two-factor login, so later logins skip the challenge.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"

	goICloud "github.com/MrEthical07/goICloud"
)

type globalOptions struct {
	configPath     string
	sessionFile    string
	passphraseFile string
	redisAddr      string
	clientID       string
	logLevel       string
	timeout        time.Duration
}

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"login":        {summary: "authenticate and save the session", run: runLogin},
	"status":       {summary: "show the saved session", run: runStatus},
	"devices":      {summary: "list trusted devices for a pending challenge", run: runDevices},
	"storage":      {summary: "print storage usage", run: runStorage},
	"query":        {summary: "query the record database", run: runQuery},
	"export-token": {summary: "print a signed handoff token for the session", run: runExportToken},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	var opts globalOptions
	flagSet := pflag.NewFlagSet("icloudctl", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&opts.configPath, "config", "", "YAML config file (default: built-in defaults)")
	flagSet.StringVar(&opts.sessionFile, "session-file", "", "session file (default: <user config dir>/icloudctl/session.json)")
	flagSet.StringVar(&opts.passphraseFile, "passphrase-file", "", "file holding the session file passphrase (default: $ICLOUDCTL_PASSPHRASE)")
	flagSet.StringVar(&opts.redisAddr, "redis-addr", "", "keep sessions in Redis instead of a file")
	flagSet.StringVar(&opts.clientID, "client-id", "", "client id of the session (required with --redis-addr)")
	flagSet.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn or error")
	flagSet.DurationVar(&opts.timeout, "timeout", 2*time.Minute, "overall deadline for the command")
	flagSet.Usage = func() { printUsage(stderr, flagSet) }

	if err := flagSet.Parse(args); err != nil {
		return err
	}
	rest := flagSet.Args()
	if len(rest) == 0 {
		printUsage(stderr, flagSet)
		return errors.New("command required")
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	logger, err := newLogger(stderr, opts.logLevel)
	if err != nil {
		return err
	}
	a, err := newApp(opts, stdin, stdout, stderr, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	return cmd.run(ctx, a, rest[1:])
}

func newLogger(w io.Writer, level string) (*slog.Logger, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid --log-level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func printUsage(w io.Writer, flagSet *pflag.FlagSet) {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Usage: icloudctl [flags] <command> [command flags]\n\nCommands:\n")
	for _, name := range names {
		fmt.Fprintf(&b, "  %-13s %s\n", name, commands[name].summary)
	}
	b.WriteString("\nFlags:\n")
	b.WriteString(flagSet.FlagUsages())
	fmt.Fprint(w, b.String())
}

// app carries the client and session backend shared by every command.
type app struct {
	client   *goICloud.Client
	sessions sessionBackend
	prompt   *prompter
	stdout   io.Writer
	stderr   io.Writer
	logger   *slog.Logger
	closers  []func()
}

func newApp(opts globalOptions, stdin io.Reader, stdout, stderr io.Writer, logger *slog.Logger) (*app, error) {
	cfg := goICloud.DefaultConfig()
	if opts.configPath != "" {
		var err error
		if cfg, err = goICloud.LoadConfig(opts.configPath); err != nil {
			return nil, err
		}
	}

	a := &app{
		prompt: newPrompter(stdin, stderr),
		stdout: stdout,
		stderr: stderr,
		logger: logger,
	}

	builder := goICloud.New().WithConfig(cfg).WithLogger(logger)
	if cfg.Audit.Enabled {
		builder.WithAuditSink(goICloud.NewSlogSink(logger))
	}
	var rdb redis.UniversalClient
	if opts.redisAddr != "" {
		if opts.clientID == "" {
			return nil, errors.New("--client-id is required with --redis-addr")
		}
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{opts.redisAddr}})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		builder.WithRedis(rdb)
	}

	client, err := builder.Build()
	if err != nil {
		a.close()
		return nil, err
	}
	a.client = client
	a.closers = append(a.closers, client.Close)

	if rdb != nil {
		a.sessions = &redisBackend{client: client, clientID: opts.clientID}
		return a, nil
	}

	path := opts.sessionFile
	if path == "" {
		if path, err = defaultSessionPath(); err != nil {
			a.close()
			return nil, err
		}
	}
	passphrase, err := readPassphrase(opts.passphraseFile)
	if err != nil {
		a.close()
		return nil, err
	}
	if passphrase == "" {
		logger.Warn("session file is not encrypted; set ICLOUDCTL_PASSPHRASE or --passphrase-file", "path", path)
	}
	a.sessions = &fileBackend{path: path, passphrase: passphrase, clientID: opts.clientID}
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
