package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/pflag"

	goICloud "github.com/MrEthical07/goICloud"
	"github.com/MrEthical07/goICloud/record"
	"github.com/MrEthical07/goICloud/session"
)

const maxCodeAttempts = 3

func (a *app) flags(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(a.stderr)
	return fs
}

// loadSession returns the saved session.
func (a *app) loadSession(ctx context.Context) (*session.Session, error) {
	return a.sessions.Load(ctx)
}

// persist saves cookies the service refreshed during a call. Failure is
// logged, not returned; the call itself succeeded.
func (a *app) persist(ctx context.Context, sess *session.Session) {
	if err := a.sessions.Save(ctx, sess); err != nil {
		a.logger.WarnContext(ctx, "saving session failed", "error", err)
	}
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := a.flags("login")
	passwordFile := fs.String("password-file", "", "file holding the password (default: prompt)")
	codeFile := fs.String("code-file", "", "file holding the verification code (default: prompt)")
	device := fs.Int("device", -1, "trusted device number to send the code to (default: prompt)")
	short := fs.Bool("short", false, "request a short-lived session instead of an extended one")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: icloudctl login <apple-id> [flags]")
	}
	appleID := fs.Arg(0)

	sess, err := a.loadSession(ctx)
	switch {
	case errors.Is(err, errNoSession):
		sess = session.New(a.sessions.ClientID())
	case err != nil:
		return err
	}

	var password string
	if *passwordFile != "" {
		password, err = readSecretFile(*passwordFile)
	} else {
		password, err = a.prompt.Secret("Password: ")
	}
	if err != nil {
		return err
	}

	snap, err := a.client.Authenticate(ctx, sess, appleID, password, !*short)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if err := a.sessions.Save(ctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}

	if snap.ChallengeRequired {
		if snap, err = a.completeChallenge(ctx, sess, password, *device, *codeFile); err != nil {
			return err
		}
		if err := a.sessions.Save(ctx, sess); err != nil {
			return fmt.Errorf("save session: %w", err)
		}
	}

	fmt.Fprintf(a.stdout, "logged in as %s (session valid until %s)\n",
		snap.AccountIdentifier(), snap.ExpiresAt().Local().Format(time.RFC1123))
	return nil
}

func (a *app) completeChallenge(ctx context.Context, sess *session.Session, password string, index int, codeFile string) (session.Snapshot, error) {
	devices, err := a.client.ListTrustedDevices(ctx, sess)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("list trusted devices: %w", err)
	}
	if len(devices) == 0 {
		return session.Snapshot{}, errors.New("two-factor authentication required but no trusted devices are listed")
	}

	if index < 0 {
		fmt.Fprintln(a.stderr, "Two-factor authentication required. Trusted devices:")
		printDevices(a.stderr, devices)
		line, err := a.prompt.Line("Device number: ")
		if err != nil {
			return session.Snapshot{}, err
		}
		if index, err = strconv.Atoi(line); err != nil {
			return session.Snapshot{}, fmt.Errorf("invalid device number %q", line)
		}
	}
	if index >= len(devices) {
		return session.Snapshot{}, fmt.Errorf("device %d out of range (0-%d)", index, len(devices)-1)
	}
	dev := devices[index]

	if err := a.client.RequestVerificationCode(ctx, sess, dev); err != nil {
		return session.Snapshot{}, fmt.Errorf("send verification code: %w", err)
	}

	for attempt := 1; ; attempt++ {
		var code string
		if codeFile != "" {
			code, err = readSecretFile(codeFile)
		} else {
			code, err = a.prompt.Line("Verification code: ")
		}
		if err != nil {
			return session.Snapshot{}, err
		}

		snap, err := a.client.ValidateVerificationCode(ctx, sess, dev, code, password)
		if err == nil {
			return snap, nil
		}
		if !goICloud.IsInvalidVerificationCode(err) || codeFile != "" || attempt == maxCodeAttempts {
			return session.Snapshot{}, fmt.Errorf("verify code: %w", err)
		}
		fmt.Fprintln(a.stderr, "Incorrect code, try again.")
	}
}

func runStatus(ctx context.Context, a *app, args []string) error {
	if err := a.flags("status").Parse(args); err != nil {
		return err
	}
	sess, err := a.loadSession(ctx)
	if err != nil {
		return err
	}

	snap := sess.Snapshot()
	fmt.Fprintf(a.stdout, "client id:  %s\n", snap.ClientID)
	fmt.Fprintf(a.stdout, "state:      %s\n", snap.State(time.Now()))
	if snap.SessionID == "" {
		return nil
	}
	fmt.Fprintf(a.stdout, "account:    %s\n", snap.AccountIdentifier())
	fmt.Fprintf(a.stdout, "expires:    %s\n", snap.ExpiresAt().Local().Format(time.RFC1123))
	fmt.Fprintf(a.stdout, "cookies:    %d\n", sess.Cookies().Len())

	names := make([]string, 0, len(snap.ServiceMap))
	for name := range snap.ServiceMap {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		u, _ := snap.ServiceURL(name)
		fmt.Fprintf(a.stdout, "service:    %s %s\n", name, u)
	}
	return nil
}

func runDevices(ctx context.Context, a *app, args []string) error {
	if err := a.flags("devices").Parse(args); err != nil {
		return err
	}
	sess, err := a.loadSession(ctx)
	if err != nil {
		return err
	}
	devices, err := a.client.ListTrustedDevices(ctx, sess)
	if err != nil {
		return err
	}
	a.persist(ctx, sess)
	printDevices(a.stdout, devices)
	return nil
}

func printDevices(w io.Writer, devices []goICloud.Device) {
	for i, d := range devices {
		phone := d.PhoneNumber
		if d.AreaCode != "" {
			phone = d.AreaCode + " " + phone
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", i, d.DeviceType, phone)
	}
}

func runStorage(ctx context.Context, a *app, args []string) error {
	if err := a.flags("storage").Parse(args); err != nil {
		return err
	}
	sess, err := a.loadSession(ctx)
	if err != nil {
		return err
	}
	usage, err := a.client.StorageUsage(ctx, sess)
	if err != nil {
		return err
	}
	a.persist(ctx, sess)

	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(usage)
}

func runQuery(ctx context.Context, a *app, args []string) error {
	fs := a.flags("query")
	recordType := fs.String("record-type", "", "record type to query")
	zone := fs.String("zone", "PrimarySync", "zone name")
	limit := fs.Int("limit", 0, "results per page (0: service default)")
	keys := fs.StringSlice("keys", nil, "fields to return (default: all)")
	all := fs.Bool("all", false, "follow continuation markers until the last page")
	bodyFile := fs.String("body", "", "send this raw JSON query body instead of building one")
	endpoint := fs.String("endpoint", "", "record database endpoint (default from config)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, err := a.loadSession(ctx)
	if err != nil {
		return err
	}
	db := a.client.Database(*endpoint)
	enc := json.NewEncoder(a.stdout)

	if *bodyFile != "" {
		body, err := os.ReadFile(*bodyFile)
		if err != nil {
			return fmt.Errorf("read query body: %w", err)
		}
		resp, err := db.Query(ctx, sess, body)
		if err != nil {
			return err
		}
		a.persist(ctx, sess)
		return writeRecords(a, enc, resp)
	}

	if *recordType == "" {
		return errors.New("--record-type or --body is required")
	}
	q := record.Query{
		RecordType:   *recordType,
		Zone:         record.ZoneID{Name: *zone},
		DesiredKeys:  *keys,
		ResultsLimit: *limit,
	}
	if *all {
		err = db.QueryAll(ctx, sess, q, func(r record.Record) error { return enc.Encode(r) })
		if err == nil {
			a.persist(ctx, sess)
		}
		return err
	}
	resp, err := db.QueryRecords(ctx, sess, q)
	if err != nil {
		return err
	}
	a.persist(ctx, sess)
	return writeRecords(a, enc, resp)
}

func writeRecords(a *app, enc *json.Encoder, resp *record.QueryResponse) error {
	for _, r := range resp.Records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	if resp.ContinuationMarker != "" {
		fmt.Fprintf(a.stderr, "more records available (use --all)\n")
	}
	return nil
}

func runExportToken(ctx context.Context, a *app, args []string) error {
	if err := a.flags("export-token").Parse(args); err != nil {
		return err
	}
	sess, err := a.loadSession(ctx)
	if err != nil {
		return err
	}
	token, err := a.client.SealSession(ctx, sess)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, token)
	return nil
}
