package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	goICloud "github.com/MrEthical07/goICloud"
	"github.com/MrEthical07/goICloud/session"
)

var errNoSession = errors.New("no saved session; run icloudctl login first")

const passphraseEnv = "ICLOUDCTL_PASSPHRASE"

// sessionBackend persists the single session icloudctl works with.
type sessionBackend interface {
	// Load returns errNoSession when nothing has been saved.
	Load(ctx context.Context) (*session.Session, error)
	Save(ctx context.Context, sess *session.Session) error
	// ClientID is the id a new session should use, or "" for a fresh one.
	ClientID() string
}

type fileBackend struct {
	path       string
	passphrase string
	clientID   string
}

func (b *fileBackend) Load(context.Context) (*session.Session, error) {
	sess, err := session.LoadFile(b.path, b.passphrase)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, errNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", b.path, err)
	}
	return sess, nil
}

func (b *fileBackend) Save(_ context.Context, sess *session.Session) error {
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("create session directory: %w", err)
	}
	return session.SaveFile(b.path, sess, b.passphrase)
}

func (b *fileBackend) ClientID() string { return b.clientID }

type redisBackend struct {
	client   *goICloud.Client
	clientID string
}

func (b *redisBackend) Load(ctx context.Context) (*session.Session, error) {
	sess, err := b.client.LoadSession(ctx, b.clientID)
	if errors.Is(err, session.ErrSessionNotFound) {
		return nil, errNoSession
	}
	return sess, err
}

func (b *redisBackend) Save(ctx context.Context, sess *session.Session) error {
	return b.client.SaveSession(ctx, sess)
}

func (b *redisBackend) ClientID() string { return b.clientID }

func defaultSessionPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate config directory (use --session-file): %w", err)
	}
	return filepath.Join(dir, "icloudctl", "session.json"), nil
}

func readPassphrase(path string) (string, error) {
	if path == "" {
		return os.Getenv(passphraseEnv), nil
	}
	return readSecretFile(path)
}

// readSecretFile reads a secret and strips trailing newlines.
func readSecretFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	s := strings.TrimRight(string(data), "\r\n")
	if s == "" {
		return "", fmt.Errorf("%s is empty", path)
	}
	return s, nil
}
