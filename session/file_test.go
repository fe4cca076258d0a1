package session

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestSaveLoadFilePlain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	sess := populatedSession(t)

	if err := SaveFile(path, sess, ""); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}

	got, err := LoadFile(path, "ignored")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	assertSameSession(t, sess, got)
}

func TestSaveLoadFileSealed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.age")
	sess := populatedSession(t)

	if err := SaveFile(path, sess, "correct horse"); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(raw, []byte(ageHeader)) {
		t.Fatalf("expected age header")
	}
	if bytes.Contains(raw, []byte(sess.SessionID())) {
		t.Fatalf("sealed file leaks session id")
	}

	if _, err := LoadFile(path, ""); !errors.Is(err, ErrPassphraseRequired) {
		t.Fatalf("expected ErrPassphraseRequired, got %v", err)
	}
	if _, err := LoadFile(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
	got, err := LoadFile(path, "correct horse")
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	assertSameSession(t, sess, got)
}
