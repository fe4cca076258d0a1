package session

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

const ageHeader = "age-encryption.org/"

// ErrPassphraseRequired is returned when loading a sealed session file without a passphrase.
var ErrPassphraseRequired = errors.New("session file is sealed and requires a passphrase")

// SaveFile writes sess to path with mode 0600. A non-empty passphrase seals the
// JSON encoding with age scrypt encryption; an empty one writes plain JSON.
// The file is replaced atomically.
func SaveFile(path string, sess *Session, passphrase string) error {
	data, err := Encode(sess)
	if err != nil {
		return err
	}
	if passphrase != "" {
		data, err = seal(data, passphrase)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("creating session file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("restricting session file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing session file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing session file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing session file: %w", err)
	}
	return nil
}

// LoadFile reads a session written by [SaveFile]. Sealed files need the same
// passphrase; plain files ignore it.
func LoadFile(path string, passphrase string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, []byte(ageHeader)) {
		if passphrase == "" {
			return nil, ErrPassphraseRequired
		}
		data, err = open(data, passphrase)
		if err != nil {
			return nil, err
		}
	}
	return Decode(data)
}

func seal(plaintext []byte, passphrase string) ([]byte, error) {
	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	var out bytes.Buffer
	w, err := age.Encrypt(&out, recipient)
	if err != nil {
		return nil, fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing plaintext to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing age encryption: %w", err)
	}
	return out.Bytes(), nil
}

func open(ciphertext []byte, passphrase string) ([]byte, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(ciphertext), identity)
	if err != nil {
		return nil, fmt.Errorf("decrypting session file: %w", err)
	}
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading decrypted session: %w", err)
	}
	return plaintext, nil
}
