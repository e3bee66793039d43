package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/nacl/secretbox"
	"golang.org/x/crypto/pbkdf2"

	"github.com/opd-ai/courier/limits"
)

const (
	// PBKDF2Iterations is the number of iterations for key derivation.
	PBKDF2Iterations = 100000
	// EncryptionVersion is the current on-disk format version.
	EncryptionVersion = 1
	// SaltSize is the size of the key-derivation salt.
	SaltSize = 32

	nonceSize  = 24
	headerSize = 2 + nonceSize
)

// FileStore keeps one encrypted credential file per client id in a directory.
// Files are sealed with NaCl secretbox under a key derived from a passphrase.
//
// Format: [version:2][nonce:24][secretbox(ciphertext+tag)]
type FileStore struct {
	key      [32]byte
	dir      string
	saltFile string
}

// NewFileStore opens (creating if needed) an encrypted credential directory.
func NewFileStore(dir string, passphrase []byte) (*FileStore, error) {
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("passphrase cannot be empty")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	fs := &FileStore{
		dir:      dir,
		saltFile: filepath.Join(dir, ".salt"),
	}
	salt, err := fs.loadOrGenerateSalt()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize salt: %w", err)
	}

	derived := pbkdf2.Key(passphrase, salt, PBKDF2Iterations, 32, sha256.New)
	copy(fs.key[:], derived)
	wipe(derived)

	logrus.WithFields(logrus.Fields{
		"function": "NewFileStore",
		"dir":      dir,
	}).Info("Opened encrypted session store")
	return fs, nil
}

func (fs *FileStore) loadOrGenerateSalt() ([]byte, error) {
	data, err := os.ReadFile(fs.saltFile)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read salt file: %w", err)
		}
		salt := make([]byte, SaltSize)
		if _, err := rand.Read(salt); err != nil {
			return nil, fmt.Errorf("failed to generate salt: %w", err)
		}
		if err := os.WriteFile(fs.saltFile, salt, 0o600); err != nil {
			return nil, fmt.Errorf("failed to save salt: %w", err)
		}
		return salt, nil
	}
	if len(data) != SaltSize {
		return nil, fmt.Errorf("invalid salt file size: got %d, want %d", len(data), SaltSize)
	}
	return data, nil
}

// path maps a client id to a file name that cannot escape the directory.
func (fs *FileStore) path(clientID string) string {
	return filepath.Join(fs.dir, "session-"+hex.EncodeToString([]byte(clientID))+".bin")
}

// Load implements Store.
func (fs *FileStore) Load(ctx context.Context, clientID string) ([]byte, error) {
	if err := checkArgs(ctx, clientID); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fs.path(clientID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read session file: %w", err)
	}
	if len(data) < headerSize+secretbox.Overhead {
		return nil, fmt.Errorf("session file too short: %d bytes", len(data))
	}
	if v := binary.BigEndian.Uint16(data[0:2]); v != EncryptionVersion {
		return nil, fmt.Errorf("unsupported session format version: %d (expected %d)", v, EncryptionVersion)
	}

	var nonce [nonceSize]byte
	copy(nonce[:], data[2:headerSize])
	plaintext, ok := secretbox.Open(nil, data[headerSize:], &nonce, &fs.key)
	if !ok {
		return nil, fmt.Errorf("session file authentication failed")
	}
	return plaintext, nil
}

// Save implements Store. The file is replaced atomically.
func (fs *FileStore) Save(ctx context.Context, clientID string, data []byte) error {
	if err := checkArgs(ctx, clientID); err != nil {
		return err
	}
	if err := limits.ValidateCredential(data); err != nil {
		return err
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}
	out := make([]byte, headerSize, headerSize+len(data)+secretbox.Overhead)
	binary.BigEndian.PutUint16(out[0:2], EncryptionVersion)
	copy(out[2:headerSize], nonce[:])
	out = secretbox.Seal(out, data, &nonce, &fs.key)

	final := fs.path(clientID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, out, 0o600); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename file: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function":  "FileStore.Save",
		"client_id": clientID,
		"size":      len(data),
	}).Debug("Session credential saved")
	return nil
}

// Delete implements Store.
func (fs *FileStore) Delete(ctx context.Context, clientID string) error {
	if err := checkArgs(ctx, clientID); err != nil {
		return err
	}
	if err := os.Remove(fs.path(clientID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete session file: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"function":  "FileStore.Delete",
		"client_id": clientID,
	}).Info("Session credential deleted")
	return nil
}

// Close wipes the derived key from memory.
func (fs *FileStore) Close() error {
	wipe(fs.key[:])
	return nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
