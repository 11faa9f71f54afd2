package testutil

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"testing"

	"golang.org/x/crypto/ssh"
)

// GenerateSSHPrivateKey returns a fresh ed25519 private key in OpenSSH PEM
// format.
func GenerateSSHPrivateKey(t *testing.T) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "devman test key")
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return string(pem.EncodeToMemory(block))
}

// WriteSSHPrivateKeyOnDisk writes a generated key to a temp file and returns
// its path; the file is removed when the test finishes.
func WriteSSHPrivateKeyOnDisk(t *testing.T) string {
	t.Helper()
	path, cleanup, err := WriteStringToTempFile(GenerateSSHPrivateKey(t))
	if err != nil {
		t.Fatalf("failed to write key file: %v", err)
	}
	t.Cleanup(cleanup)
	return path
}

func WriteStringToTempFile(content string) (string, func(), error) {
	tempFile, err := os.CreateTemp("", "devman-*")
	if err != nil {
		return "", nil, err
	}

	if _, err := tempFile.WriteString(content); err != nil {
		tempFile.Close()
		os.Remove(tempFile.Name())
		return "", nil, err
	}

	tempFile.Close()

	cleanup := func() {
		os.Remove(tempFile.Name())
	}

	return tempFile.Name(), cleanup, nil
}
