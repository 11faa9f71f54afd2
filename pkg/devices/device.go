package devices

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// Device describes one remote webOS target. Name is the pool key used by the
// session manager; exactly one of PrivateKey, Password or neither selects the
// authentication path, in that priority order.
type Device struct {
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`
	PrivateKey string `json:"privateKey,omitempty"`
	Passphrase string `json:"passphrase,omitempty"`
	Default    bool   `json:"default,omitempty"`

	// New marks a disposable probe target: connections to it are never pooled.
	New bool `json:"-"`
}

func (d Device) Addr() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

func (d Device) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("device name cannot be empty")
	}
	if d.Host == "" {
		return fmt.Errorf("device host cannot be empty")
	}
	if d.Port <= 0 || d.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", d.Port)
	}
	if d.Username == "" {
		return fmt.Errorf("device username cannot be empty")
	}
	return nil
}

// PrivateKeyData resolves the configured private key to PEM bytes. The key may
// be inline PEM, an absolute path, or a file name relative to ~/.ssh.
func (d Device) PrivateKeyData() ([]byte, error) {
	if d.PrivateKey == "" {
		return nil, fmt.Errorf("device %s has no private key configured", d.Name)
	}
	if strings.HasPrefix(d.PrivateKey, "-----BEGIN") {
		return []byte(d.PrivateKey), nil
	}
	path := d.PrivateKey
	if !filepath.IsAbs(path) {
		home, err := homedir.Dir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		path = filepath.Join(home, ".ssh", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read private key %s: %w", path, err)
	}
	return data, nil
}
