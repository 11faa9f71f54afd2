package devices

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/go-homedir"

	"github.com/webosbrew/devman/pkg/logger"
)

const storeFilePermissions = 0600

// Store reads and writes the device descriptor file. The on-disk format is
// the novacom device list: a JSON array of descriptors, shared with the
// webOS CLI tools.
type Store struct {
	Path   string
	Logger *logger.Logger
}

func DefaultStorePath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, ".webos", "ose", "novacom-devices.json"), nil
}

func NewStore(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = DefaultStorePath()
		if err != nil {
			return nil, err
		}
	}
	return &Store{
		Path:   path,
		Logger: logger.Get(),
	}, nil
}

// List returns all known devices. A missing store file is an empty list, not
// an error.
func (s *Store) List() ([]Device, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read device store %s: %w", s.Path, err)
	}
	var list []Device
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to parse device store %s: %w", s.Path, err)
	}
	return list, nil
}

func (s *Store) Find(name string) (Device, error) {
	list, err := s.List()
	if err != nil {
		return Device{}, err
	}
	for _, d := range list {
		if d.Name == name {
			return d, nil
		}
	}
	return Device{}, fmt.Errorf("unknown device: %s", name)
}

// Default returns the device marked default, or the first device when none is.
func (s *Store) Default() (Device, error) {
	list, err := s.List()
	if err != nil {
		return Device{}, err
	}
	if len(list) == 0 {
		return Device{}, fmt.Errorf("no devices configured in %s", s.Path)
	}
	for _, d := range list {
		if d.Default {
			return d, nil
		}
	}
	return list[0], nil
}

// Add inserts or replaces a device by name and persists the store.
func (s *Store) Add(device Device) error {
	if err := device.Validate(); err != nil {
		return err
	}
	list, err := s.List()
	if err != nil {
		return err
	}
	replaced := false
	for i, d := range list {
		if d.Name == device.Name {
			list[i] = device
			replaced = true
			break
		}
	}
	if !replaced {
		list = append(list, device)
	}
	return s.save(list)
}

func (s *Store) Remove(name string) error {
	list, err := s.List()
	if err != nil {
		return err
	}
	kept := list[:0]
	for _, d := range list {
		if d.Name != name {
			kept = append(kept, d)
		}
	}
	if len(kept) == len(list) {
		return fmt.Errorf("unknown device: %s", name)
	}
	return s.save(kept)
}

func (s *Store) save(list []Device) error {
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode device store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("failed to create device store directory: %w", err)
	}
	if err := os.WriteFile(s.Path, data, storeFilePermissions); err != nil {
		return fmt.Errorf("failed to write device store %s: %w", s.Path, err)
	}
	s.Logger.Debugf("Saved %d devices to %s", len(list), s.Path)
	return nil
}
