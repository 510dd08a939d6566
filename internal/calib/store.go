package calib

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ErrMatrixNotFound indicates no stored matrix for the serial/channel.
var ErrMatrixNotFound = errors.New("correction matrix not found")

// Store persists named correction matrices per device serial and
// channel as YAML files, one file per device.
type Store struct {
	dir string
}

type deviceMatrices struct {
	Serial   string         `yaml:"serial"`
	Channels map[int]Matrix `yaml:"channels"`
}

// NewStore creates a store rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("calib: create store dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Get loads the matrix stored for a device channel.
func (s *Store) Get(serial string, ch int) (Matrix, error) {
	dm, err := s.load(serial)
	if err != nil {
		return Matrix{}, err
	}
	m, ok := dm.Channels[ch]
	if !ok {
		return Matrix{}, ErrMatrixNotFound
	}
	return m, nil
}

// All loads every stored matrix for a device, keyed by channel.
func (s *Store) All(serial string) (map[int]Matrix, error) {
	dm, err := s.load(serial)
	if errors.Is(err, ErrMatrixNotFound) {
		return map[int]Matrix{}, nil
	}
	if err != nil {
		return nil, err
	}
	return dm.Channels, nil
}

// Set stores the matrix for a device channel. The write is atomic:
// the file is replaced via rename after a full write.
func (s *Store) Set(serial string, ch int, m Matrix) error {
	dm, err := s.load(serial)
	if err != nil && !errors.Is(err, ErrMatrixNotFound) {
		return err
	}
	if dm == nil {
		dm = &deviceMatrices{Serial: serial, Channels: make(map[int]Matrix)}
	}
	dm.Channels[ch] = m

	data, err := yaml.Marshal(dm)
	if err != nil {
		return fmt.Errorf("calib: marshal matrices: %w", err)
	}

	path := s.path(serial)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("calib: write matrices: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("calib: replace matrices: %w", err)
	}
	return nil
}

func (s *Store) path(serial string) string {
	return filepath.Join(s.dir, serial+".yml")
}

func (s *Store) load(serial string) (*deviceMatrices, error) {
	data, err := os.ReadFile(s.path(serial))
	if os.IsNotExist(err) {
		return nil, ErrMatrixNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("calib: read matrices: %w", err)
	}

	var dm deviceMatrices
	if err := yaml.Unmarshal(data, &dm); err != nil {
		return nil, fmt.Errorf("calib: parse matrices: %w", err)
	}
	if dm.Channels == nil {
		dm.Channels = make(map[int]Matrix)
	}
	return &dm, nil
}
