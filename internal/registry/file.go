package registry

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// networkFile is the on-disk layout of deployments/<network>.yaml.
type networkFile struct {
	Network     string       `yaml:"network"`
	ChainID     int64        `yaml:"chain_id"`
	Deployments []Deployment `yaml:"deployments"`
}

// FileStore keeps one YAML file per network under a directory.
type FileStore struct {
	dir string
	mu  sync.Mutex
}

// NewFileStore creates a FileStore rooted at dir. The directory is created on first Save.
func NewFileStore(dir string) *FileStore {
	if dir == "" {
		dir = "deployments"
	}
	return &FileStore{dir: dir}
}

func (s *FileStore) path(network string) string {
	return filepath.Join(s.dir, network+".yaml")
}

func (s *FileStore) Save(ctx context.Context, d *Deployment) error {
	if d.Network == "" {
		return fmt.Errorf("save deployment: network is required")
	}
	prepare(d)

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read(d.Network)
	if err != nil {
		return err
	}
	f.Network = d.Network
	f.ChainID = d.ChainID
	f.Deployments = append(f.Deployments, *d)
	return s.write(f)
}

func (s *FileStore) Latest(ctx context.Context, network, contract string) (*Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.read(network)
	if err != nil {
		return nil, err
	}
	for i := len(f.Deployments) - 1; i >= 0; i-- {
		if strings.EqualFold(f.Deployments[i].Contract, contract) {
			d := f.Deployments[i]
			return &d, nil
		}
	}
	return nil, ErrNotFound
}

func (s *FileStore) List(ctx context.Context, network string) ([]Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	networks := []string{network}
	if network == "" {
		var err error
		if networks, err = s.networks(); err != nil {
			return nil, err
		}
	}

	var out []Deployment
	for _, n := range networks {
		f, err := s.read(n)
		if err != nil {
			return nil, err
		}
		out = append(out, f.Deployments...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DeployedAt.Before(out[j].DeployedAt)
	})
	return out, nil
}

func (s *FileStore) MarkVerified(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	networks, err := s.networks()
	if err != nil {
		return err
	}
	for _, n := range networks {
		f, err := s.read(n)
		if err != nil {
			return err
		}
		for i := range f.Deployments {
			if f.Deployments[i].ID == id {
				f.Deployments[i].Verified = true
				return s.write(f)
			}
		}
	}
	return ErrNotFound
}

// networks lists the network names that have a file in the store.
func (s *FileStore) networks() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("list deployment files: %w", err)
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), ".yaml"))
	}
	sort.Strings(names)
	return names, nil
}

func (s *FileStore) read(network string) (*networkFile, error) {
	data, err := os.ReadFile(s.path(network))
	if errors.Is(err, fs.ErrNotExist) {
		return &networkFile{Network: network}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path(network), err)
	}

	var f networkFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path(network), err)
	}
	if f.Network == "" {
		f.Network = network
	}
	return &f, nil
}

// write replaces the network file atomically.
func (s *FileStore) write(f *networkFile) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", s.dir, err)
	}

	data, err := yaml.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal deployments: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+f.Network+"-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write deployments: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write deployments: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path(f.Network)); err != nil {
		return fmt.Errorf("replace %s: %w", s.path(f.Network), err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
