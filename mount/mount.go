package mount

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Mode defines the permission level for a mount point.
type Mode int

const (
	// ReadOnly allows only read operations.
	ReadOnly Mode = iota
	// ReadWrite allows read and write operations to existing files.
	ReadWrite
	// ReadWriteCreate additionally allows creating files and directories.
	ReadWriteCreate
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "ro"
	case ReadWrite:
		return "rw"
	case ReadWriteCreate:
		return "rwc"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// Mount maps a directory on the host to a path inside the sandbox.
type Mount struct {
	VirtualPath string // Path as seen by the module (e.g., "/data")
	HostPath    string // Absolute directory on the host
	Mode        Mode
}

var (
	ErrNotMounted = errors.New("path not in any mount")
	ErrEscape     = errors.New("path escapes its mount")
	ErrReadOnly   = errors.New("read-only mount")
	ErrNoCreate   = errors.New("mount does not allow creating files")
)

// Set is the mount table of one invocation. Host directories appear at the
// identical guest path so that path arguments need no rewriting; an optional
// scratch directory backs everything else under "/".
type Set struct {
	mu     sync.RWMutex
	mounts []Mount
}

// NewSet returns a set whose root is backed by the scratch directory.
// An empty scratch yields a set with no root mount.
func NewSet(scratch string) (*Set, error) {
	s := &Set{}
	if scratch == "" {
		return s, nil
	}
	hp, err := filepath.Abs(scratch)
	if err != nil {
		return nil, fmt.Errorf("scratch dir: %w", err)
	}
	s.mounts = append(s.mounts, Mount{VirtualPath: "/", HostPath: hp, Mode: ReadWriteCreate})
	return s, nil
}

// GuestPath is the sandbox path a host directory is mounted at.
func GuestPath(hostDir string) string {
	p := filepath.ToSlash(hostDir)
	if vol := filepath.VolumeName(hostDir); vol != "" {
		p = strings.TrimPrefix(p, filepath.ToSlash(vol))
	}
	return path.Clean("/" + p)
}

// Add mounts dir at its own path. A file path mounts its parent directory.
// Adding a directory that is already mounted is a no-op, except that a
// more permissive mode replaces a stricter one.
func (s *Set) Add(dir string, mode Mode) error {
	hp, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("mount %s: %w", dir, err)
	}
	if fi, err := os.Stat(hp); err == nil && !fi.IsDir() {
		hp = filepath.Dir(hp)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	vp := GuestPath(hp)
	for i, m := range s.mounts {
		if m.VirtualPath == vp && m.HostPath == hp {
			if mode > m.Mode {
				s.mounts[i].Mode = mode
			}
			return nil
		}
		if m.VirtualPath == vp && vp != "/" {
			return fmt.Errorf("mount %s: guest path already backed by %s", hp, m.HostPath)
		}
	}
	s.mounts = append(s.mounts, Mount{VirtualPath: vp, HostPath: hp, Mode: mode})
	return nil
}

// Mounts returns the table ordered by guest path.
func (s *Set) Mounts() []Mount {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Mount, len(s.mounts))
	copy(out, s.mounts)
	sort.Slice(out, func(i, j int) bool { return out[i].VirtualPath < out[j].VirtualPath })
	return out
}

// Resolve maps a guest path to a host path using the longest matching mount
// and rejects paths that leave it.
func (s *Set) Resolve(virtualPath string, needWrite bool) (string, error) {
	hp, _, err := s.resolve(virtualPath, needWrite)
	return hp, err
}

func (s *Set) resolve(virtualPath string, needWrite bool) (string, Mount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	vp := path.Clean("/" + strings.TrimPrefix(filepath.ToSlash(virtualPath), "/"))

	var best *Mount
	for i := range s.mounts {
		m := &s.mounts[i]
		if m.VirtualPath == "/" || vp == m.VirtualPath || strings.HasPrefix(vp, m.VirtualPath+"/") {
			if best == nil || len(m.VirtualPath) > len(best.VirtualPath) {
				best = m
			}
		}
	}
	if best == nil {
		return "", Mount{}, fmt.Errorf("%s: %w", virtualPath, ErrNotMounted)
	}
	if needWrite && best.Mode == ReadOnly {
		return "", Mount{}, fmt.Errorf("%s: %w", virtualPath, ErrReadOnly)
	}

	rel := strings.TrimPrefix(vp, best.VirtualPath)
	hostPath := filepath.Join(best.HostPath, filepath.FromSlash(rel))

	r, err := filepath.Rel(best.HostPath, hostPath)
	if err != nil || r == ".." || strings.HasPrefix(r, ".."+string(filepath.Separator)) {
		return "", Mount{}, fmt.Errorf("%s: %w", virtualPath, ErrEscape)
	}
	return hostPath, *best, nil
}

// ReadFile reads a file through the mount table.
func (s *Set) ReadFile(virtualPath string) ([]byte, error) {
	hp, err := s.Resolve(virtualPath, false)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(hp)
}

// Stat stats a file through the mount table.
func (s *Set) Stat(virtualPath string) (fs.FileInfo, error) {
	hp, err := s.Resolve(virtualPath, false)
	if err != nil {
		return nil, err
	}
	return os.Stat(hp)
}

// WriteFile writes a file through the mount table, creating parent
// directories when the mount allows it.
func (s *Set) WriteFile(virtualPath string, data []byte) error {
	hp, m, err := s.resolve(virtualPath, true)
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(hp); errors.Is(statErr, fs.ErrNotExist) {
		if m.Mode != ReadWriteCreate {
			return fmt.Errorf("%s: %w", virtualPath, ErrNoCreate)
		}
		if err := os.MkdirAll(filepath.Dir(hp), 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(hp, data, 0o644)
}
