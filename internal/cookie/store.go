// Package cookie persists the marketplace session cookie header between runs.
package cookie

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// Cookie is one name/value pair observed by a browser session.
type Cookie struct {
	Name   string
	Value  string
	Domain string
}

// Source labels where a loaded cookie came from.
type Source string

// Cookie sources in priority order.
const (
	SourceNone  Source = ""
	SourceValue Source = "DEPOP_COOKIE"
	SourceFile  Source = "DEPOP_COOKIE_FILE"
	SourceCache Source = "cache"
)

// Config locates cookie overrides and the cache file.
type Config struct {
	// Value is an explicit header value that overrides every file.
	Value string
	// File is an explicit file holding the header.
	File string
	// CachePath is where browser sessions persist harvested cookies.
	CachePath string
	// Domain filters harvested cookies, matched as a substring.
	Domain string
}

// Store reads and writes the session cookie on an afero filesystem.
type Store struct {
	fs  afero.Fs
	cfg Config
}

// New builds a Store. A nil fs means the OS filesystem.
func New(fsys afero.Fs, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.CachePath) == "" {
		return nil, fmt.Errorf("cookie cache path is required")
	}
	if cfg.Domain == "" {
		cfg.Domain = "depop"
	}
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Store{fs: fsys, cfg: cfg}, nil
}

// Load returns the first non-empty cookie among the explicit value, the
// explicit file, and the cache file. An empty result with SourceNone means
// the run proceeds anonymously.
func (s *Store) Load() (string, Source, error) {
	if v := strings.TrimSpace(s.cfg.Value); v != "" {
		return v, SourceValue, nil
	}
	if s.cfg.File != "" {
		v, err := s.read(s.cfg.File)
		if err != nil {
			return "", SourceNone, err
		}
		if v != "" {
			return v, SourceFile, nil
		}
	}
	v, err := s.read(s.cfg.CachePath)
	if err != nil {
		return "", SourceNone, err
	}
	if v != "" {
		return v, SourceCache, nil
	}
	return "", SourceNone, nil
}

// Describe renders a human-readable label for a source.
func (s *Store) Describe(src Source) string {
	switch src {
	case SourceValue:
		return "DEPOP_COOKIE"
	case SourceFile:
		return s.cfg.File
	case SourceCache:
		return s.cfg.CachePath
	default:
		return "none"
	}
}

func (s *Store) read(path string) (string, error) {
	data, err := afero.ReadFile(s.fs, path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read cookie file %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Header keeps cookies for the configured domain and joins them as a Cookie
// header value.
func (s *Store) Header(cookies []Cookie) string {
	return Header(cookies, s.cfg.Domain)
}

// Save writes the domain-scoped cookies to the cache path, creating parent
// directories. It reports false when no cookie matched the domain.
func (s *Store) Save(cookies []Cookie) (bool, error) {
	header := s.Header(cookies)
	if header == "" {
		return false, nil
	}
	if dir := filepath.Dir(s.cfg.CachePath); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o750); err != nil {
			return false, fmt.Errorf("create cookie cache dir: %w", err)
		}
	}
	if err := afero.WriteFile(s.fs, s.cfg.CachePath, []byte(header), 0o600); err != nil {
		return false, fmt.Errorf("write cookie cache: %w", err)
	}
	return true, nil
}

// Header joins name=value pairs whose domain contains domain. Cookies with an
// empty name or value are skipped.
func Header(cookies []Cookie, domain string) string {
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		if c.Name == "" || c.Value == "" || !strings.Contains(c.Domain, domain) {
			continue
		}
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
