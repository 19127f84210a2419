// Package manifest handles lox.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "lox.toml"

// Manifest represents a lox.toml configuration.
type Manifest struct {
	VM    VMConfig    `toml:"vm" json:"vm"`
	REPL  REPLConfig  `toml:"repl" json:"repl"`
	Log   LogConfig   `toml:"log" json:"log"`
	Cache CacheConfig `toml:"cache" json:"cache"`

	// Dir is the directory containing the lox.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// VMConfig configures the virtual machine.
type VMConfig struct {
	Trace      bool `toml:"trace" json:"trace"`
	StackLimit int  `toml:"stack-limit" json:"stack-limit"`
}

// REPLConfig configures the interactive loop.
type REPLConfig struct {
	Prompt string `toml:"prompt" json:"prompt"`
}

// LogConfig configures commonlog.
type LogConfig struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// CacheConfig configures the compiled chunk cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled" json:"enabled"`
	Path    string `toml:"path" json:"path"`
}

// Default returns the configuration used when no lox.toml exists.
func Default() *Manifest {
	return &Manifest{
		VM: VMConfig{
			StackLimit: 256,
		},
		REPL: REPLConfig{
			Prompt: "> ",
		},
		Cache: CacheConfig{
			Path: filepath.Join(".lox", "cache.db"),
		},
	}
}

// Load parses the lox.toml file in dir. Keys missing from the file keep
// their defaults; the result is validated against the config schema.
func Load(dir string) (*Manifest, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses a configuration file at an explicit path.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	m := Default()
	if err := toml.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	if err := Validate(m); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}

	return m, nil
}

// FindAndLoad walks up from startDir to find a lox.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// CachePath returns the absolute path of the chunk cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) || m.Dir == "" {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// LogFile returns the log file path, or nil for stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.Log.File
	if !filepath.IsAbs(path) && m.Dir != "" {
		path = filepath.Join(m.Dir, path)
	}
	return &path
}
