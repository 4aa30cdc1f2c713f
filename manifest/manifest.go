// Package manifest reads windlass.toml, the per-project configuration
// for running images.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Filename is what FindAndLoad looks for while walking up from the
// working directory.
const Filename = "windlass.toml"

// Manifest is the decoded windlass.toml.
type Manifest struct {
	VM    VMConfig    `toml:"vm"`
	Image ImageConfig `toml:"image"`
	Log   LogConfig   `toml:"log"`

	// Dir is where the manifest was found; relative paths inside it
	// resolve against this.
	Dir string `toml:"-"`
}

// VMConfig sizes the machine. Zero values defer to the image, then to
// the built-in defaults.
type VMConfig struct {
	StackSize  uint64 `toml:"stack-size"`
	MemorySize uint64 `toml:"memory-size"`
}

// ImageConfig names the program to run.
type ImageConfig struct {
	Path  string `toml:"path"`
	Entry string `toml:"entry"`
}

// LogConfig tunes diagnostic output.
type LogConfig struct {
	Verbosity int `toml:"verbosity"`
}

// Default returns the manifest used when no windlass.toml exists.
func Default() *Manifest {
	return &Manifest{
		Image: ImageConfig{Entry: "main"},
		Dir:   ".",
	}
}

// Load reads and decodes one manifest file.
func Load(path string) (*Manifest, error) {
	m := Default()
	meta, err := toml.DecodeFile(path, m)
	if err != nil {
		return nil, fmt.Errorf("manifest: decoding %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("manifest: %s has unknown key %q", path, undecoded[0].String())
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// FindAndLoad walks up from dir looking for windlass.toml. If none is
// found the defaults come back, not an error.
func FindAndLoad(dir string) (*Manifest, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("manifest: resolving %s: %w", dir, err)
	}
	for {
		path := filepath.Join(dir, Filename)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// ImagePath resolves the configured image path against the manifest's
// directory.
func (m *Manifest) ImagePath() string {
	if m.Image.Path == "" || filepath.IsAbs(m.Image.Path) {
		return m.Image.Path
	}
	return filepath.Join(m.Dir, m.Image.Path)
}
