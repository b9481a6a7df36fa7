// Package voice loads HTS voice definitions from YAML files.
//
// Each file in the voice directory defines one voice:
//
//	name: kal
//	description: US English male
//	dir: /usr/share/hts/kal   # model root; relative to the voice file
//	engine_params:
//	  "-htsversion": "2.1.1"
//	  "-s": 16000
//	output_params: {}
//
// Relative model paths in engine_params, and model files left unnamed, are
// resolved against dir. The engine version is pinned at load time so that
// filled-in defaults cannot change how a voice is dispatched.
package voice

import (
	"errors"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/nadzzz/htsbridge/internal/binding"
	"github.com/nadzzz/htsbridge/internal/hts"
	"github.com/nadzzz/htsbridge/internal/params"
)

// ErrUnknownVoice is returned by Lookup for names not in the catalog.
var ErrUnknownVoice = errors.New("unknown voice")

// Voice is one voice definition.
type Voice struct {
	Name         string      `yaml:"name" json:"name"`
	Description  string      `yaml:"description" json:"description,omitempty"`
	Dir          string      `yaml:"dir" json:"dir"`
	EngineParams params.List `yaml:"engine_params" json:"engine_params,omitempty"`
	OutputParams params.List `yaml:"output_params" json:"output_params,omitempty"`
}

// Params returns copies of the voice's parameter lists with overrides
// applied on top.
func (v *Voice) Params(engineOverrides, outputOverrides params.List) (engineParams, outputParams params.List) {
	return v.EngineParams.Merge(engineOverrides), v.OutputParams.Merge(outputOverrides)
}

// resolve pins the engine version and makes every model path absolute.
// base is the directory of the file the voice was read from.
func (v *Voice) resolve(base string) {
	if v.Dir == "" {
		v.Dir = base
	} else if !filepath.IsAbs(v.Dir) {
		v.Dir = filepath.Join(base, v.Dir)
	}

	p := maps.Clone(v.EngineParams)
	if p == nil {
		p = params.List{}
	}
	p[hts.KeyVersion] = string(binding.Resolve(p))

	abs := func(path string) string {
		if path == "" || filepath.IsAbs(path) {
			return path
		}
		return filepath.Join(v.Dir, path)
	}
	if p.Has(hts.KeyVoiceFile) {
		p[hts.KeyVoiceFile] = abs(p.String(hts.KeyVoiceFile, ""))
	}
	for _, key := range hts.PathKeys() {
		p[key] = abs(p.String(key, hts.DefaultPath(key)))
	}
	v.EngineParams = p
	if v.OutputParams == nil {
		v.OutputParams = params.List{}
	}
}

func (v *Voice) validate() error {
	if v.Name == "" {
		return errors.New("voice has no name")
	}
	return nil
}

// Catalog is an immutable set of voices.
type Catalog struct {
	voices map[string]*Voice
	def    string
}

// NewCatalog builds a catalog. def names the default voice; when empty the
// alphabetically first voice is the default.
func NewCatalog(voices []*Voice, def string) (*Catalog, error) {
	c := &Catalog{voices: make(map[string]*Voice, len(voices)), def: def}
	for _, v := range voices {
		if _, dup := c.voices[v.Name]; dup {
			return nil, fmt.Errorf("voice %q defined twice", v.Name)
		}
		c.voices[v.Name] = v
	}
	if c.def == "" {
		if names := c.Names(); len(names) > 0 {
			c.def = names[0]
		}
	} else if _, ok := c.voices[c.def]; !ok {
		return nil, fmt.Errorf("default voice %q: %w", c.def, ErrUnknownVoice)
	}
	return c, nil
}

// Lookup returns the named voice. An empty name selects the default.
func (c *Catalog) Lookup(name string) (*Voice, error) {
	if name == "" {
		name = c.def
	}
	v, ok := c.voices[name]
	if !ok {
		return nil, fmt.Errorf("%w %q", ErrUnknownVoice, name)
	}
	return v, nil
}

// Default returns the default voice name, or "" for an empty catalog.
func (c *Catalog) Default() string { return c.def }

// Names returns the voice names, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.voices))
	for name := range c.voices {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of voices.
func (c *Catalog) Len() int { return len(c.voices) }
