// Package manifest provides loading and validation of loratune train manifests.
//
// A train manifest is a YAML or JSON file describing one fine-tuning job, so
// a run can be repeated without retyping its flags.
//
// Manifests are checked against an embedded JSON Schema before use, which
// rejects unknown keys and non-positive hyperparameters.
//
// Example manifest (YAML):
//
//	version: "1.0"
//	model: models/base.gguf
//	data: data/train.jsonl
//	output: out/lora.bin
//	hyperparameters:
//	  epochs: 5
//	  learning_rate: 0.0001
//	engine:
//	  path: /opt/llama.cpp/llama-cli
package manifest

import (
	"path/filepath"

	"github.com/3leaps/loratune/pkg/finetune"
)

// Manifest represents a validated train manifest.
type Manifest struct {
	// Schema is an optional JSON Schema reference for editor support.
	Schema string `json:"$schema,omitempty" yaml:"$schema,omitempty"`

	// Version is the manifest schema version. Must be "1.0".
	Version string `json:"version" yaml:"version"`

	// Name is an optional label for the job.
	Name string `json:"name,omitempty" yaml:"name,omitempty"`

	Model  string `json:"model" yaml:"model"`
	Data   string `json:"data" yaml:"data"`
	Output string `json:"output" yaml:"output"`

	// Hyperparameters left out fall back to configured defaults.
	Hyperparameters Hyperparameters `json:"hyperparameters,omitempty" yaml:"hyperparameters,omitempty"`

	Engine EngineConfig `json:"engine,omitempty" yaml:"engine,omitempty"`
}

// Hyperparameters are optional tuning values. Zero means unset; the schema
// rejects explicit zeros.
type Hyperparameters struct {
	Epochs       int     `json:"epochs,omitempty" yaml:"epochs,omitempty"`
	BatchSize    int     `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	LearningRate float64 `json:"learning_rate,omitempty" yaml:"learning_rate,omitempty"`
	Threads      int     `json:"threads,omitempty" yaml:"threads,omitempty"`
	CtxSize      int     `json:"ctx_size,omitempty" yaml:"ctx_size,omitempty"`
}

// EngineConfig selects the training engine executable.
type EngineConfig struct {
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

// resolvePaths makes relative file paths relative to baseDir, the directory
// holding the manifest. A bare engine name is left for PATH lookup.
func (m *Manifest) resolvePaths(baseDir string) {
	if baseDir == "" {
		return
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(baseDir, p)
	}
	m.Model = resolve(m.Model)
	m.Data = resolve(m.Data)
	m.Output = resolve(m.Output)
	if filepath.Base(m.Engine.Path) != m.Engine.Path {
		m.Engine.Path = resolve(m.Engine.Path)
	}
}

// ApplyTo overlays the manifest onto p. Values the manifest leaves unset keep
// whatever p already holds.
func (m *Manifest) ApplyTo(p *finetune.Params) {
	if m.Model != "" {
		p.ModelPath = m.Model
	}
	if m.Data != "" {
		p.DataPath = m.Data
	}
	if m.Output != "" {
		p.OutputPath = m.Output
	}
	h := m.Hyperparameters
	if h.Epochs > 0 {
		p.Epochs = h.Epochs
	}
	if h.BatchSize > 0 {
		p.BatchSize = h.BatchSize
	}
	if h.LearningRate > 0 {
		p.LearningRate = h.LearningRate
	}
	if h.Threads > 0 {
		p.Threads = h.Threads
	}
	if h.CtxSize > 0 {
		p.CtxSize = h.CtxSize
	}
}
