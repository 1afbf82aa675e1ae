package manifest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/loratune/pkg/finetune"
)

func validManifestYAML() string {
	return `version: "1.0"
model: /models/base.gguf
data: /data/train.jsonl
output: /out/lora.bin
`
}

func validManifestJSON() string {
	return `{
  "version": "1.0",
  "model": "/models/base.gguf",
  "data": "/data/train.jsonl",
  "output": "/out/lora.bin"
}`
}

func fullManifestYAML() string {
	return `$schema: https://schemas.3leaps.dev/loratune/v1.0.0/train-manifest.schema.json
version: "1.0"
name: tinyllama-arith
model: models/base.gguf
data: data/train.jsonl
output: out/lora.bin
hyperparameters:
  epochs: 5
  batch_size: 8
  learning_rate: 0.0001
  threads: 16
  ctx_size: 2048
engine:
  path: bin/llama-cli
`
}

func writeManifest(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		filename    string
		wantErr     bool
		errContains string
		validate    func(t *testing.T, m *Manifest)
	}{
		{
			name:     "valid YAML manifest",
			content:  validManifestYAML(),
			filename: "train.yaml",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "1.0", m.Version)
				assert.Equal(t, "/models/base.gguf", m.Model)
				assert.Equal(t, "/data/train.jsonl", m.Data)
				assert.Equal(t, "/out/lora.bin", m.Output)
				assert.Zero(t, m.Hyperparameters.Epochs)
			},
		},
		{
			name:     "valid JSON manifest",
			content:  validManifestJSON(),
			filename: "train.json",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "/out/lora.bin", m.Output)
			},
		},
		{
			name:     "full manifest",
			content:  fullManifestYAML(),
			filename: "full.yml",
			validate: func(t *testing.T, m *Manifest) {
				assert.Equal(t, "tinyllama-arith", m.Name)
				assert.Equal(t, 5, m.Hyperparameters.Epochs)
				assert.Equal(t, 8, m.Hyperparameters.BatchSize)
				assert.Equal(t, 0.0001, m.Hyperparameters.LearningRate)
				assert.Equal(t, 16, m.Hyperparameters.Threads)
				assert.Equal(t, 2048, m.Hyperparameters.CtxSize)
				assert.True(t, filepath.IsAbs(m.Model), "relative paths resolve against the manifest dir")
				assert.True(t, strings.HasSuffix(m.Engine.Path, filepath.Join("bin", "llama-cli")))
			},
		},
		{
			name:     "unknown top-level field",
			content:  validManifestYAML() + "lora_rank: 8\n",
			filename: "train.yaml",
			wantErr:  true,
		},
		{
			name:     "unknown hyperparameter",
			content:  validManifestYAML() + "hyperparameters:\n  momentum: 0.9\n",
			filename: "train.yaml",
			wantErr:  true,
		},
		{
			name:     "missing output",
			content:  "version: \"1.0\"\nmodel: m.gguf\ndata: d.jsonl\n",
			filename: "train.yaml",
			wantErr:  true,
		},
		{
			name:     "zero epochs",
			content:  validManifestYAML() + "hyperparameters:\n  epochs: 0\n",
			filename: "train.yaml",
			wantErr:  true,
		},
		{
			name:     "negative learning rate",
			content:  validManifestYAML() + "hyperparameters:\n  learning_rate: -0.1\n",
			filename: "train.yaml",
			wantErr:  true,
		},
		{
			name:     "wrong version",
			content:  strings.Replace(validManifestYAML(), `"1.0"`, `"2.0"`, 1),
			filename: "train.yaml",
			wantErr:  true,
		},
		{
			name:        "malformed YAML",
			content:     "version: [unclosed",
			filename:    "train.yaml",
			wantErr:     true,
			errContains: "invalid YAML",
		},
		{
			name:        "empty file",
			content:     "",
			filename:    "train.yaml",
			wantErr:     true,
			errContains: "empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeManifest(t, tt.filename, tt.content)

			m, err := Load(path)
			if tt.wantErr {
				require.Error(t, err)
				if tt.errContains != "" {
					assert.Contains(t, err.Error(), tt.errContains)
				}
				return
			}
			require.NoError(t, err)
			if tt.validate != nil {
				tt.validate(t, m)
			}
		})
	}
}

func TestLoad_FileErrors(t *testing.T) {
	t.Run("file not found", func(t *testing.T) {
		_, err := Load("/nonexistent/path/train.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("permission denied", func(t *testing.T) {
		if os.Getuid() == 0 {
			t.Skip("skipping permission test when running as root")
		}

		path := filepath.Join(t.TempDir(), "noperm.yaml")
		require.NoError(t, os.WriteFile(path, []byte(validManifestYAML()), 0o000))
		t.Cleanup(func() {
			_ = os.Chmod(path, 0o644)
		})

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "permission")
	})
}

func TestDecode(t *testing.T) {
	t.Run("JSON is read as YAML", func(t *testing.T) {
		m, err := decode([]byte(validManifestJSON()))
		require.NoError(t, err)
		assert.Equal(t, "/data/train.jsonl", m.Data)
	})

	t.Run("relative paths stay relative without a file", func(t *testing.T) {
		m, err := decode([]byte(fullManifestYAML()))
		require.NoError(t, err)
		assert.Equal(t, "models/base.gguf", m.Model)
		assert.Equal(t, 0.0001, m.Hyperparameters.LearningRate)
	})

	t.Run("comments only", func(t *testing.T) {
		_, err := decode([]byte("# nothing here\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty")
	})

	t.Run("scalar document", func(t *testing.T) {
		_, err := decode([]byte("just a string\n"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid YAML")
	})

	t.Run("unknown keys reach the schema", func(t *testing.T) {
		_, err := decode([]byte(validManifestJSON()[:len(validManifestJSON())-1] + `, "lora_rank": 8}`))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestApplyTo(t *testing.T) {
	t.Run("overlays set values only", func(t *testing.T) {
		m := &Manifest{
			Model:  "/m.gguf",
			Data:   "/d.jsonl",
			Output: "/o.bin",
			Hyperparameters: Hyperparameters{
				Epochs:       10,
				LearningRate: 0.001,
			},
		}
		p := finetune.DefaultParams()
		m.ApplyTo(&p)

		assert.Equal(t, "/m.gguf", p.ModelPath)
		assert.Equal(t, "/d.jsonl", p.DataPath)
		assert.Equal(t, "/o.bin", p.OutputPath)
		assert.Equal(t, 10, p.Epochs)
		assert.Equal(t, 0.001, p.LearningRate)
		assert.Equal(t, finetune.DefaultBatchSize, p.BatchSize)
		assert.Equal(t, finetune.DefaultThreads, p.Threads)
		assert.Equal(t, finetune.DefaultCtxSize, p.CtxSize)
	})

	t.Run("empty manifest changes nothing", func(t *testing.T) {
		p := finetune.DefaultParams()
		p.ModelPath = "/keep.gguf"
		(&Manifest{}).ApplyTo(&p)
		assert.Equal(t, "/keep.gguf", p.ModelPath)
		assert.Equal(t, finetune.DefaultEpochs, p.Epochs)
	})
}

func TestResolvePaths(t *testing.T) {
	base := filepath.Join(string(filepath.Separator), "jobs")
	m := &Manifest{
		Model:  "base.gguf",
		Data:   filepath.Join(string(filepath.Separator), "abs", "train.jsonl"),
		Output: "out/lora.bin",
		Engine: EngineConfig{Path: "llama-cli"},
	}
	m.resolvePaths(base)

	assert.Equal(t, filepath.Join(base, "base.gguf"), m.Model)
	assert.Equal(t, filepath.Join(string(filepath.Separator), "abs", "train.jsonl"), m.Data)
	assert.Equal(t, filepath.Join(base, "out", "lora.bin"), m.Output)
	assert.Equal(t, "llama-cli", m.Engine.Path, "bare engine names are looked up on PATH")
}

func TestSchemaError(t *testing.T) {
	errs := SchemaError{
		{Field: "", Message: "missing properties: 'output'"},
		{Field: "hyperparameters.epochs", Message: "must be >= 1"},
	}
	assert.Equal(t, "invalid train manifest: missing properties: 'output'; hyperparameters.epochs: must be >= 1", errs.Error())
	assert.True(t, errors.Is(errs, ErrInvalid))
	assert.Equal(t, "name: too long", FieldError{Field: "name", Message: "too long"}.Error())
}

func TestFieldName(t *testing.T) {
	assert.Equal(t, "hyperparameters.epochs", fieldName("/hyperparameters/epochs"))
	assert.Equal(t, "output", fieldName("/output"))
	assert.Equal(t, "", fieldName(""))
}

func TestLoad_SchemaErrorNamesField(t *testing.T) {
	path := writeManifest(t, "train.yaml", validManifestYAML()+"hyperparameters:\n  epochs: 0\n")

	_, err := Load(path)
	var schemaErr SchemaError
	require.ErrorAs(t, err, &schemaErr)
	require.NotEmpty(t, schemaErr)
	assert.Contains(t, err.Error(), path)
	assert.Contains(t, err.Error(), "epochs")
}
