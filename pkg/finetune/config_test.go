package finetune

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeInputs creates a base model file and a valid three-line corpus.
func writeInputs(t *testing.T) (model, data string) {
	t.Helper()
	dir := t.TempDir()
	model = filepath.Join(dir, "base.gguf")
	data = filepath.Join(dir, "train.jsonl")
	require.NoError(t, os.WriteFile(model, []byte("GGUF"), 0o644))
	require.NoError(t, os.WriteFile(data, []byte(
		`{"prompt":"2+2","completion":"4"}`+"\n"+
			`{"prompt":"capital of France","completion":"Paris"}`+"\n"+
			`{"prompt":"hello","completion":"world"}`+"\n"), 0o644))
	return model, data
}

func validParams(t *testing.T) Params {
	t.Helper()
	model, data := writeInputs(t)
	p := DefaultParams()
	p.ModelPath = model
	p.DataPath = data
	p.OutputPath = filepath.Join(t.TempDir(), "out", "lora.bin")
	return p
}

func TestDefaultParams(t *testing.T) {
	p := DefaultParams()
	assert.Equal(t, 3, p.Epochs)
	assert.Equal(t, 2, p.BatchSize)
	assert.Equal(t, 0.0002, p.LearningRate)
	assert.Equal(t, 4, p.Threads)
	assert.Equal(t, 4096, p.CtxSize)
	assert.Empty(t, p.ModelPath)
}

func TestNewJobConfig_Valid(t *testing.T) {
	p := validParams(t)
	p.ModelPath = "  " + p.ModelPath + " "

	cfg, err := NewJobConfig(p)
	require.NoError(t, err)
	assert.Equal(t, p.DataPath, cfg.DataPath)
	assert.NotContains(t, cfg.ModelPath, " ")
	assert.Equal(t, DefaultCtxSize, cfg.CtxSize)

	// The output directory is created by the executor, not here.
	_, err = os.Stat(filepath.Dir(cfg.OutputPath))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestNewJobConfig_InvalidParameters(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"missing model", func(p *Params) { p.ModelPath = "" }, "model"},
		{"blank data", func(p *Params) { p.DataPath = "   " }, "data"},
		{"missing output", func(p *Params) { p.OutputPath = "" }, "output"},
		{"zero epochs", func(p *Params) { p.Epochs = 0 }, "epochs"},
		{"negative batch", func(p *Params) { p.BatchSize = -1 }, "batch-size"},
		{"zero threads", func(p *Params) { p.Threads = 0 }, "threads"},
		{"zero ctx", func(p *Params) { p.CtxSize = 0 }, "ctx-size"},
		{"zero learning rate", func(p *Params) { p.LearningRate = 0 }, "learning-rate"},
		{"NaN learning rate", func(p *Params) { p.LearningRate = math.NaN() }, "learning-rate"},
		{"infinite learning rate", func(p *Params) { p.LearningRate = math.Inf(1) }, "learning-rate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := validParams(t)
			tt.mutate(&p)

			_, err := NewJobConfig(p)
			require.Error(t, err)
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestNewJobConfig_ReportsAllInvalidFields(t *testing.T) {
	p := Params{}
	_, err := NewJobConfig(p)
	require.Error(t, err)
	for _, field := range []string{"model:", "data:", "output:", "epochs:", "batch-size:", "threads:", "ctx-size:", "learning-rate:"} {
		assert.Contains(t, err.Error(), field)
	}
}

func TestNewJobConfig_MissingFiles(t *testing.T) {
	p := validParams(t)
	p.ModelPath = filepath.Join(t.TempDir(), "nope.gguf")
	_, err := NewJobConfig(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base model not found")

	p = validParams(t)
	p.DataPath = filepath.Join(t.TempDir(), "nope.jsonl")
	_, err = NewJobConfig(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "training data not found")
}

func TestMerge(t *testing.T) {
	err := Merge(t.Context(), MergeRequest{AdapterPath: "a.bin", BaseModelPath: "m.gguf", OutputPath: "out.gguf"})
	assert.ErrorIs(t, err, ErrMergeUnavailable)

	err = Merge(t.Context(), MergeRequest{AdapterPath: "a.bin"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMergeUnavailable)
	assert.Contains(t, err.Error(), "model:")
	assert.Contains(t, err.Error(), "output:")
}
