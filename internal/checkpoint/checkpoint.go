// Package checkpoint persists trained sign classifiers.
//
// A checkpoint is gzip-compressed JSON holding the parameter state, the
// label table needed to turn class indices back into signs, the
// architecture, and the per-epoch history of the run that produced it.
package checkpoint

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"signforge/internal/dataset"
	"signforge/internal/metrics"
	"signforge/internal/model"
)

// FormatVersion is bumped whenever the on-disk layout changes.
const FormatVersion = 1

// Checkpoint is the serialised form of a trained model.
type Checkpoint struct {
	FormatVersion int                     `json:"format_version"`
	RunID         string                  `json:"run_id"`
	CreatedAt     time.Time               `json:"created_at"`
	Seed          int64                   `json:"seed"`
	Spec          model.Spec              `json:"spec"`
	Classes       []string                `json:"encoder_classes"`
	State         map[string]model.Tensor `json:"model_state_dict"`
	History       []metrics.Epoch         `json:"history,omitempty"`
}

// New captures m and its label table.
func New(runID string, seed int64, m *model.MLP, enc *dataset.LabelEncoder, history []metrics.Epoch) *Checkpoint {
	return &Checkpoint{
		FormatVersion: FormatVersion,
		RunID:         runID,
		CreatedAt:     time.Now().UTC(),
		Seed:          seed,
		Spec:          m.Spec(),
		Classes:       enc.Classes(),
		State:         m.State(),
		History:       history,
	}
}

// Encoder rebuilds the label encoder used during training.
func (c *Checkpoint) Encoder() (*dataset.LabelEncoder, error) {
	return dataset.NewLabelEncoder(c.Classes)
}

// Model rebuilds the network with the saved parameters.
func (c *Checkpoint) Model() (*model.MLP, error) {
	if c.Spec.NumClasses != len(c.Classes) {
		return nil, fmt.Errorf("checkpoint: %d classes in table, spec says %d", len(c.Classes), c.Spec.NumClasses)
	}
	// the rng only seeds dropout masks, which inference never draws
	m, err := model.NewMLP(c.Spec, rand.New(rand.NewSource(c.Seed)))
	if err != nil {
		return nil, err
	}
	if err := m.LoadState(c.State); err != nil {
		return nil, err
	}
	return m, nil
}

// Save writes c to path, creating parent directories.
func Save(path string, c *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create checkpoint: %w", err)
	}
	if err := Write(f, c); err != nil {
		f.Close()
		os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

// Write encodes c to w.
func Write(w io.Writer, c *Checkpoint) error {
	zw := gzip.NewWriter(w)
	if err := json.NewEncoder(zw).Encode(c); err != nil {
		zw.Close()
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return zw.Close()
}

// Load reads the checkpoint at path.
func Load(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes a checkpoint from r.
func Read(r io.Reader) (*Checkpoint, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	defer zr.Close()

	var c Checkpoint
	if err := json.NewDecoder(zr).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	if c.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("checkpoint: unsupported format version %d", c.FormatVersion)
	}
	return &c, nil
}
