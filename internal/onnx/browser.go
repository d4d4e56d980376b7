package onnx

import (
	"fmt"
	"os"

	"signforge/internal/model"
)

// BrowserIRVersion is the newest IR version onnxruntime-web accepts.
const BrowserIRVersion = 9

// Artifact describes a finished browser export.
type Artifact struct {
	Path string
	Size int64
	Info *ModelInfo
}

// patchIR is swapped in tests to simulate a failing patch step.
var patchIR = PatchIRVersion

// ExportForBrowser exports m to path, downgrades its ir_version to
// irVersion and reloads the file to confirm the patch took. On failure no
// model is left at path.
func ExportForBrowser(m *model.MLP, path string, irVersion int64, opts Options) (art *Artifact, err error) {
	if irVersion <= 0 {
		irVersion = BrowserIRVersion
	}
	defer func() {
		if err == nil {
			return
		}
		if _, statErr := os.Stat(path); statErr != nil {
			return
		}
		if rmErr := os.Remove(path); rmErr != nil {
			err = fmt.Errorf("%w (cleanup: %v)", err, rmErr)
		}
	}()

	if err := Export(m, path, opts); err != nil {
		return nil, err
	}
	if err := patchIR(path, irVersion); err != nil {
		return nil, err
	}
	info, err := InspectFile(path)
	if err != nil {
		return nil, err
	}
	if info.IRVersion != irVersion {
		return nil, fmt.Errorf("onnx: ir_version is %d after patch, want %d", info.IRVersion, irVersion)
	}
	st, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat onnx model: %w", err)
	}
	return &Artifact{Path: path, Size: st.Size(), Info: info}, nil
}
