package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"signforge/internal/model"
)

// DefaultIRVersion is the IR version the encoder stamps before any patch.
const DefaultIRVersion = 10

// Graph tensor names.
const (
	InputName  = "input"
	OutputName = "output"
)

// Options configures an export.
type Options struct {
	// Opset is the default-domain operator set version.
	Opset int64
	// IRVersion is written into the model; zero means DefaultIRVersion.
	IRVersion       int64
	ProducerName    string
	ProducerVersion string
	DocString       string
}

func (o Options) withDefaults() Options {
	if o.Opset <= 0 {
		o.Opset = 17
	}
	if o.IRVersion <= 0 {
		o.IRVersion = DefaultIRVersion
	}
	if o.ProducerName == "" {
		o.ProducerName = "signforge"
	}
	return o
}

// Encode serialises m in inference mode: dropout is the identity there,
// so the graph is Gemm, Relu, Gemm, Relu, Gemm over a [1, in] input.
func Encode(m *model.MLP, opts Options) ([]byte, error) {
	if m == nil {
		return nil, errors.New("onnx: model is nil")
	}
	opts = opts.withDefaults()
	spec := m.Spec()
	state := m.State()

	var graph []byte
	prev := InputName
	for i, layer := range model.LayerNames {
		weight, ok := state[layer+".weight"]
		if !ok {
			return nil, fmt.Errorf("onnx: state is missing %s.weight", layer)
		}
		bias, ok := state[layer+".bias"]
		if !ok {
			return nil, fmt.Errorf("onnx: state is missing %s.bias", layer)
		}

		out := fmt.Sprintf("/net/%s/Gemm_output_0", layer)
		if i == len(model.LayerNames)-1 {
			out = OutputName
		}
		graph = appendBytes(graph, graphNode, gemmNode(layer, prev, out))
		prev = out

		if i < len(model.LayerNames)-1 {
			// ReLU sits right after each hidden Linear in the sequential stack.
			reluName := fmt.Sprintf("/net/net.%d/Relu", 3*i+1)
			reluOut := reluName + "_output_0"
			graph = appendBytes(graph, graphNode, node(reluName, "Relu", []string{prev}, []string{reluOut}))
			prev = reluOut
		}

		graph = appendBytes(graph, graphInitializer, tensor(layer+".weight", weight))
		graph = appendBytes(graph, graphInitializer, tensor(layer+".bias", bias))
	}
	graph = appendString(graph, graphName, "main_graph")
	graph = appendBytes(graph, graphInput, valueInfo(InputName, 1, int64(spec.InputDim)))
	graph = appendBytes(graph, graphOutput, valueInfo(OutputName, 1, int64(spec.NumClasses)))

	var opset []byte
	opset = appendString(opset, opsetDomain, "")
	opset = appendVarint(opset, opsetVersion, uint64(opts.Opset))

	var b []byte
	b = appendVarint(b, modelIRVersion, uint64(opts.IRVersion))
	b = appendString(b, modelProducerName, opts.ProducerName)
	if opts.ProducerVersion != "" {
		b = appendString(b, modelProducerVersion, opts.ProducerVersion)
	}
	if opts.DocString != "" {
		b = appendString(b, modelDocString, opts.DocString)
	}
	b = appendBytes(b, modelGraph, graph)
	b = appendBytes(b, modelOpsetImport, opset)
	return b, nil
}

// Export encodes m and writes it to path. A stale external-data companion
// (path + ".data") is removed first so the runtime never pairs the new
// graph with old weights.
func Export(m *model.MLP, path string, opts Options) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	if err := os.Remove(path + ".data"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove companion data file: %w", err)
	}
	data, err := Encode(m, opts)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write onnx model: %w", err)
	}
	return nil
}

func gemmNode(layer, in, out string) []byte {
	b := node(fmt.Sprintf("/net/%s/Gemm", layer), "Gemm",
		[]string{in, layer + ".weight", layer + ".bias"}, []string{out})
	b = appendBytes(b, nodeAttribute, floatAttr("alpha", 1))
	b = appendBytes(b, nodeAttribute, floatAttr("beta", 1))
	b = appendBytes(b, nodeAttribute, intAttr("transB", 1))
	return b
}

func node(name, opType string, inputs, outputs []string) []byte {
	var b []byte
	for _, in := range inputs {
		b = appendString(b, nodeInput, in)
	}
	for _, out := range outputs {
		b = appendString(b, nodeOutput, out)
	}
	b = appendString(b, nodeName, name)
	b = appendString(b, nodeOpType, opType)
	return b
}

func floatAttr(name string, v float32) []byte {
	var b []byte
	b = appendString(b, attrName, name)
	b = appendFloat(b, attrF, v)
	b = appendVarint(b, attrType, attrTypeFloat)
	return b
}

func intAttr(name string, v int64) []byte {
	var b []byte
	b = appendString(b, attrName, name)
	b = appendVarint(b, attrI, uint64(v))
	b = appendVarint(b, attrType, attrTypeInt)
	return b
}

func tensor(name string, t model.Tensor) []byte {
	dims := make([]int64, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = int64(d)
	}
	var b []byte
	b = appendPackedInt64s(b, tensorDims, dims)
	b = appendVarint(b, tensorDataType, dataTypeFloat)
	b = appendString(b, tensorName, name)
	b = appendBytes(b, tensorRawData, rawFloats(t.Data))
	return b
}

func valueInfo(name string, dims ...int64) []byte {
	var shape []byte
	for _, d := range dims {
		var dim []byte
		dim = appendVarint(dim, dimValue, uint64(d))
		shape = appendBytes(shape, shapeDim, dim)
	}
	var tt []byte
	tt = appendVarint(tt, tensorTypeElemType, dataTypeFloat)
	tt = appendBytes(tt, tensorTypeShape, shape)

	var typ []byte
	typ = appendBytes(typ, typeTensorType, tt)

	var b []byte
	b = appendString(b, valueInfoName, name)
	b = appendBytes(b, valueInfoType, typ)
	return b
}
