package onnx

import (
	"fmt"
	"math"
	"os"

	"google.golang.org/protobuf/encoding/protowire"
)

// ModelInfo is the subset of a ModelProto the exporter cares about.
type ModelInfo struct {
	IRVersion    int64
	ProducerName string
	Opsets       map[string]int64
	Graph        GraphInfo
}

// GraphInfo describes a GraphProto.
type GraphInfo struct {
	Name         string
	Nodes        []NodeInfo
	Initializers []TensorInfo
	Inputs       []ValueInfo
	Outputs      []ValueInfo
}

// NodeInfo describes a NodeProto. Only float and int attributes are kept.
type NodeInfo struct {
	Name      string
	OpType    string
	Inputs    []string
	Outputs   []string
	FloatAttr map[string]float32
	IntAttr   map[string]int64
}

// TensorInfo describes a float TensorProto initializer.
type TensorInfo struct {
	Name     string
	Dims     []int64
	DataType int64
	Data     []float32
}

// ValueInfo describes a graph input or output with a static shape.
type ValueInfo struct {
	Name     string
	ElemType int64
	Dims     []int64
}

// InspectFile parses the model at path.
func InspectFile(path string) (*ModelInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read onnx model: %w", err)
	}
	return Inspect(data)
}

// Inspect parses a serialised ModelProto.
func Inspect(data []byte) (*ModelInfo, error) {
	info := &ModelInfo{Opsets: map[string]int64{}}
	err := walk(data, func(f field) error {
		switch f.num {
		case modelIRVersion:
			info.IRVersion = int64(f.u)
		case modelProducerName:
			info.ProducerName = string(f.bytes)
		case modelOpsetImport:
			var domain string
			var version int64
			if err := walk(f.bytes, func(g field) error {
				switch g.num {
				case opsetDomain:
					domain = string(g.bytes)
				case opsetVersion:
					version = int64(g.u)
				}
				return nil
			}); err != nil {
				return err
			}
			info.Opsets[domain] = version
		case modelGraph:
			g, err := inspectGraph(f.bytes)
			if err != nil {
				return err
			}
			info.Graph = g
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func inspectGraph(b []byte) (GraphInfo, error) {
	var g GraphInfo
	err := walk(b, func(f field) error {
		switch f.num {
		case graphNode:
			n, err := inspectNode(f.bytes)
			if err != nil {
				return err
			}
			g.Nodes = append(g.Nodes, n)
		case graphName:
			g.Name = string(f.bytes)
		case graphInitializer:
			t, err := inspectTensor(f.bytes)
			if err != nil {
				return err
			}
			g.Initializers = append(g.Initializers, t)
		case graphInput, graphOutput:
			v, err := inspectValueInfo(f.bytes)
			if err != nil {
				return err
			}
			if f.num == graphInput {
				g.Inputs = append(g.Inputs, v)
			} else {
				g.Outputs = append(g.Outputs, v)
			}
		}
		return nil
	})
	return g, err
}

func inspectNode(b []byte) (NodeInfo, error) {
	n := NodeInfo{FloatAttr: map[string]float32{}, IntAttr: map[string]int64{}}
	err := walk(b, func(f field) error {
		switch f.num {
		case nodeInput:
			n.Inputs = append(n.Inputs, string(f.bytes))
		case nodeOutput:
			n.Outputs = append(n.Outputs, string(f.bytes))
		case nodeName:
			n.Name = string(f.bytes)
		case nodeOpType:
			n.OpType = string(f.bytes)
		case nodeAttribute:
			var name string
			var fv float32
			var iv, typ int64
			if err := walk(f.bytes, func(a field) error {
				switch a.num {
				case attrName:
					name = string(a.bytes)
				case attrF:
					fv = math.Float32frombits(uint32(a.u))
				case attrI:
					iv = int64(a.u)
				case attrType:
					typ = int64(a.u)
				}
				return nil
			}); err != nil {
				return err
			}
			switch typ {
			case attrTypeFloat:
				n.FloatAttr[name] = fv
			case attrTypeInt:
				n.IntAttr[name] = iv
			}
		}
		return nil
	})
	return n, err
}

func inspectTensor(b []byte) (TensorInfo, error) {
	var t TensorInfo
	err := walk(b, func(f field) error {
		var err error
		switch f.num {
		case tensorDims:
			t.Dims, err = int64s(f, t.Dims)
		case tensorDataType:
			t.DataType = int64(f.u)
		case tensorName:
			t.Name = string(f.bytes)
		case tensorRawData:
			t.Data, err = decodeRawFloats(f.bytes)
		}
		return err
	})
	return t, err
}

func inspectValueInfo(b []byte) (ValueInfo, error) {
	var v ValueInfo
	err := walk(b, func(f field) error {
		switch f.num {
		case valueInfoName:
			v.Name = string(f.bytes)
		case valueInfoType:
			return walkSub(f.bytes, typeTensorType, func(tt field) error {
				switch tt.num {
				case tensorTypeElemType:
					v.ElemType = int64(tt.u)
				case tensorTypeShape:
					return walkSub(tt.bytes, shapeDim, func(d field) error {
						if d.num == dimValue {
							v.Dims = append(v.Dims, int64(d.u))
						}
						return nil
					})
				}
				return nil
			})
		}
		return nil
	})
	return v, err
}

// walkSub walks the fields of every embedded message numbered num in b.
func walkSub(b []byte, num protowire.Number, fn func(f field) error) error {
	return walk(b, func(f field) error {
		if f.num != num || f.typ != protowire.BytesType {
			return nil
		}
		return walk(f.bytes, fn)
	})
}
