// Package device picks where the training run executes.
//
// Only the host CPU is available as a compute backend; the selector still
// honours the auto/cpu/cuda preference so configs written for accelerator
// hosts fail loudly instead of silently training somewhere else.
package device

import (
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// ErrNoAccelerator is returned when an accelerator is requested explicitly.
var ErrNoAccelerator = errors.New("device: no accelerator backend available")

// Device describes the compute target selected for a run.
type Device struct {
	Kind          string
	Brand         string
	PhysicalCores int
	LogicalCores  int
	Features      []string
}

// String renders the device the way progress logs print it.
func (d Device) String() string {
	return d.Kind
}

// Select resolves a device preference ("auto", "cpu" or "cuda").
func Select(pref string) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(pref)) {
	case "", "auto", "cpu":
		return hostCPU(), nil
	case "cuda", "gpu":
		return Device{}, fmt.Errorf("%w: requested %q", ErrNoAccelerator, pref)
	default:
		return Device{}, fmt.Errorf("device: unknown preference %q", pref)
	}
}

func hostCPU() Device {
	d := Device{
		Kind:          "cpu",
		Brand:         strings.TrimSpace(cpuid.CPU.BrandName),
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
	}
	if d.Brand == "" {
		d.Brand = runtime.GOARCH
	}
	if d.LogicalCores <= 0 {
		d.LogicalCores = runtime.NumCPU()
	}
	for _, f := range []struct {
		name string
		id   cpuid.FeatureID
	}{
		{"avx2", cpuid.AVX2},
		{"fma3", cpuid.FMA3},
		{"avx512f", cpuid.AVX512F},
		{"asimd", cpuid.ASIMD},
	} {
		if cpuid.CPU.Supports(f.id) {
			d.Features = append(d.Features, f.name)
		}
	}
	return d
}
