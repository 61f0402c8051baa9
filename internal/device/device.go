// Package device defines the device provisioning/tuning capability the
// Hasher Pool depends on. Real GPU/ASIC enumeration, OpenCL kernel
// compilation, and clock/voltage tuning are out of scope (spec.md §1
// Non-goals); this package fixes the shape a real implementation would
// satisfy and supplies a fake good enough to exercise the rest of the
// pipeline.
package device

import (
	"context"
	"fmt"

	"github.com/minerforge/coreminer/internal/hasher"
	"github.com/minerforge/coreminer/internal/work"
)

// Descriptor identifies one provisioned compute device.
type Descriptor struct {
	ID   int
	Kind hasher.Kind
	Name string
}

// Provisioner enumerates and prepares devices for hashing.
type Provisioner interface {
	Enumerate(ctx context.Context) ([]Descriptor, error)
	NewScanner(d Descriptor) (hasher.Scanner, error)
}

// FakeProvisioner reports CPUCount CPU devices (one if CPUCount <= 0),
// each with a software scanner that never finds a share — enough to exercise the scan loop, request
// cadence, and reporting paths without real hashing hardware.
type FakeProvisioner struct {
	CPUCount int
}

func (f FakeProvisioner) Enumerate(ctx context.Context) ([]Descriptor, error) {
	n := f.CPUCount
	if n <= 0 {
		n = 1
	}
	out := make([]Descriptor, n)
	for i := range out {
		out[i] = Descriptor{ID: i, Kind: hasher.KindCPU, Name: fmt.Sprintf("fake-cpu-%d", i)}
	}
	return out, nil
}

func (f FakeProvisioner) NewScanner(d Descriptor) (hasher.Scanner, error) {
	return fakeScanner{}, nil
}

type fakeScanner struct{}

func (fakeScanner) Scan(ctx context.Context, u *work.Unit, start, end uint32) (hasher.ScanResult, error) {
	select {
	case <-ctx.Done():
		return hasher.ScanResult{}, ctx.Err()
	default:
	}
	return hasher.ScanResult{Found: false}, nil
}

func (fakeScanner) FullTest(u *work.Unit, nonce uint32) bool {
	return true
}

var _ Provisioner = FakeProvisioner{}
