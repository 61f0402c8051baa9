package device

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minerforge/coreminer/internal/hasher"
	"github.com/minerforge/coreminer/internal/work"
)

func TestFakeProvisionerEnumerateDefaultsToOneCPU(t *testing.T) {
	p := FakeProvisioner{}
	descs, err := p.Enumerate(context.Background())
	require.NoError(t, err)
	require.Len(t, descs, 1)
	assert.Equal(t, hasher.KindCPU, descs[0].Kind)
}

func TestFakeScannerNeverFindsAShare(t *testing.T) {
	p := FakeProvisioner{}
	descs, _ := p.Enumerate(context.Background())
	scanner, err := p.NewScanner(descs[0])
	require.NoError(t, err)

	u := work.New()
	result, err := scanner.Scan(context.Background(), u, 0, 1000)
	require.NoError(t, err)
	assert.False(t, result.Found)
}
