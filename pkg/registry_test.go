package eventbuilder

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type descriptorModule struct {
	ModuleBase
	d Descriptor
}

func (m *descriptorModule) Descriptor() Descriptor      { return m.d }
func (m *descriptorModule) AnalyzeEvent(e *Event) bool { return true }

func TestValidateChain(t *testing.T) {
	loader := Descriptor{Name: "Loader", Tag: "loader", Provides: CategoryEventLoader, IsStartModule: true}
	energy := Descriptor{Name: "Energy", Tag: "energy", Requires: CategoryEventLoader, Provides: CategoryEnergyCalibration}
	depth := Descriptor{Name: "Depth", Tag: "depth", Requires: CategoryEventLoader | CategoryEnergyCalibration, SoftRequires: CategoryStripPairing, Provides: CategoryDepthCorrection}

	tests := map[string]struct {
		chain    []Descriptor
		wantErr  bool
		warnings int
	}{
		"valid chain":            {chain: []Descriptor{loader, energy, depth}, warnings: 1},
		"empty":                  {chain: nil, wantErr: true},
		"no start module":        {chain: []Descriptor{energy, depth}, wantErr: true},
		"start module not first": {chain: []Descriptor{loader, energy, loader}, wantErr: true},
		"missing requirement":    {chain: []Descriptor{loader, depth}, wantErr: true},
		"duplicate instance":     {chain: []Descriptor{loader, energy, energy}, wantErr: true},
		"successor not allowed": {chain: []Descriptor{
			{Name: "Loader", Tag: "loader", Provides: CategoryEventLoader, IsStartModule: true, AllowedSuccessors: CategoryAspect},
			energy,
		}, wantErr: true},
		"successor allowed": {chain: []Descriptor{
			{Name: "Loader", Tag: "loader", Provides: CategoryEventLoader, IsStartModule: true, AllowedSuccessors: CategoryEnergyCalibration},
			energy,
		}},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			modules := make([]Module, 0, len(tc.chain))
			for _, d := range tc.chain {
				modules = append(modules, &descriptorModule{d: d})
			}
			warnings, err := ValidateChain(modules)
			if tc.wantErr {
				var chainErr *ErrChainValidation
				assert.True(t, errors.As(err, &chainErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, warnings, tc.warnings)
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	energy := &descriptorModule{d: Descriptor{Name: "Energy", Tag: "energy"}}
	require.NoError(t, r.Register(energy))

	assert.Error(t, r.Register(&descriptorModule{d: Descriptor{Name: "Other", Tag: "energy"}}))
	assert.Error(t, r.Register(&descriptorModule{d: Descriptor{Name: "Spaces", Tag: "bad tag"}}))
	assert.Error(t, r.Register(&descriptorModule{d: Descriptor{Name: "Empty"}}))

	m, err := r.Lookup("energy")
	require.NoError(t, err)
	assert.Same(t, energy, m)

	_, err = r.Lookup("missing")
	var resolveErr *ErrResolveModule
	assert.True(t, errors.As(err, &resolveErr))
	assert.Equal(t, []string{"energy"}, r.Tags())
}

func TestCategoryString(t *testing.T) {
	assert.Equal(t, "None", Category(0).String())
	assert.Equal(t, "EventLoader|Aspect", (CategoryEventLoader | CategoryAspect).String())
	assert.True(t, (CategoryEventLoader | CategoryAspect).Has(CategoryAspect))
	assert.False(t, CategoryEventLoader.Has(CategoryEventLoader|CategoryAspect))
}
