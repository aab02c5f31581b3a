package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stage string

func (s stage) String() string { return string(s) }

func TestBindingErrorUnwrapsToSentinel(t *testing.T) {
	err := ContractViolation("Draw", "no pipeline bound").In("immediate")
	require.ErrorIs(t, err, ErrContractViolation)
	assert.NotErrorIs(t, err, ErrNativeAPIFailure)
	assert.Equal(t, "[immediate] Draw: contract violation: no pipeline bound", err.Error())

	device := errors.New("device lost")
	err = NativeFailure("SetShaderResources", device).At(stage("pixel"), 3)
	require.ErrorIs(t, err, ErrNativeAPIFailure)
	require.ErrorIs(t, err, device)
	assert.Equal(t, "SetShaderResources: native api failure (stage pixel, slot 3): device lost", err.Error())

	err = StaleBinding("Verify", "slot mismatch").AtSlot(1)
	require.ErrorIs(t, err, ErrStaleBinding)
	assert.Equal(t, "Verify: stale binding (slot 1): slot mismatch", err.Error())

	var be *BindingError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, ErrorKindStaleBinding, be.Kind)
}
