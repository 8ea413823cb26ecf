package preprocessing

import (
	"testing"

	"github.com/opfromthestart/loan-mining/internal/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetEncoderStrict(t *testing.T) {
	le, err := NewTargetEncoder("Yes", "No")
	require.NoError(t, err)

	got, err := le.Transform([]string{"yes", " NO ", ""})
	require.NoError(t, err)
	assert.Equal(t, []value.Value{value.Number(1), value.Number(0), value.Missing()}, got)

	_, err = le.Transform([]string{"yes", "maybe"})
	require.ErrorIs(t, err, ErrUnknownLabel)
	assert.Contains(t, err.Error(), "row 1")

	label, err := le.InverseTransform(0)
	require.NoError(t, err)
	assert.Equal(t, "no", label)
}

func TestTargetEncoderOneVsRest(t *testing.T) {
	le, err := NewTargetEncoder("default", "")
	require.NoError(t, err)

	got, err := le.Transform([]string{"Default", "repaid", "late"})
	require.NoError(t, err)
	assert.Equal(t, []value.Value{value.Number(1), value.Number(0), value.Number(0)}, got)

	label, err := le.InverseTransform(0)
	require.NoError(t, err)
	assert.Equal(t, "other", label)
	_, err = le.InverseTransform(2)
	assert.Error(t, err)
}

func TestTargetEncoderRejectsBadLabels(t *testing.T) {
	_, err := NewTargetEncoder(" ", "no")
	assert.ErrorIs(t, err, ErrUnknownLabel)

	_, err = NewTargetEncoder("yes", "YES")
	assert.Error(t, err)
}
