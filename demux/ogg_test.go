package demux

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGranposAddInvalidSource(t *testing.T) {
	_, err := granposAdd(granposInvalid, 10)
	require.Error(t, err)
}

func TestGranposAddNormal(t *testing.T) {
	got, err := granposAdd(100, 50)
	require.NoError(t, err)
	require.Equal(t, int64(150), got)
}

func TestGranposAddWrapToInvalidErrors(t *testing.T) {
	_, err := granposAdd(0, -1)
	require.Error(t, err)
}

func TestGranposDiffInvalidOperands(t *testing.T) {
	_, err := granposDiff(granposInvalid, 5)
	require.Error(t, err)
	_, err = granposDiff(5, granposInvalid)
	require.Error(t, err)
}

func TestGranposDiffNormal(t *testing.T) {
	got, err := granposDiff(100, 40)
	require.NoError(t, err)
	require.Equal(t, int64(60), got)
}

func TestGranposCmpOrdersNonNegativeNormally(t *testing.T) {
	require.Equal(t, -1, granposCmp(10, 20))
	require.Equal(t, 1, granposCmp(20, 10))
	require.Equal(t, 0, granposCmp(10, 10))
}

func TestGranposCmpDualRangeOrdering(t *testing.T) {
	// Any negative value other than -1 (granposInvalid) sorts greater than
	// any non-negative value.
	require.Equal(t, 1, granposCmp(-5, 1000))
	require.Equal(t, -1, granposCmp(1000, -5))
}

func TestGranposCmpBothNegative(t *testing.T) {
	require.Equal(t, -1, granposCmp(-10, -5))
	require.Equal(t, 1, granposCmp(-5, -10))
}
