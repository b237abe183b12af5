package gridplan_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/printsplit/splitengine/internal/gridplan"
)

func TestS1TrivialSingleCell(t *testing.T) {
	plan := gridplan.Compute(
		gridplan.Extent{X: 100, Y: 100, Z: 100},
		gridplan.MaxDim{X: 200, Y: 200, Z: 200},
		false,
	)
	require.Equal(t, 1, plan.X.Sections)
	require.Equal(t, 1, plan.Y.Sections)
	require.Equal(t, 1, plan.Z.Sections)
}

func TestS2ExactTwoByOneByOne(t *testing.T) {
	plan := gridplan.Compute(
		gridplan.Extent{X: 300, Y: 100, Z: 50},
		gridplan.MaxDim{X: 150, Y: 200, Z: 200},
		false,
	)
	require.Equal(t, 2, plan.X.Sections)
	require.InDelta(t, 150, plan.X.PieceSize, 1e-9)
	require.Equal(t, 1, plan.Y.Sections)
	require.InDelta(t, 200, plan.Y.PieceSize, 1e-9)
}

func TestS3BalancedDoesNotTriggerWhenRemainderAtOrAboveHalf(t *testing.T) {
	plan := gridplan.Compute(
		gridplan.Extent{X: 250, Y: 100, Z: 50},
		gridplan.MaxDim{X: 150, Y: 200, Z: 200},
		true,
	)
	require.Equal(t, 2, plan.X.Sections)
	require.InDelta(t, 150, plan.X.PieceSize, 1e-9, "remainder 100 is not below half of 150, so balancing must not trigger")
}

func TestS3BalancedTriggersWhenRemainderBelowHalf(t *testing.T) {
	plan := gridplan.Compute(
		gridplan.Extent{X: 250, Y: 100, Z: 50},
		gridplan.MaxDim{X: 200, Y: 200, Z: 200},
		true,
	)
	require.Equal(t, 2, plan.X.Sections)
	require.InDelta(t, 125, plan.X.PieceSize, 1e-9, "remainder 50 is below half of 200, every section becomes equal")
}

func TestCoverageInvariant(t *testing.T) {
	for _, balanced := range []bool{true, false} {
		plan := gridplan.Compute(
			gridplan.Extent{X: 250, Y: 371, Z: 40},
			gridplan.MaxDim{X: 200, Y: 90, Z: 200},
			balanced,
		)
		require.GreaterOrEqual(t, float64(plan.X.Sections)*plan.X.PieceSize, 250.0)
		require.GreaterOrEqual(t, float64(plan.Y.Sections)*plan.Y.PieceSize, 371.0)
		require.GreaterOrEqual(t, float64(plan.Z.Sections)*plan.Z.PieceSize, 40.0)
	}
}

func TestIdempotence(t *testing.T) {
	extent := gridplan.Extent{X: 317, Y: 88, Z: 201}
	maxDim := gridplan.MaxDim{X: 150, Y: 60, Z: 90}

	first := gridplan.Compute(extent, maxDim, true)
	second := gridplan.Compute(extent, maxDim, true)
	require.Equal(t, first, second)
}
