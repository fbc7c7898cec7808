package vrp_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetshuttle/router/internal/adapters/vrp"
	domainvrp "github.com/fleetshuttle/router/internal/domain/vrp"
)

func TestSubprocessSolver_ParsesLastJSONObject(t *testing.T) {
	// Arrange: the fake solver prints a progress line before its real
	// solution, mirroring solvers that log while they search.
	solver := vrp.NewSubprocessSolver("sh", "-c",
		`echo '{"progress": 1}'; echo '{"routes": [[1,2]], "dropped_node_indices": [3]}'`)

	// Act
	solution, err := solver.Solve(context.Background(), &domainvrp.Problem{})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, [][]int{{1, 2}}, solution.Routes)
	assert.Equal(t, []int{3}, solution.DroppedNodeIndices)
}

func TestSubprocessSolver_NonZeroExitIsSolverError(t *testing.T) {
	solver := vrp.NewSubprocessSolver("sh", "-c", `exit 1`)

	_, err := solver.Solve(context.Background(), &domainvrp.Problem{})

	assert.Error(t, err)
}

func TestSubprocessSolver_ExplicitErrorFieldIsSolverError(t *testing.T) {
	solver := vrp.NewSubprocessSolver("sh", "-c", `echo '{"error": "infeasible"}'`)

	_, err := solver.Solve(context.Background(), &domainvrp.Problem{})

	assert.Error(t, err)
}
