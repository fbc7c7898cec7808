// Package vrp implements the vrp.Solver port by spawning an external
// OR-Tools-compatible subprocess: the problem is written as JSON to its
// stdin, and the last well-formed top-level JSON object on its stdout is
// taken as the solution.
package vrp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"

	domainvrp "github.com/fleetshuttle/router/internal/domain/vrp"
)

// SubprocessSolver spawns command (with args) once per Solve call, feeding
// it the problem on stdin and reading its solution from stdout.
type SubprocessSolver struct {
	command string
	args    []string
}

// NewSubprocessSolver builds a solver that runs command with args for every
// Solve call.
func NewSubprocessSolver(command string, args ...string) *SubprocessSolver {
	return &SubprocessSolver{command: command, args: args}
}

// Solve implements vrp.Solver. The child is killed if ctx is cancelled
// before it exits on its own; a non-zero exit or unparseable stdout is
// reported as a solver error, never a crash.
func (s *SubprocessSolver) Solve(ctx context.Context, problem *domainvrp.Problem) (*domainvrp.Solution, error) {
	payload, err := json.Marshal(problem)
	if err != nil {
		return nil, fmt.Errorf("vrp: marshal problem: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.command, s.args...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	solution, parseErr := lastJSONObject(stdout.Bytes())
	if runErr != nil {
		return nil, fmt.Errorf("vrp: solver exited with error: %w (stderr: %s)", runErr, stderr.String())
	}
	if parseErr != nil {
		return nil, fmt.Errorf("vrp: no parseable solution on stdout: %w", parseErr)
	}

	if solution.Error != "" {
		return nil, fmt.Errorf("vrp: solver reported error: %s", solution.Error)
	}

	return solution, nil
}

// lastJSONObject scans buf for the last top-level {...} object and decodes
// it. Solver implementations sometimes emit progress lines before the
// final solution; only the last balanced object is the contract.
//
// The brace count below is not string-literal-aware, so a '}' inside a
// quoted JSON string value (e.g. solution.error) would be miscounted and
// could close the object early. Acceptable for solver-emitted error text in
// practice, but a real risk if that field ever carries arbitrary content.
func lastJSONObject(buf []byte) (*domainvrp.Solution, error) {
	depth := 0
	lastStart := -1
	lastEnd := -1

	for i, b := range buf {
		switch b {
		case '{':
			if depth == 0 {
				lastStart = i
			}
			depth++
		case '}':
			if depth > 0 {
				depth--
				if depth == 0 && lastStart >= 0 {
					lastEnd = i + 1
				}
			}
		}
	}

	if lastStart < 0 || lastEnd < 0 {
		return nil, fmt.Errorf("no top-level JSON object found")
	}

	var solution domainvrp.Solution
	if err := json.Unmarshal(buf[lastStart:lastEnd], &solution); err != nil {
		return nil, fmt.Errorf("decode solution: %w", err)
	}
	return &solution, nil
}
