package dag

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/playbookrun/controller/common/gerror"
	"github.com/playbookrun/controller/internal/models"
)

func step(id string, order int, deps ...string) models.StepDefinition {
	return models.StepDefinition{ID: id, Order: order, Dependencies: deps}
}

func TestValidate_EmptyGraph(t *testing.T) {
	require.NoError(t, Validate(nil))
}

func TestValidate_SingleStep(t *testing.T) {
	require.NoError(t, Validate([]models.StepDefinition{step("a", 1)}))
}

func TestValidate_LinearChain(t *testing.T) {
	steps := []models.StepDefinition{
		step("a", 1),
		step("b", 2, "a"),
		step("c", 3, "b"),
	}
	require.NoError(t, Validate(steps))
}

func TestValidate_SelfDependencyIsCyclic(t *testing.T) {
	err := Validate([]models.StepDefinition{step("a", 1, "a")})
	require.Error(t, err)
	require.True(t, gerror.IsCyclicDependency(err))
}

func TestValidate_DanglingDependencyRejected(t *testing.T) {
	err := Validate([]models.StepDefinition{step("a", 1, "ghost")})
	require.Error(t, err)
	require.True(t, gerror.IsPlaybookInvalid(err))
}

func TestValidate_Cycle(t *testing.T) {
	steps := []models.StepDefinition{
		step("a", 1, "c"),
		step("b", 2, "a"),
		step("c", 3, "b"),
	}
	err := Validate(steps)
	require.Error(t, err)
	require.True(t, gerror.IsCyclicDependency(err))
}

func TestValidate_AcceptsDiamond(t *testing.T) {
	steps := []models.StepDefinition{
		step("a", 1),
		step("b", 2, "a"),
		step("c", 3, "a"),
		step("d", 4, "b", "c"),
	}
	require.NoError(t, Validate(steps))
}

func TestReadySteps_NoDependenciesAllReady(t *testing.T) {
	steps := []models.StepDefinition{step("a", 2), step("b", 1), step("c", 3)}
	ready := ReadySteps(steps, map[string]bool{}, map[string]bool{}, map[string]bool{})
	require.Len(t, ready, 3)
	require.Equal(t, "b", ready[0].ID)
	require.Equal(t, "a", ready[1].ID)
	require.Equal(t, "c", ready[2].ID)
}

func TestReadySteps_WaitsOnDependencies(t *testing.T) {
	steps := []models.StepDefinition{
		step("a", 1),
		step("b", 2, "a"),
		step("c", 3, "b"),
	}
	ready := ReadySteps(steps, map[string]bool{}, map[string]bool{}, map[string]bool{})
	require.Len(t, ready, 1)
	require.Equal(t, "a", ready[0].ID)

	ready = ReadySteps(steps, map[string]bool{"a": true}, map[string]bool{}, map[string]bool{})
	require.Len(t, ready, 1)
	require.Equal(t, "b", ready[0].ID)
}

func TestReadySteps_ExcludesRunningAndTerminal(t *testing.T) {
	steps := []models.StepDefinition{step("a", 1), step("b", 2), step("c", 3)}
	ready := ReadySteps(steps, map[string]bool{}, map[string]bool{"b": true}, map[string]bool{"c": true})
	require.Len(t, ready, 1)
	require.Equal(t, "a", ready[0].ID)
}

func TestReadySteps_DependencyFailedNeverReady(t *testing.T) {
	steps := []models.StepDefinition{
		step("a", 1),
		step("b", 2, "a"),
	}
	ready := ReadySteps(steps, map[string]bool{}, map[string]bool{"a": true}, map[string]bool{})
	require.Empty(t, ready)
}

func TestReadySteps_IdempotentForSameInputs(t *testing.T) {
	steps := []models.StepDefinition{step("a", 1), step("b", 2, "a")}
	completed := map[string]bool{"a": true}
	first := ReadySteps(steps, completed, map[string]bool{}, map[string]bool{})
	second := ReadySteps(steps, completed, map[string]bool{}, map[string]bool{})
	require.Equal(t, first, second)
}

func TestTransitiveDependents_ExcludesOrigin(t *testing.T) {
	steps := []models.StepDefinition{
		step("a", 1),
		step("b", 2, "a"),
		step("c", 3, "b"),
		step("d", 4, "a"),
	}
	deps := TransitiveDependents("a", steps)
	require.True(t, deps["b"])
	require.True(t, deps["c"])
	require.True(t, deps["d"])
	require.False(t, deps["a"])
}

func TestTransitiveDependents_IndependentBranchExcluded(t *testing.T) {
	steps := []models.StepDefinition{
		step("a", 1),
		step("b", 2, "a"),
		step("x", 3),
	}
	deps := TransitiveDependents("a", steps)
	require.True(t, deps["b"])
	require.False(t, deps["x"])
}

func TestGraph_ReusedAcrossCascades(t *testing.T) {
	steps := []models.StepDefinition{
		step("a", 1),
		step("b", 2, "a"),
		step("c", 3, "b"),
	}
	g := BuildGraph(steps)
	require.Equal(t, map[string]bool{"b": true, "c": true}, g.TransitiveDependents("a"))
	require.Equal(t, map[string]bool{"c": true}, g.TransitiveDependents("b"))
}
