package prompt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forge-mcp/forge/internal/plan"
	"github.com/forge-mcp/forge/internal/scope"
)

func newTestBuilder(t *testing.T) (*Builder, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.py"), []byte("print(1)\n"), 0o644))
	guard, err := scope.New(root)
	require.NoError(t, err)
	return New(guard), root
}

func TestRender_SimplePlanIncludesOverviewAndSchema(t *testing.T) {
	b, root := newTestBuilder(t)
	instr := plan.Instruction{
		RepoRoot: root,
		Plan: plan.SimplePlan{Step: plan.Step{
			ID:   "simple",
			Task: "create hello.py printing Hello",
		}},
	}
	out, err := b.Render(instr)
	require.NoError(t, err)
	assert.Contains(t, out.Rendered, "mode: quick")
	assert.Contains(t, out.Rendered, "create hello.py printing Hello")
	assert.Contains(t, out.Rendered, "overall_status")
}

func TestRender_SequentialPlanDeclaresHaltRule(t *testing.T) {
	b, root := newTestBuilder(t)
	instr := plan.Instruction{
		RepoRoot: root,
		Plan: plan.SequentialPlan{StepList: []plan.Step{
			{ID: "s1", Task: "first"},
			{ID: "s2", Task: "second"},
		}},
	}
	out, err := b.Render(instr)
	require.NoError(t, err)
	assert.Contains(t, out.Rendered, "halt")
	assert.Contains(t, out.Rendered, "Step 1")
	assert.Contains(t, out.Rendered, "Step 2")
}

func TestRender_ParallelPlanDeclaresFanout(t *testing.T) {
	b, root := newTestBuilder(t)
	instr := plan.Instruction{
		RepoRoot: root,
		Plan: plan.ParallelPlan{
			Fanout: 3,
			StepList: []plan.Step{
				{ID: "s1", Task: "first"},
				{ID: "s2", Task: "second"},
			},
		},
	}
	out, err := b.Render(instr)
	require.NoError(t, err)
	assert.Contains(t, out.Rendered, "at most 3 steps")
}

func TestRender_EmbedsContextFiles(t *testing.T) {
	b, root := newTestBuilder(t)
	instr := plan.Instruction{
		RepoRoot: root,
		Plan: plan.SimplePlan{Step: plan.Step{
			ID:           "simple",
			Task:         "look at main.py",
			ContextPaths: []string{"main.py"},
		}},
	}
	out, err := b.Render(instr)
	require.NoError(t, err)
	assert.Contains(t, out.Rendered, "main.py")
	assert.Contains(t, out.Rendered, "print(1)")
	assert.Equal(t, []byte("print(1)\n"), out.ContextFiles["main.py"])
}
