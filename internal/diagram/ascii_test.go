package diagram

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderASCII(t *testing.T) {
	model, err := Build(alertWorkflow(), nil)
	require.NoError(t, err)

	output := RenderASCII(model)

	assert.Contains(t, output, "=== Large BTC deposits ===")

	// Box-drawing characters.
	assert.Contains(t, output, "┌")
	assert.Contains(t, output, "┐")
	assert.Contains(t, output, "└")
	assert.Contains(t, output, "┘")
	assert.Contains(t, output, "▼")

	assert.Contains(t, output, "trigger1")
	assert.Contains(t, output, "(Deposit)")
	assert.Contains(t, output, "(freeze_order)")
	assert.Contains(t, output, "cond1 ─→ action1")
}

func TestRenderASCIIWithStatus(t *testing.T) {
	model := &DiagramModel{
		Title: "Test",
		Nodes: []*Node{
			{ID: "t", Label: "t", Kind: NodeKindTrigger, Status: &StatusOverlay{Status: StatusFired}},
			{ID: "i", Label: "i", Kind: NodeKindTrigger, Status: &StatusOverlay{Status: StatusIdle}},
			{ID: "c", Label: "c", Kind: NodeKindCondition, Status: &StatusOverlay{Status: StatusPassed, Detail: "15000"}},
			{ID: "d", Label: "d", Kind: NodeKindCondition, Status: &StatusOverlay{Status: StatusRejected}},
			{ID: "a", Label: "a", Kind: NodeKindAction, Status: &StatusOverlay{Status: StatusEligible}},
			{ID: "b", Label: "b", Kind: NodeKindAction, Status: &StatusOverlay{Status: StatusBlocked}},
			{ID: "s", Label: "s", Kind: NodeKindUnknown, Status: &StatusOverlay{Status: StatusSkipped}},
			{ID: "f", Label: "f", Kind: NodeKindAction, Status: &StatusOverlay{Status: StatusFailed}},
		},
		Levels: [][]string{{"t", "i"}, {"c", "d"}, {"a", "b", "s", "f"}},
	}

	output := RenderASCII(model)

	for _, tag := range []string{"[FIRED]", "[IDLE]", "[TRUE]", "[FALSE]", "[RUN]", "[HOLD]", "[SKIP]", "[FAIL]", "15000"} {
		assert.Contains(t, output, tag)
	}
	assert.NotContains(t, output, "edges:")
}

func TestMakeBoxPadsToWidestLine(t *testing.T) {
	box := makeBox(&Node{ID: "n", Label: "n\n(longer label)"})
	require.Len(t, box.lines, 4)
	assert.Equal(t, "│ n"+strings.Repeat(" ", 14)+"│", box.lines[1])
	assert.Equal(t, "│ (longer label) │", box.lines[2])
}
