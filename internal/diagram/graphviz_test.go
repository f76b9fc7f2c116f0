package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderImagePNG(t *testing.T) {
	model, err := Build(alertWorkflow(), nil)
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model, FormatPNG)
	require.NoError(t, err)

	// PNG magic bytes: 0x89 P N G.
	require.True(t, len(png) > 8, "PNG should be larger than header")
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestRenderImageSVGWithReport(t *testing.T) {
	wf := alertWorkflow()
	model, err := Build(wf, evaluate(t, wf, map[string]any{"amount": 15000.0, "currency": "BTC"}))
	require.NoError(t, err)

	svg, err := RenderImage(context.Background(), model, FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "trigger1")
}

func TestRenderImageUnsupportedFormat(t *testing.T) {
	_, err := RenderImage(context.Background(), &DiagramModel{}, "gif")
	assert.Error(t, err)
}
