package supabase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udl-core/pipeline"
)

func TestNewPluginShapesTheSourcePipelineContract(t *testing.T) {
	p, err := NewPlugin(Config{
		PluginName:     "articles",
		URL:            "https://example.supabase.co",
		ServiceRoleKey: "service-role-key",
		Table:          "articles",
		NodeType:       "Article",
		IDColumn:       "id",
	})
	require.NoError(t, err)

	assert.Equal(t, "articles", p.Name)
	assert.Equal(t, pipeline.StrategyRefetch, p.Strategy)
	assert.Equal(t, "externalID", p.IDField)
	require.Len(t, p.Indexes, 1)
	assert.Equal(t, "Article", p.Indexes[0].Type)
	assert.NotNil(t, p.SourceNodes)
}
