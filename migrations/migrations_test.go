package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames_OrderedAndEmbedded(t *testing.T) {
	names, err := Names()
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(names), 2)
	assert.Equal(t, "001_procurement_schema.sql", names[0])

	for _, n := range names {
		b, err := files.ReadFile(n)
		require.NoError(t, err)
		assert.NotEmpty(t, b, n)
	}
}
