package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/conciergehq/concierge/config"
	"github.com/conciergehq/concierge/types"
)

func TestDisabledArchive(t *testing.T) {
	a, err := New(context.Background(), config.ArchiveConfig{Enabled: false}, zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, a.Enabled())
	assert.NoError(t, a.Save(context.Background(), &types.CrewOutput{
		RequestID: "req-1",
		CrewKey:   "news_digest",
	}))

	results, err := a.ListByCrew(context.Background(), "news_digest", 10)
	assert.NoError(t, err)
	assert.Nil(t, results)

	assert.NoError(t, a.Close(context.Background()))
}

func TestNilArchiveIsSafe(t *testing.T) {
	var a *Archive
	assert.False(t, a.Enabled())
	assert.NoError(t, a.Save(context.Background(), &types.CrewOutput{RequestID: "req-1"}))
	assert.NoError(t, a.Close(context.Background()))
}
