package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestActorContextRoundTrip(t *testing.T) {
	ctx := ContextWithActor(context.Background(), 42)
	id, ok := ActorFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, int64(42), id)

	_, ok = ActorFromContext(context.Background())
	require.False(t, ok)

	_, ok = ActorFromContext(ContextWithActor(context.Background(), 0))
	require.False(t, ok)
}
