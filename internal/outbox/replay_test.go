package outbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestReplayerBackoffIsCapped(t *testing.T) {
	r := NewReplayer(nil, 0, 0)
	require.Equal(t, time.Minute, r.backoff(1))
	require.Equal(t, 4*time.Minute, r.backoff(3))
	require.Equal(t, time.Hour, r.backoff(10))
	require.Equal(t, time.Hour, r.backoff(40))
}
