package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNotifierFanOut(t *testing.T) {
	n := NewNotifier()

	var got []int32
	cancel := n.Subscribe(func(conversationID int32) {
		got = append(got, conversationID)
	})

	n.Invalidate(7)
	n.Invalidate(9)
	require.Equal(t, []int32{7, 9}, got)

	cancel()
	n.Invalidate(11)
	require.Equal(t, []int32{7, 9}, got)
}

func TestNotifierMultipleSubscribers(t *testing.T) {
	n := NewNotifier()

	var a, b int
	cancelA := n.Subscribe(func(int32) { a++ })
	defer cancelA()
	cancelB := n.Subscribe(func(int32) { b++ })

	n.Invalidate(1)
	cancelB()
	n.Invalidate(2)

	require.Equal(t, 2, a)
	require.Equal(t, 1, b)
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.recordSubmit("ok")
	m.recordCompletionLatency(0)
	m.setQueueDepth(3)
}
