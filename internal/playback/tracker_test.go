package playback

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrackerLifecycle(t *testing.T) {
	tr := NewTracker()
	assert.False(t, tr.IsSpeaking())

	assert.True(t, tr.OnResponseStarted())
	assert.False(t, tr.OnResponseStarted())
	assert.True(t, tr.IsSpeaking())

	tr.OnResponseEnded()
	assert.False(t, tr.IsSpeaking())

	// 重复结束不影响状态
	tr.OnResponseEnded()
	assert.False(t, tr.IsSpeaking())
}

func TestTrackerDelivered(t *testing.T) {
	tr := NewTracker()
	tr.SetItem("item_1")
	tr.OnResponseStarted()
	tr.AddDelivered(20 * time.Millisecond)
	tr.AddDelivered(20 * time.Millisecond)

	assert.Equal(t, "item_1", tr.Item())
	assert.Equal(t, 40, tr.DeliveredMs())

	tr.OnResponseEnded()
	assert.Equal(t, 0, tr.DeliveredMs())
}
