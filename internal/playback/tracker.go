// Package playback 跟踪合成语音向来电方的播放状态
package playback

import (
	"sync"
	"time"
)

// Tracker 播放跟踪器，idle与speaking两种状态
type Tracker struct {
	mu        sync.RWMutex
	speaking  bool
	itemID    string
	delivered time.Duration
}

// NewTracker 创建播放跟踪器
func NewTracker() *Tracker {
	return &Tracker{}
}

// IsSpeaking 是否正在播放合成语音
func (t *Tracker) IsSpeaking() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.speaking
}

// OnResponseStarted 收到一次回复的音频增量时调用。
// 仅在idle到speaking转换时返回true。
func (t *Tracker) OnResponseStarted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.speaking {
		return false
	}
	t.speaking = true
	t.delivered = 0
	return true
}

// OnResponseEnded 回复完成或被取消时调用
func (t *Tracker) OnResponseEnded() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.speaking = false
	t.delivered = 0
}

// SetItem 记录当前助手消息的ID
func (t *Tracker) SetItem(itemID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.itemID = itemID
}

// Item 返回当前助手消息的ID
func (t *Tracker) Item() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.itemID
}

// AddDelivered 累加已发送给来电方的音频时长
func (t *Tracker) AddDelivered(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.delivered += d
}

// DeliveredMs 当前回复已发送的音频毫秒数，用于截断助手消息
func (t *Tracker) DeliveredMs() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return int(t.delivered / time.Millisecond)
}
