// Package turn 检测来电方一句话的结束，决定何时提交输入缓冲区
package turn

import (
	"sync"
	"time"
)

// 轮询间隔的取值范围
const (
	MinPollInterval = 10 * time.Millisecond
	MaxPollInterval = 100 * time.Millisecond
)

// Config 检测器配置
type Config struct {
	SilenceThreshold time.Duration             // 静音超过该时长即判定一句话结束
	MaxBuffered      time.Duration             // 缓冲时长上限，超过则强制提交
	Duration         func(n int) time.Duration // 将缓冲字节数换算为时长
}

// Detector 轮次边界检测器。并发安全。
type Detector struct {
	cfg Config

	mu        sync.Mutex
	buffered  int
	lastFrame time.Time
}

// NewDetector 创建检测器
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Observe 记录收到的一帧音频
func (d *Detector) Observe(n int, at time.Time) {
	if n <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buffered += n
	d.lastFrame = at
}

// Check 判断此刻是否应提交。返回true时累计量已清零。
func (d *Detector) Check(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.buffered == 0 {
		return false
	}
	if now.Sub(d.lastFrame) >= d.cfg.SilenceThreshold || d.overCeiling() {
		d.reset()
		return true
	}
	return false
}

// Flush 立即结束当前一句话，返回被提交的字节数；无缓冲时返回0
func (d *Detector) Flush() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := d.buffered
	d.reset()
	return n
}

// Reset 丢弃缓冲但不发出提交信号
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reset()
}

// Buffered 返回未提交的字节数
func (d *Detector) Buffered() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.buffered
}

func (d *Detector) overCeiling() bool {
	if d.cfg.MaxBuffered <= 0 || d.cfg.Duration == nil {
		return false
	}
	return d.cfg.Duration(d.buffered) >= d.cfg.MaxBuffered
}

func (d *Detector) reset() {
	d.buffered = 0
	d.lastFrame = time.Time{}
}

// ClampPollInterval 将轮询间隔限制在允许范围内
func ClampPollInterval(d time.Duration) time.Duration {
	if d < MinPollInterval {
		return MinPollInterval
	}
	if d > MaxPollInterval {
		return MaxPollInterval
	}
	return d
}
