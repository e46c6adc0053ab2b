package bridge

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"ai_phone_bridge/internal/config"
)

// Manager 管理全部进行中的通话会话
type Manager struct {
	cfg  *config.Config
	deps Deps
	sem  *semaphore.Weighted

	mu       sync.RWMutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager 创建会话管理器
func NewManager(cfg *config.Config, deps Deps) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	limit := cfg.Server.MaxSessions
	if limit <= 0 {
		limit = 1
	}
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		sem:      semaphore.NewWeighted(limit),
		sessions: make(map[string]*Session),
	}
}

// Serve 为一条运营商连接运行会话，直到通话结束。
// 并发数已满时立即关闭连接并返回ErrTooManySessions。
func (m *Manager) Serve(ctx context.Context, carrier CarrierConn, remote string) error {
	if !m.sem.TryAcquire(1) {
		_ = carrier.Close()
		m.deps.Logger.Warn("拒绝新通话", "remote", remote, "error", ErrTooManySessions)
		return ErrTooManySessions
	}
	defer m.sem.Release(1)

	session, err := NewSession(uuid.NewString(), remote, m.cfg, carrier, m.deps)
	if err != nil {
		_ = carrier.Close()
		return err
	}

	m.wg.Add(1)
	defer m.wg.Done()
	m.mu.Lock()
	m.sessions[session.ID()] = session
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.sessions, session.ID())
		m.mu.Unlock()
	}()

	return session.Run(ctx)
}

// Get 按ID查找会话
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Count 当前会话数
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sessions 返回全部会话快照，按开始时间排序
func (m *Manager) Sessions() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		infos = append(infos, s.Info())
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].StartedAt.Before(infos[j].StartedAt)
	})
	return infos
}

// Shutdown 结束全部会话并等待退出，ctx到期时返回ctx.Err()
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, s := range m.sessions {
		s.Close()
	}
	n := len(m.sessions)
	m.mu.RUnlock()
	m.deps.Logger.Info("正在结束全部通话", "count", n)

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
