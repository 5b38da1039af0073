package zone

import (
	"context"
	"sync"
	"time"

	"PPGate/tools/errs"
)

// SessionStore 会话与网关注册表的权威存储。
// 两种实现互换：进程内 map（单实例部署）和 Redis（多副本部署，
// 任一 Zone 副本都能解析任意用户）。同进程内两者都保证写后读一致；
// 跨副本一致性由部署自己负责，不在本组件承诺范围。
type SessionStore interface {
	// SetOnline 插入/覆盖会话；gate_id 未注册时返回 ErrGateNotFound，
	// 且不留下任何会话。最后写入者赢，不合并、不多端。
	SetOnline(ctx context.Context, sess *UserSession) error
	// SetOffline 无条件删除；删不存在的会话也算成功。
	SetOffline(ctx context.Context, userID string) error
	GetSession(ctx context.Context, userID string) (*UserSession, bool)
	// GetSessions 批量点查；不在线的用户直接缺席于结果。
	GetSessions(ctx context.Context, userIDs []string) map[string]*UserSession

	// RegisterGate upsert 语义。
	RegisterGate(ctx context.Context, node *GatewayNode) error
	// UpdateGateHeartbeat 未知 gate_id 返回 ErrGateNotFound。
	UpdateGateHeartbeat(ctx context.Context, gateID string, connections int) error
	GetGate(ctx context.Context, gateID string) (*GatewayNode, bool)
	// StaleGates 心跳超过 maxAge 的网关。只观测，不摘除：
	// 指向死网关的会话留给下一次推送去失败。
	StaleGates(ctx context.Context, maxAge time.Duration) []string
}

// MemoryStore 进程内实现。读写锁：点查/批查走读路径，
// 上下线/注册走写路径。
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*UserSession
	gates    map[string]*GatewayNode
	clock    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(time.Now)
}

func NewMemoryStoreWithClock(clock func() time.Time) *MemoryStore {
	if clock == nil {
		clock = time.Now
	}
	return &MemoryStore{
		sessions: make(map[string]*UserSession),
		gates:    make(map[string]*GatewayNode),
		clock:    clock,
	}
}

func (s *MemoryStore) SetOnline(_ context.Context, sess *UserSession) error {
	if sess == nil || sess.UserID == "" || sess.GateID == "" {
		return errs.ErrInvalidParam.WithDetail("session requires user_id and gate_id")
	}
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	gate, ok := s.gates[sess.GateID]
	if !ok {
		// 会话不能指向路由不认识的网关
		return errs.ErrGateNotFound.WithDetail("gate_id=" + sess.GateID)
	}
	cp := *sess
	cp.GateAddr = gate.Address
	if cp.OnlineAt.IsZero() {
		cp.OnlineAt = now
	}
	cp.LastActiveAt = now
	s.sessions[cp.UserID] = &cp
	return nil
}

func (s *MemoryStore) SetOffline(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, userID)
	return nil
}

func (s *MemoryStore) GetSession(_ context.Context, userID string) (*UserSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	if !ok {
		return nil, false
	}
	cp := *sess
	return &cp, true
}

func (s *MemoryStore) GetSessions(_ context.Context, userIDs []string) map[string]*UserSession {
	out := make(map[string]*UserSession, len(userIDs))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range userIDs {
		if sess, ok := s.sessions[id]; ok {
			cp := *sess
			out[id] = &cp
		}
	}
	return out
}

func (s *MemoryStore) RegisterGate(_ context.Context, node *GatewayNode) error {
	if node == nil || node.GateID == "" || node.Address == "" {
		return errs.ErrInvalidParam.WithDetail("gate requires gate_id and address")
	}
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *node
	if old, ok := s.gates[cp.GateID]; ok {
		cp.RegisteredAt = old.RegisteredAt
	} else if cp.RegisteredAt.IsZero() {
		cp.RegisteredAt = now
	}
	cp.LastHeartbeat = now
	s.gates[cp.GateID] = &cp
	return nil
}

func (s *MemoryStore) UpdateGateHeartbeat(_ context.Context, gateID string, connections int) error {
	now := s.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	gate, ok := s.gates[gateID]
	if !ok {
		return errs.ErrGateNotFound.WithDetail("gate_id=" + gateID)
	}
	gate.LastHeartbeat = now
	gate.CurrentConnections = connections
	return nil
}

func (s *MemoryStore) GetGate(_ context.Context, gateID string) (*GatewayNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gate, ok := s.gates[gateID]
	if !ok {
		return nil, false
	}
	cp := *gate
	return &cp, true
}

func (s *MemoryStore) StaleGates(_ context.Context, maxAge time.Duration) []string {
	now := s.clock()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, gate := range s.gates {
		if now.Sub(gate.LastHeartbeat) > maxAge {
			out = append(out, id)
		}
	}
	return out
}
