package gateway

import (
	"errors"
	"sync"
	"time"

	"PPGate/logger"
	"PPGate/tools/safe"
)

// ===== 配置 =====

type ManagerConf struct {
	HeartbeatTimeout time.Duration    // 超过该时长没有心跳即判死（如 75s）
	SweepEvery       time.Duration    // 清理周期（如 10s）
	Clock            func() time.Time // 可注入时钟（单测用）；nil => time.Now
}

func (c *ManagerConf) norm() {
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 75 * time.Second
	}
}

// OfflineNotifier 连接移除时上报用户下线。一定在锁外调用，
// 避免与路由层回调网关形成锁序颠倒。
type OfflineNotifier func(userID string)

// ===== 管理器 =====

// ConnManager 活跃连接注册表。单用户单会话模型：
// byUser 每个用户至多一条反向映射，新登录覆盖旧绑定。
type ConnManager struct {
	mu     sync.RWMutex
	byConn map[string]*Connection // 主索引：conn_id -> Connection
	byUser map[string]string      // 辅助索引：user_id -> conn_id

	conf     ManagerConf
	gateID   string
	notifier OfflineNotifier

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewConnManager(conf ManagerConf, gateID string) *ConnManager {
	conf.norm()
	m := &ConnManager{
		byConn: make(map[string]*Connection),
		byUser: make(map[string]string),
		conf:   conf,
		gateID: gateID,
		stopCh: make(chan struct{}),
	}
	safe.Go("conn-sweeper", m.sweeper)
	return m
}

func (m *ConnManager) GateID() string { return m.gateID }

// SetOfflineNotifier 必须在开始接客前设置。
func (m *ConnManager) SetOfflineNotifier(fn OfflineNotifier) {
	m.notifier = fn
}

func (m *ConnManager) Close() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.byConn))
	for _, c := range m.byConn {
		c.State = StateClosed
		conns = append(conns, c)
	}
	m.byConn = map[string]*Connection{}
	m.byUser = map[string]string{}
	m.mu.Unlock()

	for _, c := range conns {
		closeQuiet(c.transport)
	}
}

// ===== 注册/绑定 =====

// AddConnection 登记一条新连接；除插表外没有任何副作用。
func (m *ConnManager) AddConnection(connID string, t Transport) (*Connection, error) {
	if connID == "" || t == nil {
		return nil, errors.New("connID/transport empty")
	}
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byConn[connID]; exists {
		return nil, errors.New("connID exists")
	}
	c := &Connection{
		ConnID:        connID,
		State:         StateAccepted,
		ConnectedAt:   now,
		LastHeartbeat: now,
		transport:     t,
	}
	m.byConn[connID] = c
	return c, nil
}

// Ready 握手收尾完成，进入未授权态，开始收业务帧。
func (m *ConnManager) Ready(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.byConn[connID]; ok && c.State == StateAccepted {
		c.State = StateUnauthenticated
	}
}

// BindUser 把连接绑定到用户。重复登录时：
//   - 该连接已绑其他用户 => 先摘掉旧的反向映射；
//   - 该用户已绑在别的连接 => 清掉那条连接的身份字段，反向映射指向新连接。
func (m *ConnManager) BindUser(connID, userID, token, deviceID, deviceType string) bool {
	if connID == "" || userID == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.byConn[connID]
	if !ok {
		return false
	}

	if c.Authenticated && c.UserID != "" && c.UserID != userID {
		// 同一连接换了身份：不能留下两条反向映射指向同一条连接
		if m.byUser[c.UserID] == connID {
			delete(m.byUser, c.UserID)
		}
	}

	if oldConnID, ok := m.byUser[userID]; ok && oldConnID != connID {
		if old, ok := m.byConn[oldConnID]; ok {
			old.UserID = ""
			old.Token = ""
			old.DeviceID = ""
			old.DeviceType = ""
			old.Authenticated = false
			old.State = StateUnauthenticated
		}
	}

	c.UserID = userID
	c.Token = token
	c.DeviceID = deviceID
	c.DeviceType = deviceType
	c.Authenticated = true
	c.State = StateAuthenticated
	m.byUser[userID] = connID
	return true
}

// UnbindUser 摘掉反向映射并清身份字段，物理连接保持打开。
func (m *ConnManager) UnbindUser(userID string) {
	if userID == "" {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	connID, ok := m.byUser[userID]
	if !ok {
		return
	}
	delete(m.byUser, userID)
	if c, ok := m.byConn[connID]; ok {
		c.UserID = ""
		c.Token = ""
		c.DeviceID = ""
		c.DeviceType = ""
		c.Authenticated = false
		c.State = StateUnauthenticated
	}
}

// RemoveConnection 移除连接。带绑定用户时恰好触发一次下线上报；
// 上报在释放锁之后执行。这是 Zone 感知网关侧用户下线的唯一路径。
func (m *ConnManager) RemoveConnection(connID string) {
	if connID == "" {
		return
	}
	var boundUser string
	var t Transport

	m.mu.Lock()
	c, ok := m.byConn[connID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.byConn, connID)
	if c.Authenticated && c.UserID != "" {
		if m.byUser[c.UserID] == connID {
			delete(m.byUser, c.UserID)
			boundUser = c.UserID
		}
	}
	c.State = StateClosed
	t = c.transport
	m.mu.Unlock()

	closeQuiet(t)
	if boundUser != "" && m.notifier != nil {
		m.notifier(boundUser)
	}
}

// ===== 查询 =====

func (m *ConnManager) GetConnection(connID string) (*Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byConn[connID]
	return c, ok
}

// Identity 在读锁下取连接当前绑定的身份。BindUser 抢占旧连接时
// 会清这些字段，所以不能拿着 *Connection 在锁外读。
func (m *ConnManager) Identity(connID string) (userID, token string, ok bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.byConn[connID]
	if !ok {
		return "", "", false
	}
	return c.UserID, c.Token, true
}

func (m *ConnManager) GetConnIDByUser(userID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	connID, ok := m.byUser[userID]
	return connID, ok
}

func (m *ConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.byConn)
}

// ===== 收发 =====

// Heartbeat 刷新某条连接的心跳时间。
func (m *ConnManager) Heartbeat(connID string) error {
	now := m.conf.Clock()
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byConn[connID]
	if !ok {
		return errors.New("connID not found")
	}
	c.LastHeartbeat = now
	return nil
}

// SendToConn 往指定连接发一帧。写入由 Transport 串行化，
// 这里只在读锁下取出句柄，真正的写在锁外。
func (m *ConnManager) SendToConn(connID string, data []byte) error {
	m.mu.RLock()
	c, ok := m.byConn[connID]
	var t Transport
	if ok {
		t = c.transport
	}
	m.mu.RUnlock()
	if !ok || t == nil {
		return errors.New("connID not found")
	}
	return t.Send(data)
}

// SendToUser 按用户发送；无绑定连接时报错。
func (m *ConnManager) SendToUser(userID string, data []byte) error {
	m.mu.RLock()
	connID, ok := m.byUser[userID]
	m.mu.RUnlock()
	if !ok {
		return errors.New("user not connected")
	}
	return m.SendToConn(connID, data)
}

// CloseConn 强制关闭一条连接（幂等，Transport 自己保证只关一次）。
func (m *ConnManager) CloseConn(connID string) {
	m.mu.RLock()
	c, ok := m.byConn[connID]
	var t Transport
	if ok {
		t = c.transport
	}
	m.mu.RUnlock()
	if ok {
		closeQuiet(t)
	}
}

// ===== 清理协程 =====

func (m *ConnManager) sweeper() {
	t := time.NewTicker(m.conf.SweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-t.C:
			m.SweepOnce(m.conf.Clock())
		}
	}
}

// SweepOnce 关掉心跳过期的连接。只做关闭：注册表项由读循环退出时
// 的 RemoveConnection 移除，已在关闭中的连接这里自然跳过。
func (m *ConnManager) SweepOnce(now time.Time) int {
	var stale []Transport

	m.mu.RLock()
	for _, c := range m.byConn {
		if c.State == StateClosed {
			continue
		}
		if now.Sub(c.LastHeartbeat) > m.conf.HeartbeatTimeout {
			logger.Infof("[sweep] conn=%s user=%s last_heartbeat=%v stale, closing", c.ConnID, c.UserID, c.LastHeartbeat)
			stale = append(stale, c.transport)
		}
	}
	m.mu.RUnlock()

	for _, t := range stale {
		closeQuiet(t)
	}
	return len(stale)
}

func closeQuiet(t Transport) {
	if t != nil {
		_ = t.Close()
	}
}
