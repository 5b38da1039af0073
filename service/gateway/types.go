package gateway

import (
	"time"
)

// Transport 一条物理连接的收发面。注册进 ConnManager 后，
// 发送与强制关闭都走这个接口，连接层不反向依赖路由层的类型。
type Transport interface {
	Send(data []byte) error
	Close() error
}

// ConnState 连接状态机：
// Connecting -> Accepted -> Unauthenticated -> Authenticated -> Closed
// 只有 auth.login 能改变身份；其他命令不动连接状态。
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAccepted
	StateUnauthenticated
	StateAuthenticated
	StateClosed
)

// Connection 一条活跃连接的注册表项。由 ConnManager 独占持有，
// Transport Session 只保留自己的 conn_id。
type Connection struct {
	ConnID     string
	UserID     string // 登录成功前为空
	DeviceID   string
	DeviceType string
	Token      string // 只驻留内存

	State         ConnState
	Authenticated bool

	ConnectedAt   time.Time
	LastHeartbeat time.Time

	transport Transport
}

// Snapshot 拷贝一份对外暴露的只读副本（不含 transport）。
func (c *Connection) Snapshot() Connection {
	cp := *c
	cp.transport = nil
	return cp
}
