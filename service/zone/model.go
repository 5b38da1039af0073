package zone

import "time"

// UserSession 一个在线用户的会话记录：用户此刻从哪个网关可达。
// 单用户单会话：同一 user_id 任何时刻至多一条，新登录整体覆盖旧记录。
type UserSession struct {
	UserID       string    `json:"user_id"`
	GateID       string    `json:"gate_id"`
	GateAddr     string    `json:"gate_addr"`
	DeviceType   string    `json:"device_type,omitempty"`
	DeviceID     string    `json:"device_id,omitempty"`
	OnlineAt     time.Time `json:"online_at"`
	LastActiveAt time.Time `json:"last_active_at"`
}

// GatewayNode 一个已注册的网关实例。
// gate_id 唯一；UserOnline 引用未注册的 gate_id 必须失败。
type GatewayNode struct {
	GateID             string    `json:"gate_id"`
	Address            string    `json:"address"`
	CurrentConnections int       `json:"current_connections"`
	RegisteredAt       time.Time `json:"registered_at"`
	LastHeartbeat      time.Time `json:"last_heartbeat"`
}
