package protocol

import "encoding/json"

// 内部 RPC（服务间）契约。所有请求都要求 x-internal-secret 头，
// 响应统一用 Envelope 包裹。

const InternalSecretHeader = "x-internal-secret"

// Envelope 内部 RPC 响应包裹。
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ---- Zone 暴露（网关调用）----

type UserOnlineReq struct {
	UserID     string `json:"user_id"`
	GateID     string `json:"gate_id"`
	DeviceType string `json:"device_type,omitempty"`
	DeviceID   string `json:"device_id,omitempty"`
}

type UserOfflineReq struct {
	UserID string `json:"user_id"`
	GateID string `json:"gate_id"`
}

type GateRegisterReq struct {
	GateID             string `json:"gate_id"`
	Address            string `json:"address"`
	CurrentConnections int    `json:"current_connections"`
}

type GateHeartbeatReq struct {
	GateID             string `json:"gate_id"`
	CurrentConnections int    `json:"current_connections"`
}

// ClientRequest 网关转发的客户端命令。token 为空串表示未认证连接，
// 是否可接受由后端门面决定，不在网关判断。
type ClientRequest struct {
	ConnID    string          `json:"conn_id"`
	UserID    string          `json:"user_id,omitempty"`
	Cmd       string          `json:"cmd"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Token     string          `json:"token,omitempty"`
}

// ClientResponse 命令处理结果；request_id 原样带回用于关联。
type ClientResponse struct {
	Code      int             `json:"code"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
}

// ---- 网关暴露（Zone 调用）----

type PushReq struct {
	UserID  string          `json:"user_id"`
	Cmd     string          `json:"cmd"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type PushResp struct {
	OK bool `json:"ok"`
}

type DisconnectReq struct {
	UserID string `json:"user_id"`
}

// ---- Zone 暴露（任意特权调用方）----

type RouteReq struct {
	UserID  string          `json:"user_id"`
	Cmd     string          `json:"cmd"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type RouteResp struct {
	UserOnline bool `json:"user_online"`
	Delivered  bool `json:"delivered"`
}

type BroadcastReq struct {
	UserIDs []string        `json:"user_ids"`
	Cmd     string          `json:"cmd"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type BroadcastResp struct {
	OnlineCount    int `json:"online_count"`
	DeliveredCount int `json:"delivered_count"`
}

type UserStatusReq struct {
	UserIDs []string `json:"user_ids"`
}

// UserStatusResp user_id -> gate_id，只包含在线用户。
type UserStatusResp struct {
	Online map[string]string `json:"online"`
}

type KickReq struct {
	UserID string `json:"user_id"`
}
