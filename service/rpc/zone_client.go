package rpc

import (
	"context"

	"PPGate/protocol"
)

// Zone 内部接口路径（网关侧调用）。
const (
	PathUserOnline    = "/internal/v1/user/online"
	PathUserOffline   = "/internal/v1/user/offline"
	PathGateRegister  = "/internal/v1/gate/register"
	PathGateHeartbeat = "/internal/v1/gate/heartbeat"
	PathClientRequest = "/internal/v1/client/request"
)

// Zone 内部接口路径（特权调用方）。
const (
	PathRouteMessage   = "/internal/v1/route/message"
	PathRouteBroadcast = "/internal/v1/route/broadcast"
	PathUserStatus     = "/internal/v1/user/status"
	PathUserPush       = "/internal/v1/user/push"
	PathUserKick       = "/internal/v1/user/kick"
)

// ZoneClient 网关到 Zone 的上行链路：注册、心跳、上下线、命令转发。
type ZoneClient struct {
	caller *Caller
}

func NewZoneClient(cfg Config) *ZoneClient {
	return &ZoneClient{caller: NewCaller(cfg)}
}

func (z *ZoneClient) UserOnline(ctx context.Context, req *protocol.UserOnlineReq) error {
	return z.caller.Call(ctx, PathUserOnline, req, nil)
}

func (z *ZoneClient) UserOffline(ctx context.Context, req *protocol.UserOfflineReq) error {
	return z.caller.Call(ctx, PathUserOffline, req, nil)
}

func (z *ZoneClient) GateRegister(ctx context.Context, req *protocol.GateRegisterReq) error {
	return z.caller.Call(ctx, PathGateRegister, req, nil)
}

func (z *ZoneClient) GateHeartbeat(ctx context.Context, req *protocol.GateHeartbeatReq) error {
	return z.caller.Call(ctx, PathGateHeartbeat, req, nil)
}

// HandleClientRequest 转发一条客户端命令，返回可直接回写客户端的结果。
// 业务失败也落在 resp.Code 上；只有传输层问题才返回 error。
func (z *ZoneClient) HandleClientRequest(ctx context.Context, req *protocol.ClientRequest) (*protocol.ClientResponse, error) {
	var resp protocol.ClientResponse
	if err := z.caller.Call(ctx, PathClientRequest, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
