package rpc

import (
	"context"

	"PPGate/protocol"
)

// 网关内部接口路径（Zone 侧调用）。
const (
	PathGatewayPush       = "/internal/v1/push"
	PathGatewayDisconnect = "/internal/v1/disconnect"
)

// GatewayClient Zone 到某个网关实例的下行链路：只有推送和断连两件事。
type GatewayClient struct {
	caller *Caller
}

func NewGatewayClient(cfg Config) *GatewayClient {
	return &GatewayClient{caller: NewCaller(cfg)}
}

func (g *GatewayClient) Addr() string { return g.caller.BaseURL() }

// PushMessage 往目标用户当前连接推一帧。
func (g *GatewayClient) PushMessage(ctx context.Context, req *protocol.PushReq) (*protocol.PushResp, error) {
	var resp protocol.PushResp
	if err := g.caller.Call(ctx, PathGatewayPush, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DisconnectUser 强制断开目标用户的连接。
func (g *GatewayClient) DisconnectUser(ctx context.Context, req *protocol.DisconnectReq) error {
	return g.caller.Call(ctx, PathGatewayDisconnect, req, nil)
}
