package zone

import (
	"context"
	"encoding/json"

	"PPGate/protocol"
	"PPGate/service/rpc"
	"PPGate/tools/errs"
)

// 后端门面统一暴露的处理路径。
const PathBackendHandle = "/internal/v1/handle"

// Invoker 一个后端门面（auth/chat/friend/group/file）的调用入口。
// action 已剥掉命名空间前缀。
type Invoker interface {
	Invoke(ctx context.Context, req *protocol.ClientRequest) (*protocol.ClientResponse, error)
}

// httpInvoker 基于内部 RPC 调用远端门面服务。
type httpInvoker struct {
	caller *rpc.Caller
}

// NewBackendInvoker 构造到某个后端门面的调用器；addr 为空返回 nil，
// 表示该门面未部署。
func NewBackendInvoker(cfg rpc.Config) Invoker {
	if cfg.BaseURL == "" {
		return nil
	}
	return &httpInvoker{caller: rpc.NewCaller(cfg)}
}

func (b *httpInvoker) Invoke(ctx context.Context, req *protocol.ClientRequest) (*protocol.ClientResponse, error) {
	var resp protocol.ClientResponse
	if err := b.caller.Call(ctx, PathBackendHandle, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// okResp / errResp 门面实现里拼响应的小工具。
func okResp(reqID string, payload any) *protocol.ClientResponse {
	resp := &protocol.ClientResponse{Code: errs.CodeOK, RequestID: reqID}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return errResp(reqID, errs.ErrInternal.WithDetail("marshal payload"))
		}
		resp.Payload = raw
	}
	return resp
}

func errResp(reqID string, err error) *protocol.ClientResponse {
	return &protocol.ClientResponse{
		Code:      errs.CodeOf(err),
		Message:   errs.MsgOf(err),
		RequestID: reqID,
	}
}
