package zone

import (
	"context"

	"PPGate/protocol"
	"PPGate/tools/errs"
)

// ForwardFacade 纯转发门面：friend/group/file 这类没有路由副作用的
// 命名空间，Zone 只做动作白名单和后端可用性判断，其余原样透传。
type ForwardFacade struct {
	ns      string
	backend Invoker
	actions map[string]struct{}
}

func NewForwardFacade(ns string, backend Invoker, actions ...string) *ForwardFacade {
	set := make(map[string]struct{}, len(actions))
	for _, a := range actions {
		set[a] = struct{}{}
	}
	return &ForwardFacade{ns: ns, backend: backend, actions: set}
}

func (f *ForwardFacade) Namespace() string { return f.ns }

func (f *ForwardFacade) Handle(ctx context.Context, action string, req *protocol.ClientRequest) *protocol.ClientResponse {
	if _, ok := f.actions[action]; !ok {
		return errResp(req.RequestID, errs.ErrUnsupported.WithDetail("cmd="+req.Cmd))
	}
	if f.backend == nil {
		return errResp(req.RequestID, errs.ErrServiceUnavailable.WithDetail(f.ns+" backend not configured"))
	}
	resp, err := f.backend.Invoke(ctx, req)
	if err != nil {
		return errResp(req.RequestID, err)
	}
	return resp
}

// NewFriendFacade 好友关系门面。
func NewFriendFacade(backend Invoker) *ForwardFacade {
	return NewForwardFacade("friend", backend, "add", "remove", "list")
}

// NewGroupFacade 群组门面。members 同时被 chat 门面用来解析群发目标。
func NewGroupFacade(backend Invoker) *ForwardFacade {
	return NewForwardFacade("group", backend, "create", "join", "leave", "members")
}

// NewFileFacade 文件门面：只发凭证/元数据，字节流不经过这里。
func NewFileFacade(backend Invoker) *ForwardFacade {
	return NewForwardFacade("file", backend, "upload_init", "upload_complete", "download_url")
}
