package zone

import (
	"context"
	"strings"

	"PPGate/logger"
	"PPGate/protocol"
	"PPGate/tools/errs"
)

// Facade 一个命名空间的命令处理器。action 是 cmd 去掉前缀后的部分，
// 例如 "chat.send_message" 到 chat 门面时 action="send_message"。
type Facade interface {
	Namespace() string
	Handle(ctx context.Context, action string, req *protocol.ClientRequest) *protocol.ClientResponse
}

// DispatchTable 静态命令分发表。启动时注册完毕，运行期只读，
// 不加锁。
type DispatchTable struct {
	facades map[string]Facade
}

func NewDispatchTable(facades ...Facade) *DispatchTable {
	t := &DispatchTable{facades: make(map[string]Facade, len(facades))}
	for _, f := range facades {
		t.Register(f)
	}
	return t
}

// Register 重复注册同一命名空间直接覆盖，最后注册者生效。
func (t *DispatchTable) Register(f Facade) {
	if f == nil {
		return
	}
	t.facades[f.Namespace()] = f
}

// HandleClientRequest 命令入口。cmd 形如 "<namespace>.<action>"；
// 命名空间或动作未注册都回 UNSUPPORTED，request_id 原样带回。
func (t *DispatchTable) HandleClientRequest(ctx context.Context, req *protocol.ClientRequest) *protocol.ClientResponse {
	if req == nil || req.Cmd == "" {
		return errResp("", errs.ErrInvalidParam.WithDetail("cmd required"))
	}
	ns, action, ok := splitCmd(req.Cmd)
	if !ok {
		return errResp(req.RequestID, errs.ErrUnsupported.WithDetail("cmd="+req.Cmd))
	}
	f, ok := t.facades[ns]
	if !ok {
		return errResp(req.RequestID, errs.ErrUnsupported.WithDetail("cmd="+req.Cmd))
	}
	resp := f.Handle(ctx, action, req)
	if resp == nil {
		logger.Errorf("[dispatch] facade %s returned nil resp cmd=%s", ns, req.Cmd)
		return errResp(req.RequestID, errs.ErrInternal)
	}
	if resp.RequestID == "" {
		resp.RequestID = req.RequestID
	}
	return resp
}

func splitCmd(cmd string) (ns, action string, ok bool) {
	i := strings.IndexByte(cmd, '.')
	if i <= 0 || i == len(cmd)-1 {
		return "", "", false
	}
	return cmd[:i], cmd[i+1:], true
}
