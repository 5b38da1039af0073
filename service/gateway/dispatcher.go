package gateway

import (
	"context"
	"encoding/json"
	"time"

	"PPGate/logger"
	"PPGate/protocol"
	"PPGate/tools/decode"
	"PPGate/tools/errs"
)

// ZoneLink 网关对 Zone 的上行依赖，rpc.ZoneClient 是生产实现。
type ZoneLink interface {
	HandleClientRequest(ctx context.Context, req *protocol.ClientRequest) (*protocol.ClientResponse, error)
	UserOnline(ctx context.Context, req *protocol.UserOnlineReq) error
	UserOffline(ctx context.Context, req *protocol.UserOfflineReq) error
}

// LoginPayload auth.login 的负载。token 是此前签发好的凭证，
// 账号密码校验发生在更早的环节，不经过网关。
type LoginPayload struct {
	Token      string `json:"token"`
	DeviceID   string `json:"device_id,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

type validateTokenReq struct {
	Token string `json:"token"`
}

type validateTokenResp struct {
	UserID string `json:"user_id"`
}

type loginAck struct {
	UserID     string `json:"user_id"`
	ServerTime int64  `json:"server_time"`
}

type heartbeatAck struct {
	ServerTime int64 `json:"server_time"`
}

// Dispatcher 入站命令分类器：heartbeat / auth.login 本地处理，
// 已知命名空间转发给 Zone，未知命令本地报错。
type Dispatcher struct {
	mgr  *ConnManager
	zone ZoneLink

	callTimeout    time.Duration // 登录校验等轻调用
	forwardTimeout time.Duration // 普通命令转发
	clock          func() time.Time
}

func NewDispatcher(mgr *ConnManager, zone ZoneLink) *Dispatcher {
	return &Dispatcher{
		mgr:            mgr,
		zone:           zone,
		callTimeout:    5 * time.Second,
		forwardTimeout: 10 * time.Second,
		clock:          time.Now,
	}
}

// Dispatch 处理一帧，返回要回写的响应帧（可能为 nil）。
// 同一连接的帧在读循环里按到达顺序逐条进来，这里不做并发。
func (d *Dispatcher) Dispatch(connID string, f *protocol.Frame) *protocol.Frame {
	switch {
	case f.Cmd == protocol.CmdHeartbeat:
		return d.handleHeartbeat(connID, f)
	case f.Cmd == protocol.CmdLogin:
		return d.handleLogin(connID, f)
	case protocol.KnownNamespace(f.Cmd):
		return d.forward(connID, f)
	default:
		return protocol.ErrFrame(f.Cmd, f.RequestID, errs.CodeUnsupported, "unsupported command: "+f.Cmd)
	}
}

// heartbeat 不出网关进程：刷新时间戳，回当前服务器时间。
func (d *Dispatcher) handleHeartbeat(connID string, f *protocol.Frame) *protocol.Frame {
	if err := d.mgr.Heartbeat(connID); err != nil {
		return protocol.ErrFrame(f.Cmd, f.RequestID, errs.CodeInternal, "connection not registered")
	}
	payload, _ := json.Marshal(heartbeatAck{ServerTime: d.clock().UnixMilli()})
	return protocol.OKFrame(f.Cmd, f.RequestID, payload)
}

func (d *Dispatcher) handleLogin(connID string, f *protocol.Frame) *protocol.Frame {
	lp, err := decode.DecodeJSON[LoginPayload](f.Payload)
	if err != nil || lp.Token == "" {
		return protocol.ErrFrame(f.Cmd, f.RequestID, errs.CodeInvalidParam, "login payload missing token")
	}

	// 凭证校验走 Zone 链路，网关自己不认 token
	vreq, _ := json.Marshal(validateTokenReq{Token: lp.Token})
	ctx, cancel := context.WithTimeout(context.Background(), d.callTimeout)
	defer cancel()
	resp, err := d.zone.HandleClientRequest(ctx, &protocol.ClientRequest{
		ConnID:    connID,
		Cmd:       protocol.CmdValidateToken,
		Payload:   vreq,
		RequestID: f.RequestID,
		Token:     lp.Token,
	})
	if err != nil {
		logger.Warnf("[login] validate rpc failed conn=%s err=%v", connID, err)
		return protocol.ErrFrame(f.Cmd, f.RequestID, errs.CodeOf(err), errs.MsgOf(err))
	}
	if resp.Code != errs.CodeOK {
		// 凭证无效：不做任何绑定
		return protocol.ErrFrame(f.Cmd, f.RequestID, resp.Code, resp.Message)
	}

	var vr validateTokenResp
	if err := json.Unmarshal(resp.Payload, &vr); err != nil || vr.UserID == "" {
		return protocol.ErrFrame(f.Cmd, f.RequestID, errs.CodeInternal, "validate reply malformed")
	}

	if !d.mgr.BindUser(connID, vr.UserID, lp.Token, lp.DeviceID, lp.DeviceType) {
		return protocol.ErrFrame(f.Cmd, f.RequestID, errs.CodeInternal, "connection gone")
	}

	// 会话全局可见：告知 Zone 用户上线
	octx, ocancel := context.WithTimeout(context.Background(), d.callTimeout)
	defer ocancel()
	if err := d.zone.UserOnline(octx, &protocol.UserOnlineReq{
		UserID:     vr.UserID,
		GateID:     d.mgr.GateID(),
		DeviceType: lp.DeviceType,
		DeviceID:   lp.DeviceID,
	}); err != nil {
		logger.Warnf("[login] user online failed user=%s err=%v", vr.UserID, err)
		d.mgr.UnbindUser(vr.UserID)
		return protocol.ErrFrame(f.Cmd, f.RequestID, errs.CodeOf(err), errs.MsgOf(err))
	}

	ack, _ := json.Marshal(loginAck{UserID: vr.UserID, ServerTime: d.clock().UnixMilli()})
	return protocol.OKFrame(f.Cmd, f.RequestID, ack)
}

// forward 已知命名空间的命令无条件转发，带上连接当前的
// user_id 和 token（未认证为空串，接不接受由后端门面决定）。
func (d *Dispatcher) forward(connID string, f *protocol.Frame) *protocol.Frame {
	userID, token, _ := d.mgr.Identity(connID)

	ctx, cancel := context.WithTimeout(context.Background(), d.forwardTimeout)
	defer cancel()
	resp, err := d.zone.HandleClientRequest(ctx, &protocol.ClientRequest{
		ConnID:    connID,
		UserID:    userID,
		Cmd:       f.Cmd,
		Payload:   f.Payload,
		RequestID: f.RequestID,
		Token:     token,
	})
	if err != nil {
		logger.Warnf("[forward] cmd=%s conn=%s err=%v", f.Cmd, connID, err)
		return protocol.ErrFrame(f.Cmd, f.RequestID, errs.CodeForwardFailed, "forward failed")
	}
	reqID := resp.RequestID
	if reqID == "" {
		reqID = f.RequestID
	}
	return &protocol.Frame{
		Cmd:       f.Cmd,
		RequestID: reqID,
		Code:      resp.Code,
		Message:   resp.Message,
		Payload:   resp.Payload,
	}
}
