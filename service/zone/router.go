package zone

import (
	"context"
	"encoding/json"
	"sync"

	"PPGate/logger"
	"PPGate/protocol"
	"PPGate/service/rpc"
	"PPGate/tools/errs"
)

// GatewayPusher Zone 侧看到的网关能力。按 gate_addr 缓存。
type GatewayPusher interface {
	Addr() string
	PushMessage(ctx context.Context, req *protocol.PushReq) (*protocol.PushResp, error)
	DisconnectUser(ctx context.Context, req *protocol.DisconnectReq) error
}

// ClientFactory 测试时替换为假客户端。
type ClientFactory func(addr string) GatewayPusher

// Router 把下行消息路由到用户所在网关。客户端按地址缓存，
// 网关迁移或挂掉时丢弃重建，不做主动探活。
type Router struct {
	store   SessionStore
	factory ClientFactory

	mu      sync.RWMutex
	clients map[string]GatewayPusher // gate_addr -> client
}

func NewRouter(store SessionStore, secret string, factory ClientFactory) *Router {
	if factory == nil {
		factory = func(addr string) GatewayPusher {
			return rpc.NewGatewayClient(rpc.Config{BaseURL: addr, Secret: secret})
		}
	}
	return &Router{
		store:   store,
		factory: factory,
		clients: make(map[string]GatewayPusher),
	}
}

func (r *Router) client(addr string) GatewayPusher {
	r.mu.RLock()
	cli, ok := r.clients[addr]
	r.mu.RUnlock()
	if ok {
		return cli
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cli, ok = r.clients[addr]; ok {
		return cli
	}
	cli = r.factory(addr)
	r.clients[addr] = cli
	return cli
}

// discard 推送失败后丢掉缓存的客户端，下次重建。
func (r *Router) discard(addr string) {
	r.mu.Lock()
	delete(r.clients, addr)
	r.mu.Unlock()
}

// RouteToUser 单发。用户不在线时不发任何网络请求。
// 返回 (user_online, delivered)。
func (r *Router) RouteToUser(ctx context.Context, userID, cmd string, payload json.RawMessage) (bool, bool) {
	sess, ok := r.store.GetSession(ctx, userID)
	if !ok {
		return false, false
	}
	delivered := r.pushTo(ctx, sess, cmd, payload)
	return true, delivered
}

func (r *Router) pushTo(ctx context.Context, sess *UserSession, cmd string, payload json.RawMessage) bool {
	cli := r.client(sess.GateAddr)
	resp, err := cli.PushMessage(ctx, &protocol.PushReq{
		UserID:  sess.UserID,
		Cmd:     cmd,
		Payload: payload,
	})
	if err != nil {
		// 网关可能已经死了，会话等它重连时自然被覆盖；这里只丢客户端
		if errs.CodeOf(err) != errs.CodeUserOffline {
			r.discard(sess.GateAddr)
		}
		logger.Warnf("[router] push user=%s gate=%s err=%v", sess.UserID, sess.GateID, err)
		return false
	}
	return resp.OK
}

// Broadcast 批量下发，逐个网关推送。返回在线数与实际送达数。
func (r *Router) Broadcast(ctx context.Context, userIDs []string, cmd string, payload json.RawMessage) (online int, delivered int) {
	sessions := r.store.GetSessions(ctx, userIDs)
	for _, sess := range sessions {
		online++
		if r.pushTo(ctx, sess, cmd, payload) {
			delivered++
		}
	}
	return online, delivered
}

// Kick 踢下线：通知网关断开连接并清会话。网关不可达时也要删会话，
// 否则用户会卡在"在线"状态。
func (r *Router) Kick(ctx context.Context, userID string) error {
	sess, ok := r.store.GetSession(ctx, userID)
	if !ok {
		return nil
	}
	cli := r.client(sess.GateAddr)
	if err := cli.DisconnectUser(ctx, &protocol.DisconnectReq{UserID: userID}); err != nil {
		r.discard(sess.GateAddr)
		logger.Warnf("[router] kick user=%s gate=%s err=%v", userID, sess.GateID, err)
	}
	return r.store.SetOffline(ctx, userID)
}
