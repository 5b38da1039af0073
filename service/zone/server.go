package zone

import (
	"encoding/json"
	"net/http"

	"PPGate/logger"
	midsec "PPGate/middleware/security"
	"PPGate/protocol"
	"PPGate/tools/errs"

	"github.com/gin-gonic/gin"
)

// Server Zone 内部 RPC 面：会话登记（网关调用）、命令分发（网关转发）、
// 下行路由（任意特权服务调用）。
type Server struct {
	store    SessionStore
	router   *Router
	table    *DispatchTable
	presence PresenceEvents // 可为 nil
}

func NewServer(store SessionStore, router *Router, table *DispatchTable, presence PresenceEvents) *Server {
	return &Server{store: store, router: router, table: table, presence: presence}
}

// RegisterRoutes 挂到 gin 上；所有路由都要求内部密钥。
func (s *Server) RegisterRoutes(r gin.IRouter, secret string) {
	g := r.Group("/internal/v1", midsec.InternalSecret(midsec.DefaultOptions(secret)))

	g.POST("/user/online", s.handleUserOnline)
	g.POST("/user/offline", s.handleUserOffline)
	g.POST("/gate/register", s.handleGateRegister)
	g.POST("/gate/heartbeat", s.handleGateHeartbeat)
	g.POST("/client/request", s.handleClientRequest)

	g.POST("/route/message", s.handleRouteMessage)
	g.POST("/route/broadcast", s.handleRouteBroadcast)
	g.POST("/user/status", s.handleUserStatus)
	g.POST("/user/push", s.handleUserPush)
	g.POST("/user/kick", s.handleUserKick)
}

func (s *Server) handleUserOnline(c *gin.Context) {
	var req protocol.UserOnlineReq
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.GateID == "" {
		writeEnvelope(c, errs.CodeInvalidParam, "online requires user_id and gate_id", nil)
		return
	}
	err := s.store.SetOnline(c.Request.Context(), &UserSession{
		UserID:     req.UserID,
		GateID:     req.GateID,
		DeviceType: req.DeviceType,
		DeviceID:   req.DeviceID,
	})
	if err != nil {
		writeEnvelope(c, errs.CodeOf(err), errs.MsgOf(err), nil)
		return
	}
	logger.Infof("[session] online user=%s gate=%s", req.UserID, req.GateID)
	if s.presence != nil {
		s.presence.UserOnline(req.UserID, req.GateID)
	}
	writeEnvelope(c, errs.CodeOK, "", nil)
}

func (s *Server) handleUserOffline(c *gin.Context) {
	var req protocol.UserOfflineReq
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		writeEnvelope(c, errs.CodeInvalidParam, "offline requires user_id", nil)
		return
	}
	ctx := c.Request.Context()

	// 带 gate_id 的下线只清本网关的会话：用户切网关重连后，
	// 旧网关迟到的下线通知不能把新会话打掉
	if req.GateID != "" {
		if sess, ok := s.store.GetSession(ctx, req.UserID); ok && sess.GateID != req.GateID {
			writeEnvelope(c, errs.CodeOK, "", nil)
			return
		}
	}
	if err := s.store.SetOffline(ctx, req.UserID); err != nil {
		writeEnvelope(c, errs.CodeOf(err), errs.MsgOf(err), nil)
		return
	}
	logger.Infof("[session] offline user=%s gate=%s", req.UserID, req.GateID)
	if s.presence != nil {
		s.presence.UserOffline(req.UserID, req.GateID)
	}
	writeEnvelope(c, errs.CodeOK, "", nil)
}

func (s *Server) handleGateRegister(c *gin.Context) {
	var req protocol.GateRegisterReq
	if err := c.ShouldBindJSON(&req); err != nil || req.GateID == "" || req.Address == "" {
		writeEnvelope(c, errs.CodeInvalidParam, "register requires gate_id and address", nil)
		return
	}
	err := s.store.RegisterGate(c.Request.Context(), &GatewayNode{
		GateID:             req.GateID,
		Address:            req.Address,
		CurrentConnections: req.CurrentConnections,
	})
	if err != nil {
		writeEnvelope(c, errs.CodeOf(err), errs.MsgOf(err), nil)
		return
	}
	logger.Infof("[gate] register gate=%s addr=%s", req.GateID, req.Address)
	writeEnvelope(c, errs.CodeOK, "", nil)
}

func (s *Server) handleGateHeartbeat(c *gin.Context) {
	var req protocol.GateHeartbeatReq
	if err := c.ShouldBindJSON(&req); err != nil || req.GateID == "" {
		writeEnvelope(c, errs.CodeInvalidParam, "heartbeat requires gate_id", nil)
		return
	}
	if err := s.store.UpdateGateHeartbeat(c.Request.Context(), req.GateID, req.CurrentConnections); err != nil {
		// 网关拿到 GATE_NOT_FOUND 会自己重新注册
		writeEnvelope(c, errs.CodeOf(err), errs.MsgOf(err), nil)
		return
	}
	writeEnvelope(c, errs.CodeOK, "", nil)
}

func (s *Server) handleClientRequest(c *gin.Context) {
	var req protocol.ClientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeEnvelope(c, errs.CodeInvalidParam, "bad client request", nil)
		return
	}
	// 业务失败不走 Envelope 的 code，而是装在 ClientResponse 里带回，
	// 网关只负责原样回给客户端
	resp := s.table.HandleClientRequest(c.Request.Context(), &req)
	writeEnvelope(c, errs.CodeOK, "", resp)
}

func (s *Server) handleRouteMessage(c *gin.Context) {
	var req protocol.RouteReq
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Cmd == "" {
		writeEnvelope(c, errs.CodeInvalidParam, "route requires user_id and cmd", nil)
		return
	}
	online, delivered := s.router.RouteToUser(c.Request.Context(), req.UserID, req.Cmd, req.Payload)
	writeEnvelope(c, errs.CodeOK, "", protocol.RouteResp{UserOnline: online, Delivered: delivered})
}

func (s *Server) handleRouteBroadcast(c *gin.Context) {
	var req protocol.BroadcastReq
	if err := c.ShouldBindJSON(&req); err != nil || len(req.UserIDs) == 0 || req.Cmd == "" {
		writeEnvelope(c, errs.CodeInvalidParam, "broadcast requires user_ids and cmd", nil)
		return
	}
	online, delivered := s.router.Broadcast(c.Request.Context(), req.UserIDs, req.Cmd, req.Payload)
	writeEnvelope(c, errs.CodeOK, "", protocol.BroadcastResp{OnlineCount: online, DeliveredCount: delivered})
}

func (s *Server) handleUserStatus(c *gin.Context) {
	var req protocol.UserStatusReq
	if err := c.ShouldBindJSON(&req); err != nil || len(req.UserIDs) == 0 {
		writeEnvelope(c, errs.CodeInvalidParam, "status requires user_ids", nil)
		return
	}
	sessions := s.store.GetSessions(c.Request.Context(), req.UserIDs)
	online := make(map[string]string, len(sessions))
	for uid, sess := range sessions {
		online[uid] = sess.GateID
	}
	writeEnvelope(c, errs.CodeOK, "", protocol.UserStatusResp{Online: online})
}

// handleUserPush 与 route/message 的区别：目标离线对推送方是错误
// （通知类调用方要感知失败），而路由调用方只要事实。
func (s *Server) handleUserPush(c *gin.Context) {
	var req protocol.RouteReq
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Cmd == "" {
		writeEnvelope(c, errs.CodeInvalidParam, "push requires user_id and cmd", nil)
		return
	}
	online, delivered := s.router.RouteToUser(c.Request.Context(), req.UserID, req.Cmd, req.Payload)
	if !online {
		writeEnvelope(c, errs.CodeUserOffline, "user has no session", nil)
		return
	}
	if !delivered {
		writeEnvelope(c, errs.CodeForwardFailed, "gateway delivery failed", nil)
		return
	}
	writeEnvelope(c, errs.CodeOK, "", protocol.PushResp{OK: true})
}

func (s *Server) handleUserKick(c *gin.Context) {
	var req protocol.KickReq
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
		writeEnvelope(c, errs.CodeInvalidParam, "kick requires user_id", nil)
		return
	}
	if err := s.router.Kick(c.Request.Context(), req.UserID); err != nil {
		writeEnvelope(c, errs.CodeOf(err), errs.MsgOf(err), nil)
		return
	}
	writeEnvelope(c, errs.CodeOK, "", nil)
}

func writeEnvelope(c *gin.Context, code int, msg string, data any) {
	env := protocol.Envelope{Code: code, Message: msg}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			env = protocol.Envelope{Code: errs.CodeInternal, Message: "encode response"}
		} else {
			env.Data = raw
		}
	}
	c.JSON(http.StatusOK, env)
}
