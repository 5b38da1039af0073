package gateway

import (
	"encoding/json"
	"net/http"

	"PPGate/logger"
	midsec "PPGate/middleware/security"
	"PPGate/protocol"
	"PPGate/tools/errs"

	"github.com/gin-gonic/gin"
)

// RegisterInternalRoutes 网关内部 RPC 面（Zone 调用）：
// 只有“推给这条连接”和“断开这个用户”两个口子。
func RegisterInternalRoutes(r gin.IRouter, mgr *ConnManager, secret string) {
	g := r.Group("/internal/v1", midsec.InternalSecret(midsec.DefaultOptions(secret)))
	g.POST("/push", handlePush(mgr))
	g.POST("/disconnect", handleDisconnect(mgr))
}

func handlePush(mgr *ConnManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req protocol.PushReq
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" || req.Cmd == "" {
			writeEnvelope(c, errs.CodeInvalidParam, "push requires user_id and cmd", nil)
			return
		}

		connID, ok := mgr.GetConnIDByUser(req.UserID)
		if !ok {
			writeEnvelope(c, errs.CodeUserOffline, "user has no connection on this gateway", nil)
			return
		}

		frame := &protocol.Frame{Cmd: req.Cmd, Payload: req.Payload, Code: errs.CodeOK}
		if err := mgr.SendToConn(connID, frame.Encode()); err != nil {
			logger.Warnf("[push] send failed user=%s conn=%s err=%v", req.UserID, connID, err)
			writeEnvelope(c, errs.CodeRPCFailed, "deliver failed", nil)
			return
		}
		writeEnvelope(c, errs.CodeOK, "", protocol.PushResp{OK: true})
	}
}

func handleDisconnect(mgr *ConnManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req protocol.DisconnectReq
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID == "" {
			writeEnvelope(c, errs.CodeInvalidParam, "disconnect requires user_id", nil)
			return
		}

		// 没连接也算成功：断开是幂等的
		if connID, ok := mgr.GetConnIDByUser(req.UserID); ok {
			logger.Infof("[disconnect] force close user=%s conn=%s", req.UserID, connID)
			// 尽力告知客户端被踢，发不出去也照样断
			notice := protocol.OKFrame(protocol.CmdKickNotice, "", nil)
			_ = mgr.SendToConn(connID, notice.Encode())
			mgr.CloseConn(connID)
		}
		writeEnvelope(c, errs.CodeOK, "", nil)
	}
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
