package gateway

import (
	"context"
	"net"
	"net/http"
	"time"

	"PPGate/logger"
	"PPGate/protocol"
	"PPGate/tools/ids"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server 网关对客户端的一面：接受 websocket、跑读循环、把命令交给 Dispatcher。
type Server struct {
	mgr  *ConnManager
	disp *Dispatcher
	zone ZoneLink

	sendQueueSize int
}

func NewServer(mgr *ConnManager, disp *Dispatcher, zone ZoneLink, sendQueueSize int) *Server {
	s := &Server{
		mgr:           mgr,
		disp:          disp,
		zone:          zone,
		sendQueueSize: sendQueueSize,
	}
	// 连接移除 -> 用户下线上报，这是 Zone 感知下线的唯一路径
	mgr.SetOfflineNotifier(s.notifyOffline)
	return s
}

func (s *Server) ConnMgr() *ConnManager { return s.mgr }

func (s *Server) notifyOffline(userID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.zone.UserOffline(ctx, &protocol.UserOfflineReq{
		UserID: userID,
		GateID: s.mgr.GateID(),
	}); err != nil {
		logger.Warnf("[WS] user offline report failed user=%s err=%v", userID, err)
	}
}

// HandleWS gin 入口：升级、注册、读循环。
// 一个连接一个读循环 + 一个写协程，慢客户端拖不死别人。
func (s *Server) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败
		logger.Infof("[HandleWS] upgrade websocket error: %v", err)
		return
	}

	connID := ids.GenerateConnID()
	sess := newWSSession(connID, ws, s.sendQueueSize)
	if _, err := s.mgr.AddConnection(connID, sess); err != nil {
		logger.Errorf("[HandleWS] add connection failed conn=%s err=%v", connID, err)
		_ = sess.Close()
		return
	}
	s.mgr.Ready(connID)

	// pong 也算心跳
	ws.SetPongHandler(func(string) error {
		_ = s.mgr.Heartbeat(connID)
		return nil
	})

	logger.Infof("[HandleWS] accepted conn=%s remote=%s", connID, ws.RemoteAddr())

	// ---- 读循环：只读，不写；出错即退出（写协程收尾） ----
	for {
		mt, data, rerr := ws.ReadMessage()
		if rerr != nil {
			if websocket.IsCloseError(rerr,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Infof("[WS] peer closed conn=%s err=%v", connID, rerr)
			} else if ne, ok := rerr.(net.Error); ok && ne.Timeout() {
				logger.Infof("[WS] read timeout conn=%s err=%v", connID, rerr)
			} else {
				logger.Infof("[WS] read err conn=%s err=%v", connID, rerr)
			}
			break
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}

		frame, perr := protocol.ParseFrame(data)
		if perr != nil {
			// 协议层损坏：静默丢弃，只留调试日志
			sample := data
			if len(sample) > 256 {
				sample = sample[:256]
			}
			logger.Debugf("[WS] parse frame err conn=%s err=%v sample=%q", connID, perr, sample)
			continue
		}

		// 按到达顺序同步处理，保证单连接内不乱序
		reply := s.disp.Dispatch(connID, frame)
		if reply == nil {
			continue
		}
		if serr := sess.Send(reply.Encode()); serr != nil {
			logger.Infof("[WS] send reply failed conn=%s err=%v", connID, serr)
			break
		}
	}

	// ---- 退出阶段：关会话、摘注册表（带绑定则触发一次下线上报） ----
	_ = sess.Close()
	s.mgr.RemoveConnection(connID)
}
