package gateway

import (
	"errors"
	"sync"
	"time"

	"PPGate/logger"
	"PPGate/tools/safe"

	"github.com/gorilla/websocket"
)

// ---- 常量参数（建议值） ----
const (
	writeWait      = 10 * time.Second
	pingInterval   = 25 * time.Second
	firstPingDelay = 5 * time.Second // 首个 ping 延后，避免刚连上即写超时
)

var errSessionClosed = errors.New("session closed")

// wsSession 一条 websocket 连接的发送面。gorilla 的 WriteMessage
// 不能并发调用，所以所有出站帧进同一条队列，由单写协程按序落盘：
// 写入中再来的帧排队等待，不丢、不交织。
type wsSession struct {
	connID string
	ws     *websocket.Conn
	sendCh chan []byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newWSSession(connID string, ws *websocket.Conn, queueSize int) *wsSession {
	if queueSize <= 0 {
		queueSize = 256
	}
	s := &wsSession{
		connID: connID,
		ws:     ws,
		sendCh: make(chan []byte, queueSize),
		closed: make(chan struct{}),
	}
	safe.Go("ws-write-pump", s.writePump)
	return s
}

// Send 入队一帧；队列满时阻塞到有空位或连接关闭。
func (s *wsSession) Send(data []byte) error {
	select {
	case <-s.closed:
		return errSessionClosed
	default:
	}
	select {
	case s.sendCh <- data:
		return nil
	case <-s.closed:
		return errSessionClosed
	}
}

// Close 幂等关闭；真正的收尾在写协程里做。
func (s *wsSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *wsSession) writePump() {
	ticker := time.NewTicker(pingInterval)
	first := time.NewTimer(firstPingDelay)
	defer func() {
		ticker.Stop()
		first.Stop()
		// 统一由写协程发 Close 并关闭底层连接
		_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
		_ = s.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = s.ws.Close()
	}()

	for {
		select {
		case <-s.closed:
			return

		case payload := <-s.sendCh:
			_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Infof("[WS] write payload err conn=%s err=%v", s.connID, err)
				_ = s.Close()
				return
			}

		case <-first.C: // 首次 ping
			if err := s.writePing(); err != nil {
				_ = s.Close()
				return
			}

		case <-ticker.C: // 常规 ping
			if err := s.writePing(); err != nil {
				_ = s.Close()
				return
			}
		}
	}
}

func (s *wsSession) writePing() error {
	_ = s.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := s.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(writeWait)); err != nil {
		logger.Infof("[WS] ping err conn=%s err=%v", s.connID, err)
		return err
	}
	return nil
}
