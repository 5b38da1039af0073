package gateway

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"PPGate/protocol"
	"PPGate/tools/errs"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

func newWSTestServer(t *testing.T, zone *fakeZone) (*httptest.Server, *ConnManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := NewConnManager(ManagerConf{SweepEvery: time.Hour}, "gw-test")
	t.Cleanup(m.Close)

	srv := NewServer(m, NewDispatcher(m, zone), zone, 16)
	r := gin.New()
	r.GET("/ws", srv.HandleWS)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, m
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

func sendFrame(t *testing.T, ws *websocket.Conn, f *protocol.Frame) {
	t.Helper()
	if err := ws.WriteMessage(websocket.TextMessage, f.Encode()); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readFrame(t *testing.T, ws *websocket.Conn) *protocol.Frame {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := ws.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	f, err := protocol.ParseFrame(raw)
	if err != nil {
		t.Fatalf("parse reply: %v", err)
	}
	return f
}

func TestWSLoginFlow(t *testing.T) {
	zone := &fakeZone{reply: validateOK("u1")}
	ts, m := newWSTestServer(t, zone)
	ws := dialWS(t, ts)

	// 登录前的心跳也要应答（未认证连接允许心跳）
	sendFrame(t, ws, &protocol.Frame{Cmd: protocol.CmdHeartbeat, RequestID: "h1"})
	hb := readFrame(t, ws)
	if hb.Cmd != protocol.CmdHeartbeat || hb.Code != errs.CodeOK || hb.RequestID != "h1" {
		t.Fatalf("heartbeat reply = %+v", hb)
	}

	payload, _ := json.Marshal(LoginPayload{Token: "tok-1", DeviceType: "ios"})
	sendFrame(t, ws, &protocol.Frame{Cmd: protocol.CmdLogin, Payload: payload, RequestID: "r1"})
	reply := readFrame(t, ws)
	if reply.Code != errs.CodeOK || reply.RequestID != "r1" {
		t.Fatalf("login reply = %+v", reply)
	}

	if _, ok := m.GetConnIDByUser("u1"); !ok {
		t.Fatal("user not bound after login")
	}

	// 登录后推送要能到达这条连接
	if err := m.SendToUser("u1", protocol.OKFrame(protocol.CmdChatMessage, "", json.RawMessage(`{"content":"hi"}`)).Encode()); err != nil {
		t.Fatalf("SendToUser: %v", err)
	}
	pushed := readFrame(t, ws)
	if pushed.Cmd != protocol.CmdChatMessage {
		t.Fatalf("pushed = %+v", pushed)
	}
}

func TestWSDisconnectReportsOffline(t *testing.T) {
	zone := &fakeZone{reply: validateOK("u1")}
	ts, m := newWSTestServer(t, zone)
	ws := dialWS(t, ts)

	payload, _ := json.Marshal(LoginPayload{Token: "tok-1"})
	sendFrame(t, ws, &protocol.Frame{Cmd: protocol.CmdLogin, Payload: payload, RequestID: "r1"})
	if reply := readFrame(t, ws); reply.Code != errs.CodeOK {
		t.Fatalf("login failed: %+v", reply)
	}

	_ = ws.Close()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if len(zone.offlineReqs()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, ok := m.GetConnIDByUser("u1"); ok {
		t.Fatal("binding survived disconnect")
	}
	// 下线恰好上报一次
	offlines := zone.offlineReqs()
	if len(offlines) != 1 || offlines[0].UserID != "u1" || offlines[0].GateID != "gw-test" {
		t.Fatalf("offlines = %+v", offlines)
	}
}

func TestWSMalformedFrameIgnored(t *testing.T) {
	zone := &fakeZone{}
	ts, _ := newWSTestServer(t, zone)
	ws := dialWS(t, ts)

	// 协议层损坏的帧静默丢弃，连接保持可用
	if err := ws.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatal(err)
	}
	sendFrame(t, ws, &protocol.Frame{Cmd: protocol.CmdHeartbeat, RequestID: "h1"})
	reply := readFrame(t, ws)
	if reply.Cmd != protocol.CmdHeartbeat || reply.RequestID != "h1" {
		t.Fatalf("reply = %+v", reply)
	}
	if zone.requestCount() != 0 {
		t.Fatal("garbage reached zone")
	}
}

func TestWSReplyOrderPreserved(t *testing.T) {
	zone := &fakeZone{}
	ts, _ := newWSTestServer(t, zone)
	ws := dialWS(t, ts)

	// 同一连接的命令按到达顺序处理，应答顺序与请求顺序一致
	for _, reqID := range []string{"a", "b", "c"} {
		sendFrame(t, ws, &protocol.Frame{Cmd: protocol.CmdHeartbeat, RequestID: reqID})
	}
	for _, want := range []string{"a", "b", "c"} {
		reply := readFrame(t, ws)
		if reply.RequestID != want {
			t.Fatalf("reply order: got %q, want %q", reply.RequestID, want)
		}
	}
}
