package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"PPGate/protocol"
	"PPGate/tools/errs"

	"github.com/gin-gonic/gin"
)

func newInternalAPI(t *testing.T, secret string) (*httptest.Server, *ConnManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m := NewConnManager(ManagerConf{SweepEvery: time.Hour}, "gw-test")
	t.Cleanup(m.Close)

	r := gin.New()
	RegisterInternalRoutes(r, m, secret)
	ts := httptest.NewServer(r)
	t.Cleanup(ts.Close)
	return ts, m
}

func postEnvelope(t *testing.T, url, secret string, body any) *protocol.Envelope {
	t.Helper()
	raw, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set(protocol.InternalSecretHeader, secret)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env protocol.Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return &env
}

func TestPushDeliversFrame(t *testing.T) {
	ts, m := newInternalAPI(t, "s3cret")

	ft := &fakeTransport{}
	if _, err := m.AddConnection("c1", ft); err != nil {
		t.Fatal(err)
	}
	m.Ready("c1")
	m.BindUser("c1", "u1", "tok", "", "")

	env := postEnvelope(t, ts.URL+"/internal/v1/push", "s3cret", &protocol.PushReq{
		UserID:  "u1",
		Cmd:     protocol.CmdChatMessage,
		Payload: json.RawMessage(`{"content":"hi"}`),
	})
	if env.Code != errs.CodeOK {
		t.Fatalf("envelope code = %d msg=%s", env.Code, env.Message)
	}

	if len(ft.sent) != 1 {
		t.Fatalf("sent %d frames", len(ft.sent))
	}
	frame, err := protocol.ParseFrame(ft.sent[0])
	if err != nil {
		t.Fatal(err)
	}
	if frame.Cmd != protocol.CmdChatMessage || frame.Code != errs.CodeOK {
		t.Fatalf("frame = %+v", frame)
	}
}

func TestPushUserOffline(t *testing.T) {
	ts, _ := newInternalAPI(t, "s3cret")

	env := postEnvelope(t, ts.URL+"/internal/v1/push", "s3cret", &protocol.PushReq{
		UserID: "ghost",
		Cmd:    protocol.CmdChatMessage,
	})
	if env.Code != errs.CodeUserOffline {
		t.Fatalf("envelope code = %d, want %d", env.Code, errs.CodeUserOffline)
	}
}

func TestPushRequiresSecret(t *testing.T) {
	ts, _ := newInternalAPI(t, "s3cret")

	raw, _ := json.Marshal(&protocol.PushReq{UserID: "u1", Cmd: "chat.message"})
	resp, err := http.Post(ts.URL+"/internal/v1/push", "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	ts, m := newInternalAPI(t, "s3cret")

	ft := &fakeTransport{}
	if _, err := m.AddConnection("c1", ft); err != nil {
		t.Fatal(err)
	}
	m.Ready("c1")
	m.BindUser("c1", "u1", "tok", "", "")

	env := postEnvelope(t, ts.URL+"/internal/v1/disconnect", "s3cret", &protocol.DisconnectReq{UserID: "u1"})
	if env.Code != errs.CodeOK {
		t.Fatalf("envelope code = %d", env.Code)
	}
	if !ft.isClosed() {
		t.Fatal("transport not closed")
	}

	// 第二次（以及从未在线的用户）也成功
	env = postEnvelope(t, ts.URL+"/internal/v1/disconnect", "s3cret", &protocol.DisconnectReq{UserID: "u1"})
	if env.Code != errs.CodeOK {
		t.Fatalf("second disconnect code = %d", env.Code)
	}
	env = postEnvelope(t, ts.URL+"/internal/v1/disconnect", "s3cret", &protocol.DisconnectReq{UserID: "never"})
	if env.Code != errs.CodeOK {
		t.Fatalf("unknown user disconnect code = %d", env.Code)
	}
}
