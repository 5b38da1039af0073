package zone

import (
	"context"
	"testing"

	"PPGate/protocol"
	"PPGate/tools/errs"
)

// echoFacade 记录收到的动作并原样回 OK。
type echoFacade struct {
	ns      string
	actions []string
}

func (f *echoFacade) Namespace() string { return f.ns }

func (f *echoFacade) Handle(_ context.Context, action string, req *protocol.ClientRequest) *protocol.ClientResponse {
	f.actions = append(f.actions, action)
	return okResp(req.RequestID, map[string]string{"action": action})
}

func TestDispatchRoutesByPrefix(t *testing.T) {
	chat := &echoFacade{ns: "chat"}
	friend := &echoFacade{ns: "friend"}
	table := NewDispatchTable(chat, friend)

	resp := table.HandleClientRequest(context.Background(), &protocol.ClientRequest{
		Cmd: "chat.send_message", RequestID: "r1",
	})
	if resp.Code != errs.CodeOK {
		t.Fatalf("code = %d msg=%s", resp.Code, resp.Message)
	}
	if resp.RequestID != "r1" {
		t.Fatalf("request_id = %q", resp.RequestID)
	}
	if len(chat.actions) != 1 || chat.actions[0] != "send_message" {
		t.Fatalf("chat actions = %v", chat.actions)
	}
	if len(friend.actions) != 0 {
		t.Fatalf("friend actions = %v", friend.actions)
	}
}

func TestDispatchUnknownNamespace(t *testing.T) {
	table := NewDispatchTable(&echoFacade{ns: "chat"})

	resp := table.HandleClientRequest(context.Background(), &protocol.ClientRequest{
		Cmd: "video.call", RequestID: "r2",
	})
	if resp.Code != errs.CodeUnsupported {
		t.Fatalf("code = %d, want %d", resp.Code, errs.CodeUnsupported)
	}
	if resp.RequestID != "r2" {
		t.Fatalf("request_id = %q", resp.RequestID)
	}
}

func TestDispatchMalformedCmd(t *testing.T) {
	table := NewDispatchTable(&echoFacade{ns: "chat"})

	for _, cmd := range []string{"chat.", ".send", "chat"} {
		resp := table.HandleClientRequest(context.Background(), &protocol.ClientRequest{Cmd: cmd})
		if resp.Code != errs.CodeUnsupported {
			t.Fatalf("cmd=%q code = %d, want %d", cmd, resp.Code, errs.CodeUnsupported)
		}
	}

	resp := table.HandleClientRequest(context.Background(), &protocol.ClientRequest{})
	if resp.Code != errs.CodeInvalidParam {
		t.Fatalf("empty cmd code = %d, want %d", resp.Code, errs.CodeInvalidParam)
	}
}
