package zone

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"PPGate/protocol"
	"PPGate/tools/errs"
)

// fakePusher 记录推送并按脚本失败。
type fakePusher struct {
	mu       sync.Mutex
	addr     string
	pushes   []*protocol.PushReq
	kicks    []string
	pushErr  map[string]error // user_id -> error
	declined map[string]bool  // user_id -> ok=false（本地无连接）
}

func (p *fakePusher) Addr() string { return p.addr }

func (p *fakePusher) PushMessage(_ context.Context, req *protocol.PushReq) (*protocol.PushResp, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pushes = append(p.pushes, req)
	if err := p.pushErr[req.UserID]; err != nil {
		return nil, err
	}
	if p.declined[req.UserID] {
		return &protocol.PushResp{OK: false}, nil
	}
	return &protocol.PushResp{OK: true}, nil
}

func (p *fakePusher) DisconnectUser(_ context.Context, req *protocol.DisconnectReq) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kicks = append(p.kicks, req.UserID)
	return nil
}

// pusherFarm 按地址造假客户端，并记住造过哪些。
type pusherFarm struct {
	mu      sync.Mutex
	pushers map[string]*fakePusher
	made    int
}

func newPusherFarm() *pusherFarm {
	return &pusherFarm{pushers: make(map[string]*fakePusher)}
}

func (f *pusherFarm) factory(addr string) GatewayPusher {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.made++
	p, ok := f.pushers[addr]
	if !ok {
		p = &fakePusher{addr: addr, pushErr: map[string]error{}, declined: map[string]bool{}}
		f.pushers[addr] = p
	}
	return p
}

func (f *pusherFarm) at(addr string) *fakePusher {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pushers[addr]
}

func setupRouter(t *testing.T) (*Router, *MemoryStore, *pusherFarm) {
	t.Helper()
	store := NewMemoryStore()
	farm := newPusherFarm()
	return NewRouter(store, "", farm.factory), store, farm
}

func TestRouteToUserOfflineNoNetwork(t *testing.T) {
	router, _, farm := setupRouter(t)

	online, delivered := router.RouteToUser(context.Background(), "nobody", "chat.message", nil)
	if online || delivered {
		t.Fatalf("offline route = (%v, %v), want (false, false)", online, delivered)
	}
	if farm.made != 0 {
		t.Fatalf("offline route built %d clients", farm.made)
	}
}

func TestRouteToUserDelivers(t *testing.T) {
	ctx := context.Background()
	router, store, farm := setupRouter(t)
	registerGate(t, store, "g1", "http://gw1")
	if err := store.SetOnline(ctx, &UserSession{UserID: "u1", GateID: "g1"}); err != nil {
		t.Fatal(err)
	}

	payload := json.RawMessage(`{"content":"hi"}`)
	online, delivered := router.RouteToUser(ctx, "u1", "chat.message", payload)
	if !online || !delivered {
		t.Fatalf("route = (%v, %v), want (true, true)", online, delivered)
	}

	p := farm.at("http://gw1")
	if len(p.pushes) != 1 || p.pushes[0].UserID != "u1" || p.pushes[0].Cmd != "chat.message" {
		t.Fatalf("pushes = %+v", p.pushes)
	}

	// 第二次走缓存的客户端
	router.RouteToUser(ctx, "u1", "chat.message", payload)
	if farm.made != 1 {
		t.Fatalf("client rebuilt: made = %d", farm.made)
	}
}

func TestRouteToUserGatewayDeclines(t *testing.T) {
	ctx := context.Background()
	router, store, farm := setupRouter(t)
	registerGate(t, store, "g1", "http://gw1")
	if err := store.SetOnline(ctx, &UserSession{UserID: "u1", GateID: "g1"}); err != nil {
		t.Fatal(err)
	}
	farm.factory("http://gw1") // 预热
	farm.at("http://gw1").declined["u1"] = true

	online, delivered := router.RouteToUser(ctx, "u1", "chat.message", nil)
	if !online || delivered {
		t.Fatalf("route = (%v, %v), want (true, false)", online, delivered)
	}
}

func TestBroadcastPartialDelivery(t *testing.T) {
	ctx := context.Background()
	router, store, farm := setupRouter(t)
	registerGate(t, store, "g1", "http://gw1")
	registerGate(t, store, "g2", "http://gw2")
	if err := store.SetOnline(ctx, &UserSession{UserID: "a", GateID: "g1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetOnline(ctx, &UserSession{UserID: "c", GateID: "g2"}); err != nil {
		t.Fatal(err)
	}
	farm.factory("http://gw2")
	farm.at("http://gw2").pushErr["c"] = errs.ErrRPCFailed.WithDetail("gateway down")

	online, delivered := router.Broadcast(ctx, []string{"a", "b", "c"}, "chat.message", nil)
	if online != 2 {
		t.Fatalf("online = %d, want 2", online)
	}
	if delivered != 1 {
		t.Fatalf("delivered = %d, want 1", delivered)
	}
}

func TestKickClearsSession(t *testing.T) {
	ctx := context.Background()
	router, store, farm := setupRouter(t)
	registerGate(t, store, "g1", "http://gw1")
	if err := store.SetOnline(ctx, &UserSession{UserID: "u1", GateID: "g1"}); err != nil {
		t.Fatal(err)
	}

	if err := router.Kick(ctx, "u1"); err != nil {
		t.Fatalf("Kick failed: %v", err)
	}
	if kicks := farm.at("http://gw1").kicks; len(kicks) != 1 || kicks[0] != "u1" {
		t.Fatalf("kicks = %v", kicks)
	}
	if _, ok := store.GetSession(ctx, "u1"); ok {
		t.Fatal("session survived kick")
	}

	// 没会话的 kick 是空操作
	if err := router.Kick(ctx, "nobody"); err != nil {
		t.Fatalf("kick offline user: %v", err)
	}
}
