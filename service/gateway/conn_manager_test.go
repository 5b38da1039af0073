package gateway

import (
	"sync"
	"testing"
	"time"
)

// fakeTransport 记录发送与关闭。
type fakeTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func (f *fakeTransport) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// fakeClock 手动拨动的时钟。
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(clock *fakeClock) *ConnManager {
	return NewConnManager(ManagerConf{
		HeartbeatTimeout: 75 * time.Second,
		SweepEvery:       time.Hour, // 单测手动触发 SweepOnce
		Clock:            clock.Now,
	}, "gw-test")
}

func TestAddAndGetConnection(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(clk)
	defer m.Close()

	c, err := m.AddConnection("c1", &fakeTransport{})
	if err != nil {
		t.Fatalf("AddConnection failed: %v", err)
	}
	if c.State != StateAccepted {
		t.Fatalf("state = %v, want StateAccepted", c.State)
	}

	if _, err := m.AddConnection("c1", &fakeTransport{}); err == nil {
		t.Fatal("duplicate connID accepted")
	}
	if _, err := m.AddConnection("", &fakeTransport{}); err == nil {
		t.Fatal("empty connID accepted")
	}

	got, ok := m.GetConnection("c1")
	if !ok || got.ConnID != "c1" {
		t.Fatalf("GetConnection = %v %v", got, ok)
	}
	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}
}

func TestBindUserRebindsReverseMapping(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(clk)
	defer m.Close()

	if _, err := m.AddConnection("c1", &fakeTransport{}); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddConnection("c2", &fakeTransport{}); err != nil {
		t.Fatal(err)
	}
	m.Ready("c1")
	m.Ready("c2")

	if !m.BindUser("c1", "u1", "tok1", "d1", "ios") {
		t.Fatal("first bind failed")
	}
	// u1 换端重新登录，落在 c2 上
	if !m.BindUser("c2", "u1", "tok2", "d2", "android") {
		t.Fatal("rebind failed")
	}

	connID, ok := m.GetConnIDByUser("u1")
	if !ok || connID != "c2" {
		t.Fatalf("byUser[u1] = %q, want c2", connID)
	}

	// 旧连接还开着，但身份必须已清空
	old, _ := m.GetConnection("c1")
	if old.Authenticated || old.UserID != "" {
		t.Fatalf("old conn identity not cleared: %+v", old.Snapshot())
	}

	// 旧连接关闭时不得再触发 u1 下线
	var offline []string
	m.SetOfflineNotifier(func(userID string) { offline = append(offline, userID) })
	m.RemoveConnection("c1")
	if len(offline) != 0 {
		t.Fatalf("stale conn removal reported offline: %v", offline)
	}
}

func TestRemoveConnectionNotifiesOnce(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(clk)
	defer m.Close()

	ft := &fakeTransport{}
	if _, err := m.AddConnection("c1", ft); err != nil {
		t.Fatal(err)
	}
	m.Ready("c1")
	m.BindUser("c1", "u1", "tok", "", "")

	var offline []string
	m.SetOfflineNotifier(func(userID string) { offline = append(offline, userID) })

	m.RemoveConnection("c1")
	m.RemoveConnection("c1") // 幂等

	if len(offline) != 1 || offline[0] != "u1" {
		t.Fatalf("offline notifications = %v, want [u1]", offline)
	}
	if !ft.isClosed() {
		t.Fatal("transport not closed")
	}
	if _, ok := m.GetConnIDByUser("u1"); ok {
		t.Fatal("reverse mapping survived removal")
	}
}

func TestRemoveUnauthenticatedNoNotify(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(clk)
	defer m.Close()

	if _, err := m.AddConnection("c1", &fakeTransport{}); err != nil {
		t.Fatal(err)
	}
	m.Ready("c1")

	called := false
	m.SetOfflineNotifier(func(string) { called = true })
	m.RemoveConnection("c1")
	if called {
		t.Fatal("unauthenticated removal reported offline")
	}
}

func TestSweepOnceClosesStale(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(clk)
	defer m.Close()

	fresh := &fakeTransport{}
	stale := &fakeTransport{}
	if _, err := m.AddConnection("fresh", fresh); err != nil {
		t.Fatal(err)
	}
	if _, err := m.AddConnection("stale", stale); err != nil {
		t.Fatal(err)
	}

	clk.Advance(80 * time.Second)
	if err := m.Heartbeat("fresh"); err != nil {
		t.Fatal(err)
	}

	n := m.SweepOnce(clk.Now())
	if n != 1 {
		t.Fatalf("swept %d, want 1", n)
	}
	if !stale.isClosed() {
		t.Fatal("stale transport not closed")
	}
	if fresh.isClosed() {
		t.Fatal("fresh transport closed")
	}
	// 注册表项由读循环退出时移除，清理协程不动表
	if m.Count() != 2 {
		t.Fatalf("Count = %d, want 2", m.Count())
	}
}

func TestHeartbeatUnknownConn(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(clk)
	defer m.Close()

	if err := m.Heartbeat("nope"); err == nil {
		t.Fatal("heartbeat for unknown conn succeeded")
	}
}

func TestSendToUser(t *testing.T) {
	clk := newFakeClock()
	m := newTestManager(clk)
	defer m.Close()

	ft := &fakeTransport{}
	if _, err := m.AddConnection("c1", ft); err != nil {
		t.Fatal(err)
	}
	m.Ready("c1")
	m.BindUser("c1", "u1", "tok", "", "")

	if err := m.SendToUser("u1", []byte("hello")); err != nil {
		t.Fatalf("SendToUser failed: %v", err)
	}
	if len(ft.sent) != 1 || string(ft.sent[0]) != "hello" {
		t.Fatalf("sent = %v", ft.sent)
	}
	if err := m.SendToUser("u2", []byte("x")); err == nil {
		t.Fatal("send to offline user succeeded")
	}
}
