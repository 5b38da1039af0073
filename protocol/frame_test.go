package protocol

import (
	"encoding/json"
	"testing"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame([]byte(`{"cmd":"chat.send_message","payload":{"to":"b"},"request_id":"r1"}`))
	if err != nil {
		t.Fatal(err)
	}
	if f.Cmd != "chat.send_message" || f.RequestID != "r1" {
		t.Fatalf("frame = %+v", f)
	}

	if _, err := ParseFrame([]byte(`{`)); err == nil {
		t.Fatal("malformed JSON accepted")
	}
	if _, err := ParseFrame([]byte(`{"payload":{}}`)); err == nil {
		t.Fatal("frame without cmd accepted")
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	in := ErrFrame("auth.login", "r1", 1002, "token invalid")
	out, err := ParseFrame(in.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if out.Code != 1002 || out.Message != "token invalid" || out.RequestID != "r1" {
		t.Fatalf("round trip = %+v", out)
	}
}

func TestNamespaceSplit(t *testing.T) {
	cases := []struct {
		cmd    string
		ns     string
		action string
	}{
		{"chat.send_message", "chat", "send_message"},
		{"heartbeat", "", ""},
		{".weird", "", "weird"},
		{"auth.", "auth", ""},
	}
	for _, tc := range cases {
		if got := Namespace(tc.cmd); got != tc.ns {
			t.Errorf("Namespace(%q) = %q, want %q", tc.cmd, got, tc.ns)
		}
		if got := Action(tc.cmd); got != tc.action {
			t.Errorf("Action(%q) = %q, want %q", tc.cmd, got, tc.action)
		}
	}
}

func TestKnownNamespace(t *testing.T) {
	for _, cmd := range []string{"auth.login", "chat.message", "file.upload_init"} {
		if !KnownNamespace(cmd) {
			t.Errorf("KnownNamespace(%q) = false", cmd)
		}
	}
	for _, cmd := range []string{"heartbeat", "video.call", ""} {
		if KnownNamespace(cmd) {
			t.Errorf("KnownNamespace(%q) = true", cmd)
		}
	}
}

func TestFrameOmitsEmptyFields(t *testing.T) {
	raw := OKFrame("heartbeat", "", nil).Encode()
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"payload", "request_id", "message"} {
		if _, ok := m[k]; ok {
			t.Errorf("empty %q serialized", k)
		}
	}
}
