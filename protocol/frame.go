package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame 客户端与网关之间的帧（双向，JSON 编码）。
// 客户端 -> 网关不携带 code/message；网关 -> 客户端填充（0=成功）。
type Frame struct {
	Cmd       string          `json:"cmd"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Code      int             `json:"code"`
	Message   string          `json:"message,omitempty"`
}

// 网关本地处理的命令
const (
	CmdHeartbeat = "heartbeat"
	CmdLogin     = "auth.login"
)

// 转发/推送相关命令
const (
	CmdValidateToken = "auth.validate_token"
	CmdChatMessage   = "chat.message" // 服务端推送给接收方的消息通知
	CmdKickNotice    = "auth.kicked"  // 被挤下线通知
)

// 已知命令命名空间
var KnownNamespaces = []string{"auth", "chat", "friend", "group", "file"}

// ParseFrame 解析一帧；协议层损坏返回错误（上层静默丢弃）。
func ParseFrame(raw []byte) (*Frame, error) {
	f := &Frame{}
	if err := json.Unmarshal(raw, f); err != nil {
		return nil, fmt.Errorf("unmarshal frame failed: %w", err)
	}
	if f.Cmd == "" {
		return nil, fmt.Errorf("frame missing cmd")
	}
	return f, nil
}

// Encode 序列化；Frame 字段都是可编码类型，失败视为不变量被破坏。
func (f *Frame) Encode() []byte {
	data, err := json.Marshal(f)
	if err != nil {
		panic(fmt.Sprintf("encode frame: %v", err))
	}
	return data
}

// Namespace 取命令的命名空间前缀；没有 '.' 则返回空串。
func Namespace(cmd string) string {
	i := strings.IndexByte(cmd, '.')
	if i <= 0 {
		return ""
	}
	return cmd[:i]
}

// Action 取命令去掉命名空间后的部分。
func Action(cmd string) string {
	i := strings.IndexByte(cmd, '.')
	if i < 0 || i+1 >= len(cmd) {
		return ""
	}
	return cmd[i+1:]
}

// KnownNamespace 判断命令是否落在已知命名空间里。
func KnownNamespace(cmd string) bool {
	ns := Namespace(cmd)
	for _, k := range KnownNamespaces {
		if ns == k {
			return true
		}
	}
	return false
}

// OKFrame 构造成功响应帧。
func OKFrame(cmd, requestID string, payload json.RawMessage) *Frame {
	return &Frame{Cmd: cmd, RequestID: requestID, Code: 0, Payload: payload}
}

// ErrFrame 构造业务失败响应帧；传输层本身永远成功。
func ErrFrame(cmd, requestID string, code int, message string) *Frame {
	return &Frame{Cmd: cmd, RequestID: requestID, Code: code, Message: message}
}
