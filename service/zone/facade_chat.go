package zone

import (
	"context"
	"encoding/json"
	"time"

	"PPGate/logger"
	"PPGate/protocol"
	"PPGate/tools/decode"
	"PPGate/tools/errs"
	"PPGate/tools/ids"
)

// DeliveryEvent 一条消息的投递流水，旁路写入事件流。
type DeliveryEvent struct {
	MsgID     string `json:"msg_id"`
	From      string `json:"from"`
	To        string `json:"to,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	Online    int    `json:"online"`
	Delivered int    `json:"delivered"`
	Timestamp int64  `json:"timestamp"`
}

// DeliveryEvents 投递事件旁路，实现方不得阻塞调用方。
type DeliveryEvents interface {
	MessageDelivered(ev *DeliveryEvent)
}

// ChatFacade 聊天命令。send_message 是唯一带副作用的命令：
// 先落后端（配置了的话），成功后把消息实时推给接收方。
// 推送失败不影响命令结果，离线方靠 pull_messages 补齐。
type ChatFacade struct {
	backend Invoker
	groups  Invoker // 群发时解析成员列表
	router  *Router
	events  DeliveryEvents
}

func NewChatFacade(backend, groups Invoker, router *Router, events DeliveryEvents) *ChatFacade {
	return &ChatFacade{backend: backend, groups: groups, router: router, events: events}
}

func (f *ChatFacade) Namespace() string { return "chat" }

type sendMessageReq struct {
	To      string `json:"to,omitempty"`
	GroupID string `json:"group_id,omitempty"`
	MsgType string `json:"msg_type,omitempty"`
	Content string `json:"content"`
}

type sendMessageAck struct {
	MsgID     string `json:"msg_id"`
	Delivered bool   `json:"delivered"`
	Timestamp int64  `json:"timestamp"`
}

type groupMembersReq struct {
	GroupID string `json:"group_id"`
}

type groupMembersResp struct {
	Members []string `json:"members"`
}

func (f *ChatFacade) Handle(ctx context.Context, action string, req *protocol.ClientRequest) *protocol.ClientResponse {
	switch action {
	case "send_message":
		return f.sendMessage(ctx, req)
	case "pull_messages", "mark_read":
		if f.backend == nil {
			return errResp(req.RequestID, errs.ErrServiceUnavailable.WithDetail("chat backend not configured"))
		}
		resp, err := f.backend.Invoke(ctx, req)
		if err != nil {
			return errResp(req.RequestID, err)
		}
		return resp
	default:
		return errResp(req.RequestID, errs.ErrUnsupported.WithDetail("cmd="+req.Cmd))
	}
}

func (f *ChatFacade) sendMessage(ctx context.Context, req *protocol.ClientRequest) *protocol.ClientResponse {
	if req.UserID == "" {
		return errResp(req.RequestID, errs.ErrTokenInvalid.WithDetail("login required"))
	}
	in, err := decode.DecodeJSON[sendMessageReq](req.Payload)
	if err != nil {
		return errResp(req.RequestID, errs.ErrInvalidParam.WithDetail("bad payload"))
	}
	if in.Content == "" || (in.To == "" && in.GroupID == "") {
		return errResp(req.RequestID, errs.ErrInvalidParam.WithDetail("content and to/group_id required"))
	}
	if in.To != "" && in.GroupID != "" {
		return errResp(req.RequestID, errs.ErrInvalidParam.WithDetail("to and group_id are exclusive"))
	}

	msgID := ids.GenerateString()
	now := time.Now()

	// 有后端时先落库，后端拒绝就不投递
	if f.backend != nil {
		resp, err := f.backend.Invoke(ctx, req)
		if err != nil {
			return errResp(req.RequestID, err)
		}
		if resp.Code != errs.CodeOK {
			return resp
		}
		// 后端返回了 msg_id 就以它为准
		if stored, derr := decode.DecodeJSON[sendMessageAck](resp.Payload); derr == nil && stored.MsgID != "" {
			msgID = stored.MsgID
		}
	}

	push := map[string]any{
		"msg_id":    msgID,
		"from":      req.UserID,
		"msg_type":  in.MsgType,
		"content":   in.Content,
		"timestamp": now.Unix(),
	}
	if in.GroupID != "" {
		push["group_id"] = in.GroupID
	}
	raw, merr := json.Marshal(push)
	if merr != nil {
		return errResp(req.RequestID, errs.ErrInternal.WithDetail("marshal push"))
	}

	var online, delivered int
	if in.To != "" {
		on, ok := f.router.RouteToUser(ctx, in.To, protocol.CmdChatMessage, raw)
		if on {
			online = 1
		}
		if ok {
			delivered = 1
		}
	} else {
		// 成员解析属于推送副作用：解析失败只丢实时投递，不改变发送结果，
		// 离线补齐交给 pull_messages
		members, merr2 := f.groupMembers(ctx, req, in.GroupID)
		if merr2 != nil {
			logger.Warnf("[chat] resolve group members group=%s err=%v", in.GroupID, merr2)
		} else {
			targets := make([]string, 0, len(members))
			for _, m := range members {
				if m != req.UserID {
					targets = append(targets, m)
				}
			}
			online, delivered = f.router.Broadcast(ctx, targets, protocol.CmdChatMessage, raw)
		}
	}

	if f.events != nil {
		f.events.MessageDelivered(&DeliveryEvent{
			MsgID:     msgID,
			From:      req.UserID,
			To:        in.To,
			GroupID:   in.GroupID,
			Online:    online,
			Delivered: delivered,
			Timestamp: now.Unix(),
		})
	}

	return okResp(req.RequestID, &sendMessageAck{
		MsgID:     msgID,
		Delivered: delivered > 0,
		Timestamp: now.Unix(),
	})
}

func (f *ChatFacade) groupMembers(ctx context.Context, req *protocol.ClientRequest, groupID string) ([]string, error) {
	if f.groups == nil {
		return nil, errs.ErrServiceUnavailable.WithDetail("group backend not configured")
	}
	payload, err := json.Marshal(&groupMembersReq{GroupID: groupID})
	if err != nil {
		return nil, errs.ErrInternal.WithDetail("marshal members req")
	}
	resp, err := f.groups.Invoke(ctx, &protocol.ClientRequest{
		ConnID:    req.ConnID,
		UserID:    req.UserID,
		Cmd:       "group.members",
		Payload:   payload,
		RequestID: req.RequestID,
		Token:     req.Token,
	})
	if err != nil {
		return nil, err
	}
	if resp.Code != errs.CodeOK {
		return nil, errs.NewCodeError(resp.Code, resp.Message)
	}
	out, err := decode.DecodeJSON[groupMembersResp](resp.Payload)
	if err != nil {
		logger.Warnf("[chat] decode group members group=%s err=%v", groupID, err)
		return nil, errs.ErrInternal.WithDetail("bad members payload")
	}
	return out.Members, nil
}
