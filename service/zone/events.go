package zone

import (
	"encoding/json"
	"time"

	"PPGate/logger"
	"PPGate/service/natsx"
)

// 在线状态事件主题。其它服务（运营统计、好友在线提醒）订阅即可，
// Zone 不关心有没有人听。
const (
	SubjectPresenceOnline  = "im.presence.online"
	SubjectPresenceOffline = "im.presence.offline"
)

// PresenceEvent 一次上/下线。
type PresenceEvent struct {
	UserID    string `json:"user_id"`
	GateID    string `json:"gate_id"`
	Timestamp int64  `json:"timestamp"`
}

// PresenceEvents 在线状态旁路，实现方不得阻塞调用方。
type PresenceEvents interface {
	UserOnline(userID, gateID string)
	UserOffline(userID, gateID string)
}

// natsPresence 把上下线事件发到 NATS。发布失败只记日志。
type natsPresence struct {
	cli *natsx.Client
}

func NewNatsPresence(cli *natsx.Client) PresenceEvents {
	return &natsPresence{cli: cli}
}

func (p *natsPresence) UserOnline(userID, gateID string) {
	p.publish(SubjectPresenceOnline, userID, gateID)
}

func (p *natsPresence) UserOffline(userID, gateID string) {
	p.publish(SubjectPresenceOffline, userID, gateID)
}

func (p *natsPresence) publish(subject, userID, gateID string) {
	raw, err := json.Marshal(&PresenceEvent{
		UserID:    userID,
		GateID:    gateID,
		Timestamp: time.Now().Unix(),
	})
	if err != nil {
		return
	}
	if err := p.cli.Publish(subject, raw); err != nil {
		logger.Warnf("[presence] publish %s user=%s err=%v", subject, userID, err)
	}
}
