package gateway

import (
	"context"
	"time"

	"PPGate/logger"
	"PPGate/protocol"
	"PPGate/tools/errs"
	"PPGate/tools/safe"
)

// Reporter 周期性向 Zone 注册并上报网关心跳（带当前连接数）。
// 注册失败按退避重试，Zone 短暂不可用不挡网关启动。
type Reporter struct {
	zone   ZoneLink2
	mgr    *ConnManager
	gateID string
	addr   string // 对外可达的内部 RPC 地址
	every  time.Duration
}

// ZoneLink2 注册/心跳链路；与命令转发链路分开声明，mock 起来更小。
type ZoneLink2 interface {
	GateRegister(ctx context.Context, req *protocol.GateRegisterReq) error
	GateHeartbeat(ctx context.Context, req *protocol.GateHeartbeatReq) error
}

func NewReporter(zone ZoneLink2, mgr *ConnManager, addr string, every time.Duration) *Reporter {
	if every <= 0 {
		every = 15 * time.Second
	}
	return &Reporter{
		zone:   zone,
		mgr:    mgr,
		gateID: mgr.GateID(),
		addr:   addr,
		every:  every,
	}
}

// Start 后台运行到 ctx 结束。
func (r *Reporter) Start(ctx context.Context) {
	safe.Go("gate-reporter", func() { r.run(ctx) })
}

func (r *Reporter) run(ctx context.Context) {
	retry := time.Second
	for {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := r.zone.GateRegister(cctx, &protocol.GateRegisterReq{
			GateID:             r.gateID,
			Address:            r.addr,
			CurrentConnections: r.mgr.Count(),
		})
		cancel()
		if err == nil {
			logger.Infof("[reporter] registered gate=%s addr=%s", r.gateID, r.addr)
			break
		}
		logger.Warnf("[reporter] register failed gate=%s err=%v, retry in %v", r.gateID, err, retry)
		select {
		case <-ctx.Done():
			return
		case <-time.After(retry):
		}
		if retry < 8*time.Second {
			retry *= 2
		}
	}

	t := time.NewTicker(r.every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := r.zone.GateHeartbeat(cctx, &protocol.GateHeartbeatReq{
				GateID:             r.gateID,
				CurrentConnections: r.mgr.Count(),
			})
			cancel()
			if err != nil {
				logger.Warnf("[reporter] heartbeat failed gate=%s err=%v", r.gateID, err)
				// Zone 重启会忘掉注册信息，心跳报未知网关时补一次注册
				if errs.CodeOf(err) == errs.CodeGateNotFound {
					rctx, rcancel := context.WithTimeout(ctx, 5*time.Second)
					if rerr := r.zone.GateRegister(rctx, &protocol.GateRegisterReq{
						GateID:             r.gateID,
						Address:            r.addr,
						CurrentConnections: r.mgr.Count(),
					}); rerr != nil {
						logger.Warnf("[reporter] re-register failed gate=%s err=%v", r.gateID, rerr)
					}
					rcancel()
				}
			}
		}
	}
}
