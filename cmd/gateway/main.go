package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"PPGate/global/config"
	"PPGate/logger"
	"PPGate/service/gateway"
	"PPGate/service/rpc"
	"PPGate/tools/safe"

	"github.com/gin-gonic/gin"
)

func loadConfig() *config.GatewayConfig {
	cfg := &config.GatewayConfig{
		GateID:         config.Env("GATEWAY_ID", ""),
		WSAddr:         config.Env("WS_ADDR", ""),
		InternalAddr:   config.Env("INTERNAL_ADDR", ""),
		AdvertiseAddr:  config.Env("ADVERTISE_ADDR", ""),
		ZoneAddr:       config.Env("ZONE_ADDR", ""),
		InternalSecret: config.Env("INTERNAL_SECRET", ""),
		SendQueueSize:  config.EnvInt("SEND_QUEUE_SIZE", 0),
	}
	if n := config.EnvInt("HEARTBEAT_TIMEOUT_SEC", 0); n > 0 {
		cfg.HeartbeatTimeout = time.Duration(n) * time.Second
	}
	cfg.Norm()
	return cfg
}

func main() {
	cfg := loadConfig()
	logger.Infof("[boot] %s starting gate=%s ws=%s internal=%s zone=%s",
		config.NodeTypeGateway, cfg.GateID, cfg.WSAddr, cfg.InternalAddr, cfg.ZoneAddr)

	zone := rpc.NewZoneClient(rpc.Config{
		BaseURL: "http://" + cfg.ZoneAddr,
		Secret:  cfg.InternalSecret,
	})

	mgr := gateway.NewConnManager(gateway.ManagerConf{
		HeartbeatTimeout: cfg.HeartbeatTimeout,
		SweepEvery:       cfg.SweepEvery,
	}, cfg.GateID)
	defer mgr.Close()

	disp := gateway.NewDispatcher(mgr, zone)
	srv := gateway.NewServer(mgr, disp, zone, cfg.SendQueueSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 客户端 websocket 面
	wsRouter := gin.New()
	wsRouter.Use(gin.Recovery())
	wsRouter.GET("/ws", srv.HandleWS)
	wsServer := &http.Server{Addr: cfg.WSAddr, Handler: wsRouter}
	safe.Go("ws-listen", func() {
		if err := wsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[boot] ws listen err=%v", err)
			stop()
		}
	})

	// 内部 RPC 面（Zone 回推）
	inRouter := gin.New()
	inRouter.Use(gin.Recovery())
	gateway.RegisterInternalRoutes(inRouter, mgr, cfg.InternalSecret)
	inServer := &http.Server{Addr: cfg.InternalAddr, Handler: inRouter}
	safe.Go("internal-listen", func() {
		if err := inServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[boot] internal listen err=%v", err)
			stop()
		}
	})

	// 注册 + 心跳上报
	gateway.NewReporter(zone, mgr, "http://"+cfg.AdvertiseAddr, cfg.ReportEvery).Start(ctx)

	<-ctx.Done()
	logger.Infof("[boot] shutting down gate=%s", cfg.GateID)

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = wsServer.Shutdown(shutCtx)
	_ = inServer.Shutdown(shutCtx)
	logger.Sync()
}
