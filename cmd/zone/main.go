package main

import (
	"context"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"PPGate/global/config"
	"PPGate/logger"
	"PPGate/service/kafka"
	"PPGate/service/natsx"
	"PPGate/service/rpc"
	"PPGate/service/zone"
	"PPGate/tools/safe"

	"github.com/gin-gonic/gin"
)

func loadConfig() *config.ZoneConfig {
	cfg := &config.ZoneConfig{
		ZoneID:         config.Env("ZONE_ID", ""),
		InternalAddr:   config.Env("INTERNAL_ADDR", ""),
		InternalSecret: config.Env("INTERNAL_SECRET", ""),
		LocalJWTSecret: config.Env("LOCAL_JWT_SECRET", ""),
		Backends: config.BackendConfig{
			Auth:   config.Env("AUTH_BACKEND", ""),
			Chat:   config.Env("CHAT_BACKEND", ""),
			Friend: config.Env("FRIEND_BACKEND", ""),
			Group:  config.Env("GROUP_BACKEND", ""),
			File:   config.Env("FILE_BACKEND", ""),
		},
	}
	if addr := config.Env("REDIS_ADDR", ""); addr != "" {
		cfg.Redis = config.RedisConfig{
			Enabled:  true,
			Addr:     addr,
			Password: config.Env("REDIS_PASSWORD", ""),
			DB:       config.EnvInt("REDIS_DB", 0),
		}
	}
	if servers := config.Env("NATS_SERVERS", ""); servers != "" {
		cfg.Nats = config.NatsConfig{
			Enabled: true,
			Servers: strings.Split(servers, ","),
			Name:    "ppgate-zone",
		}
	}
	if brokers := config.Env("KAFKA_BROKERS", ""); brokers != "" {
		cfg.Kafka = config.KafkaConfig{
			Enabled: true,
			Brokers: strings.Split(brokers, ","),
			Topic:   config.Env("KAFKA_TOPIC", ""),
		}
	}
	cfg.Norm()
	return cfg
}

// kafkaDelivery 把投递事件写进 kafka，按发送方分区。
type kafkaDelivery struct {
	p *kafka.Producer
}

func (d *kafkaDelivery) MessageDelivered(ev *zone.DeliveryEvent) {
	if err := d.p.SendJSON(ev.From, ev); err != nil {
		logger.Warnf("[kafka] delivery event msg=%s err=%v", ev.MsgID, err)
	}
}

func main() {
	cfg := loadConfig()
	logger.Infof("[boot] %s starting zone=%s internal=%s", config.NodeTypeZone, cfg.ZoneID, cfg.InternalAddr)

	var store zone.SessionStore
	if cfg.Redis.Enabled {
		rs, err := zone.NewRedisStore(zone.RedisConf{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Errorf("[boot] redis store err=%v", err)
			return
		}
		store = rs
		logger.Infof("[boot] session store: redis addr=%s", cfg.Redis.Addr)
	} else {
		store = zone.NewMemoryStore()
		logger.Infof("[boot] session store: memory")
	}

	var presence zone.PresenceEvents
	if cfg.Nats.Enabled {
		nc, err := natsx.NewClient(natsx.Config{Servers: cfg.Nats.Servers, Name: cfg.Nats.Name})
		if err != nil {
			logger.Errorf("[boot] nats err=%v", err)
			return
		}
		defer func() { _ = nc.Close() }()
		presence = zone.NewNatsPresence(nc)
	}

	var delivery zone.DeliveryEvents
	if cfg.Kafka.Enabled {
		kp, err := kafka.NewProducer(kafka.Config{Brokers: cfg.Kafka.Brokers, Topic: cfg.Kafka.Topic})
		if err != nil {
			logger.Errorf("[boot] kafka err=%v", err)
			return
		}
		defer func() { _ = kp.Close() }()
		delivery = &kafkaDelivery{p: kp}
	}

	router := zone.NewRouter(store, cfg.InternalSecret, nil)

	backend := func(addr string) zone.Invoker {
		if addr == "" {
			return nil
		}
		return zone.NewBackendInvoker(rpc.Config{
			BaseURL: "http://" + addr,
			Secret:  cfg.InternalSecret,
			Timeout: cfg.ForwardTimeout,
		})
	}
	groups := backend(cfg.Backends.Group)
	table := zone.NewDispatchTable(
		zone.NewAuthFacade(backend(cfg.Backends.Auth), cfg.LocalJWTSecret),
		zone.NewChatFacade(backend(cfg.Backends.Chat), groups, router, delivery),
		zone.NewFriendFacade(backend(cfg.Backends.Friend)),
		zone.NewGroupFacade(groups),
		zone.NewFileFacade(backend(cfg.Backends.File)),
	)

	srv := zone.NewServer(store, router, table, presence)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := gin.New()
	r.Use(gin.Recovery())
	srv.RegisterRoutes(r, cfg.InternalSecret)
	httpServer := &http.Server{Addr: cfg.InternalAddr, Handler: r}
	safe.Go("internal-listen", func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("[boot] internal listen err=%v", err)
			stop()
		}
	})

	// 过期网关只打日志提醒，不自动摘除：会话在网关重连后自然覆盖
	safe.Go("gate-watch", func() {
		t := time.NewTicker(cfg.GateStaleAfter)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				if stale := store.StaleGates(context.Background(), cfg.GateStaleAfter); len(stale) > 0 {
					logger.Warnf("[gate] stale gateways: %v", stale)
				}
			}
		}
	})

	<-ctx.Done()
	logger.Infof("[boot] shutting down zone=%s", cfg.ZoneID)

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutCtx)
	logger.Sync()
}
