package config

import (
	"os"
	"strconv"
	"time"
)

// 节点类型
const (
	NodeTypeGateway = "msgGateway" // 网关节点
	NodeTypeZone    = "zoneNode"   // 路由/会话节点
)

// GatewayConfig 网关节点配置。
type GatewayConfig struct {
	GateID        string // 节点ID，注册到 Zone 时使用
	WSAddr        string // 客户端 websocket 监听地址
	InternalAddr  string // 内部 RPC 监听地址（Zone 回推用）
	AdvertiseAddr string // 注册到 Zone 的可达地址（默认 = InternalAddr）

	ZoneAddr       string // Zone 内部 RPC 地址
	InternalSecret string // x-internal-secret

	HeartbeatTimeout time.Duration // 客户端心跳超时
	SweepEvery       time.Duration // 清理周期
	ReportEvery      time.Duration // 向 Zone 上报心跳周期
	SendQueueSize    int           // 每连接发送队列长度
}

func (c *GatewayConfig) Norm() {
	if c.GateID == "" {
		c.GateID = "msg_gw-1"
	}
	if c.WSAddr == "" {
		c.WSAddr = ":8081"
	}
	if c.InternalAddr == "" {
		c.InternalAddr = ":8082"
	}
	if c.AdvertiseAddr == "" {
		c.AdvertiseAddr = "127.0.0.1" + c.InternalAddr
	}
	if c.ZoneAddr == "" {
		c.ZoneAddr = "127.0.0.1:8090"
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = 75 * time.Second
	}
	if c.SweepEvery <= 0 {
		c.SweepEvery = 10 * time.Second
	}
	if c.ReportEvery <= 0 {
		c.ReportEvery = 15 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
}

// BackendConfig 各后端门面的地址；留空表示该门面不可用（SERVICE_UNAVAILABLE）。
type BackendConfig struct {
	Auth   string
	Chat   string
	Friend string
	Group  string
	File   string
}

// RedisConfig 共享会话存储（多副本 Zone 部署时启用）。
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// NatsConfig 在线状态事件广播。
type NatsConfig struct {
	Enabled bool
	Servers []string
	Name    string
}

// KafkaConfig 消息投递事件流水。
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// ZoneConfig 路由节点配置。
type ZoneConfig struct {
	ZoneID         string
	InternalAddr   string // 内部 RPC 监听地址
	InternalSecret string

	Backends BackendConfig

	// LocalJWTSecret 非空时，auth 门面在 Auth 后端未配置的情况下
	// 本地校验 HS256 token（单机/开发部署）。
	LocalJWTSecret string

	CallTimeout    time.Duration // 普通内部调用超时
	ForwardTimeout time.Duration // 转发后端命令超时（偏重）
	GateStaleAfter time.Duration // 网关心跳过期阈值（仅用于观测，不自动摘除）

	Redis RedisConfig
	Nats  NatsConfig
	Kafka KafkaConfig
}

func (c *ZoneConfig) Norm() {
	if c.ZoneID == "" {
		c.ZoneID = "zone-1"
	}
	if c.InternalAddr == "" {
		c.InternalAddr = ":8090"
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 5 * time.Second
	}
	if c.ForwardTimeout <= 0 {
		c.ForwardTimeout = 10 * time.Second
	}
	if c.GateStaleAfter <= 0 {
		c.GateStaleAfter = 60 * time.Second
	}
	if c.Kafka.Enabled && c.Kafka.Topic == "" {
		c.Kafka.Topic = "message_events"
	}
}

// Env 读取环境变量，空则取默认值。
func Env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// EnvInt 读取整型环境变量。
func EnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
