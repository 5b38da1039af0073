package zone

import (
	"context"
	"encoding/json"
	"time"

	"PPGate/logger"
	"PPGate/tools/errs"

	pkgerr "github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// key 规划：
//
//	im:sess:<user_id>  会话 JSON
//	im:gate:<gate_id>  网关 JSON
//	im:gates           gate_id 集合（StaleGates 扫描用）
const (
	sessKeyPrefix = "im:sess:"
	gateKeyPrefix = "im:gate:"
	gateSetKey    = "im:gates"
)

// RedisStore 共享会话存储：多副本 Zone 部署时，任一副本都能
// 解析任意用户落在哪个网关。语义与 MemoryStore 完全一致。
type RedisStore struct {
	rdb   *redis.Client
	clock func() time.Time
}

type RedisConf struct {
	Addr     string
	Password string
	DB       int
}

func NewRedisStore(conf RedisConf) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     conf.Addr,
		Password: conf.Password,
		DB:       conf.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, pkgerr.Wrap(err, "redis ping")
	}
	return &RedisStore{rdb: rdb, clock: time.Now}, nil
}

func sessKey(userID string) string { return sessKeyPrefix + userID }
func gateKey(gateID string) string { return gateKeyPrefix + gateID }

func (s *RedisStore) SetOnline(ctx context.Context, sess *UserSession) error {
	if sess == nil || sess.UserID == "" || sess.GateID == "" {
		return errs.ErrInvalidParam.WithDetail("session requires user_id and gate_id")
	}
	gate, ok := s.GetGate(ctx, sess.GateID)
	if !ok {
		return errs.ErrGateNotFound.WithDetail("gate_id=" + sess.GateID)
	}
	now := s.clock()
	cp := *sess
	cp.GateAddr = gate.Address
	if cp.OnlineAt.IsZero() {
		cp.OnlineAt = now
	}
	cp.LastActiveAt = now

	raw, err := json.Marshal(&cp)
	if err != nil {
		return errs.ErrInternal.WrapMsg("marshal session", "user", cp.UserID)
	}
	// 覆盖写：last writer wins
	if err := s.rdb.Set(ctx, sessKey(cp.UserID), raw, 0).Err(); err != nil {
		return errs.ErrRPCFailed.WrapMsg("redis set session", "user", cp.UserID, "err", err)
	}
	return nil
}

func (s *RedisStore) SetOffline(ctx context.Context, userID string) error {
	if err := s.rdb.Del(ctx, sessKey(userID)).Err(); err != nil {
		return errs.ErrRPCFailed.WrapMsg("redis del session", "user", userID, "err", err)
	}
	return nil
}

func (s *RedisStore) GetSession(ctx context.Context, userID string) (*UserSession, bool) {
	raw, err := s.rdb.Get(ctx, sessKey(userID)).Bytes()
	if pkgerr.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Warnf("[redis-store] get session user=%s err=%v", userID, err)
		return nil, false
	}
	var sess UserSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		logger.Errorf("[redis-store] session corrupt user=%s err=%v", userID, err)
		return nil, false
	}
	return &sess, true
}

func (s *RedisStore) GetSessions(ctx context.Context, userIDs []string) map[string]*UserSession {
	out := make(map[string]*UserSession, len(userIDs))
	if len(userIDs) == 0 {
		return out
	}
	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, sessKey(id))
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		logger.Warnf("[redis-store] mget sessions err=%v", err)
		return out
	}
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		var sess UserSession
		if err := json.Unmarshal([]byte(str), &sess); err != nil {
			logger.Errorf("[redis-store] session corrupt user=%s err=%v", userIDs[i], err)
			continue
		}
		out[userIDs[i]] = &sess
	}
	return out
}

func (s *RedisStore) RegisterGate(ctx context.Context, node *GatewayNode) error {
	if node == nil || node.GateID == "" || node.Address == "" {
		return errs.ErrInvalidParam.WithDetail("gate requires gate_id and address")
	}
	now := s.clock()
	cp := *node
	if old, ok := s.GetGate(ctx, cp.GateID); ok {
		cp.RegisteredAt = old.RegisteredAt
	} else if cp.RegisteredAt.IsZero() {
		cp.RegisteredAt = now
	}
	cp.LastHeartbeat = now

	raw, err := json.Marshal(&cp)
	if err != nil {
		return errs.ErrInternal.WrapMsg("marshal gate", "gate", cp.GateID)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, gateKey(cp.GateID), raw, 0)
	pipe.SAdd(ctx, gateSetKey, cp.GateID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errs.ErrRPCFailed.WrapMsg("redis register gate", "gate", cp.GateID, "err", err)
	}
	return nil
}

func (s *RedisStore) UpdateGateHeartbeat(ctx context.Context, gateID string, connections int) error {
	gate, ok := s.GetGate(ctx, gateID)
	if !ok {
		return errs.ErrGateNotFound.WithDetail("gate_id=" + gateID)
	}
	gate.LastHeartbeat = s.clock()
	gate.CurrentConnections = connections
	raw, err := json.Marshal(gate)
	if err != nil {
		return errs.ErrInternal.WrapMsg("marshal gate", "gate", gateID)
	}
	if err := s.rdb.Set(ctx, gateKey(gateID), raw, 0).Err(); err != nil {
		return errs.ErrRPCFailed.WrapMsg("redis update gate", "gate", gateID, "err", err)
	}
	return nil
}

func (s *RedisStore) GetGate(ctx context.Context, gateID string) (*GatewayNode, bool) {
	raw, err := s.rdb.Get(ctx, gateKey(gateID)).Bytes()
	if pkgerr.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		logger.Warnf("[redis-store] get gate gate=%s err=%v", gateID, err)
		return nil, false
	}
	var node GatewayNode
	if err := json.Unmarshal(raw, &node); err != nil {
		logger.Errorf("[redis-store] gate corrupt gate=%s err=%v", gateID, err)
		return nil, false
	}
	return &node, true
}

func (s *RedisStore) StaleGates(ctx context.Context, maxAge time.Duration) []string {
	ids, err := s.rdb.SMembers(ctx, gateSetKey).Result()
	if err != nil {
		logger.Warnf("[redis-store] smembers gates err=%v", err)
		return nil
	}
	now := s.clock()
	var out []string
	for _, id := range ids {
		if gate, ok := s.GetGate(ctx, id); ok {
			if now.Sub(gate.LastHeartbeat) > maxAge {
				out = append(out, id)
			}
		}
	}
	return out
}
