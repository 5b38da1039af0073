package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"PPGate/protocol"
	"PPGate/tools/errs"
)

// Config 一个内部 RPC 目标。
type Config struct {
	BaseURL string        // 形如 http://127.0.0.1:8090
	Secret  string        // x-internal-secret
	Timeout time.Duration // 默认 5s；调用方 ctx 已带 deadline 时以 ctx 为准
}

// Caller 通用内部调用器：deadline + 密钥头 + JSON 包裹。
// 各后端客户端通过组合 Caller 实现，不做继承。
type Caller struct {
	cfg Config
	hc  *http.Client
}

func NewCaller(cfg Config) *Caller {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &Caller{
		cfg: cfg,
		hc:  &http.Client{},
	}
}

func (c *Caller) BaseURL() string { return c.cfg.BaseURL }

// Call 发起一次内部调用。req 编码为 JSON 体；响应 Envelope 的
// code 非 0 时返回对应 CodeError；否则把 data 解码进 out（可为 nil）。
// 传输层失败（超时、不可达）统一折算为 CodeRPCFailed，不向上抛原始错误。
func (c *Caller) Call(ctx context.Context, path string, req any, out any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errs.ErrInternal.WrapMsg("marshal request", "path", path, "err", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return errs.ErrRPCFailed.WrapMsg("build request", "path", path, "err", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.cfg.Secret != "" {
		httpReq.Header.Set(protocol.InternalSecretHeader, c.cfg.Secret)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return errs.ErrRPCFailed.WrapMsg("call", "path", path, "err", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.ErrRPCFailed.WrapMsg("read response", "path", path, "err", err)
	}

	var env protocol.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return errs.ErrRPCFailed.WrapMsg("decode envelope", "path", path, "status", resp.StatusCode)
	}
	if env.Code != errs.CodeOK {
		return errs.NewCodeError(env.Code, env.Message)
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return errs.ErrInternal.WrapMsg("decode data", "path", path, "err", err)
		}
	}
	return nil
}
