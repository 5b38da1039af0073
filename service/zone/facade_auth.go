package zone

import (
	"context"
	"time"

	"PPGate/protocol"
	"PPGate/tools/decode"
	"PPGate/tools/errs"
	"PPGate/tools/security"
)

// AuthFacade 登录态相关命令。有 Auth 后端时全部转发；
// 没有后端但配了本地密钥时，validate_token 走本地 HS256 校验
// （单机/开发部署用）。
type AuthFacade struct {
	backend     Invoker
	localSecret string
}

func NewAuthFacade(backend Invoker, localSecret string) *AuthFacade {
	return &AuthFacade{backend: backend, localSecret: localSecret}
}

func (f *AuthFacade) Namespace() string { return "auth" }

type validateTokenReq struct {
	Token string `json:"token"`
}

type validateTokenResp struct {
	UserID   string `json:"user_id"`
	ExpireAt int64  `json:"expire_at,omitempty"`
}

func (f *AuthFacade) Handle(ctx context.Context, action string, req *protocol.ClientRequest) *protocol.ClientResponse {
	switch action {
	case "validate_token":
		return f.validateToken(ctx, req)
	case "logout":
		return f.logout(ctx, req)
	default:
		return errResp(req.RequestID, errs.ErrUnsupported.WithDetail("cmd="+req.Cmd))
	}
}

func (f *AuthFacade) validateToken(ctx context.Context, req *protocol.ClientRequest) *protocol.ClientResponse {
	if f.backend != nil {
		resp, err := f.backend.Invoke(ctx, req)
		if err != nil {
			return errResp(req.RequestID, err)
		}
		return resp
	}
	if f.localSecret == "" {
		return errResp(req.RequestID, errs.ErrServiceUnavailable.WithDetail("auth backend not configured"))
	}

	in, err := decode.DecodeJSON[validateTokenReq](req.Payload)
	if err != nil || in.Token == "" {
		return errResp(req.RequestID, errs.ErrInvalidParam.WithDetail("token required"))
	}
	opts := security.DefaultOptions([]byte(f.localSecret))
	userID, err := security.Verify(opts, in.Token)
	if err != nil {
		return errResp(req.RequestID, errs.ErrTokenInvalid.WithDetail(err.Error()))
	}
	return okResp(req.RequestID, &validateTokenResp{
		UserID:   userID,
		ExpireAt: time.Now().Add(opts.TTL).Unix(),
	})
}

func (f *AuthFacade) logout(ctx context.Context, req *protocol.ClientRequest) *protocol.ClientResponse {
	if f.backend == nil {
		// token 无状态，本地模式下登出只是客户端动作
		return okResp(req.RequestID, nil)
	}
	resp, err := f.backend.Invoke(ctx, req)
	if err != nil {
		return errResp(req.RequestID, err)
	}
	return resp
}
