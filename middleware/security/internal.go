package security

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"PPGate/protocol"
	"PPGate/tools/errs"

	"github.com/gin-gonic/gin"
)

// Options 内部调用鉴权配置。
type Options struct {
	Header string // 默认 protocol.InternalSecretHeader
	Secret string // 共享密钥；空串表示放行（仅测试/单机用）
}

func DefaultOptions(secret string) *Options {
	return &Options{
		Header: protocol.InternalSecretHeader,
		Secret: secret,
	}
}

// InternalSecret 校验服务间共享密钥。缺失或不匹配的请求在进入
// 业务逻辑前就被拒绝；这是内部链路唯一的鉴权。
func InternalSecret(opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions("")
	}
	header := opts.Header
	if header == "" {
		header = protocol.InternalSecretHeader
	}
	return func(c *gin.Context) {
		if opts.Secret == "" {
			c.Next()
			return
		}
		got := strings.TrimSpace(c.GetHeader(header))
		if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(opts.Secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, protocol.Envelope{
				Code:    errs.CodeTokenInvalid,
				Message: "internal secret mismatch",
			})
			return
		}
		c.Next()
	}
}
