package errs

// 业务错误码。0 表示成功；其余按大类递增，网关和 Zone 共用。
const (
	CodeOK                 = 0
	CodeInvalidParam       = 1001 // 参数缺失/格式错误
	CodeTokenInvalid       = 1002 // 登录/转发携带的凭证无效
	CodeUnsupported        = 1003 // 未知命令
	CodeUserOffline        = 1004 // 推送目标没有会话
	CodeForwardFailed      = 1005 // 转发到后端失败
	CodeRPCFailed          = 1006 // 内部 RPC 传输层失败
	CodeServiceUnavailable = 1007 // 后端门面未配置连接
	CodeGateNotFound       = 1008 // 引用了未注册的网关
	CodeInternal           = 1009 // 序列化或不变量被破坏
)

var (
	ErrInvalidParam       = NewCodeError(CodeInvalidParam, "invalid param")
	ErrTokenInvalid       = NewCodeError(CodeTokenInvalid, "token invalid")
	ErrUnsupported        = NewCodeError(CodeUnsupported, "unsupported command")
	ErrUserOffline        = NewCodeError(CodeUserOffline, "user offline")
	ErrForwardFailed      = NewCodeError(CodeForwardFailed, "forward failed")
	ErrRPCFailed          = NewCodeError(CodeRPCFailed, "rpc failed")
	ErrServiceUnavailable = NewCodeError(CodeServiceUnavailable, "service unavailable")
	ErrGateNotFound       = NewCodeError(CodeGateNotFound, "gate not found")
	ErrInternal           = NewCodeError(CodeInternal, "internal error")
)
