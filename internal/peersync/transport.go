package peersync

import "errors"

// ErrUnreachable 在对端当前不可达、即时通道无法使用时返回
var ErrUnreachable = errors.New("peer unreachable")

// Transport 抽象主副设备间的双层投递通道。
// Send 为即时尽力投递，仅在对端可达时成功，reply 在对端同步应答时回调；
// SendDurable 为持久化的存储转发投递，连通恢复后保证最终送达，且跨进程重启存活。
type Transport interface {
	Send(data []byte, reply func([]byte)) error
	SendDurable(data []byte) error
	Reachable() bool
	OnReachabilityChange(fn func(reachable bool))
	OnInbound(fn func(data []byte, reply func([]byte)))
}
