package peersync

// SpoolTransport 适配没有长连推送通道的部署形态（纯 HTTP 服务）：
// 即时层恒不可达，持久层把待推快照写入落盘队列；
// 副设备恢复连通后通过快照接口拉取即可收敛，队列保证不丢推送。
type SpoolTransport struct {
	queue *DurableQueue
}

// NewSpoolTransport 构造以 queue 为后备的传输。
func NewSpoolTransport(queue *DurableQueue) *SpoolTransport {
	return &SpoolTransport{queue: queue}
}

// Send 恒返回 ErrUnreachable，促使调用方转用持久层。
func (t *SpoolTransport) Send(data []byte, reply func([]byte)) error {
	return ErrUnreachable
}

// SendDurable 把消息写入落盘队列。
func (t *SpoolTransport) SendDurable(data []byte) error {
	if t.queue == nil {
		return nil
	}
	return t.queue.Append(data)
}

// Reachable 恒为 false。
func (t *SpoolTransport) Reachable() bool {
	return false
}

// OnReachabilityChange 无长连通道，不会触发。
func (t *SpoolTransport) OnReachabilityChange(fn func(bool)) {}

// OnInbound 入站消息经由 HTTP 处理器直接调用主角色，不走传输层。
func (t *SpoolTransport) OnInbound(fn func(data []byte, reply func([]byte))) {}
