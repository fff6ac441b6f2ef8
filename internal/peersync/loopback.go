package peersync

import "sync"

// Loopback 是进程内的传输实现，把一对端点直接互联，
// 用于测试与单机演示。持久层在断连期间于内存排队，
// 连通恢复后按顺序补投。
type Loopback struct {
	mu        sync.Mutex
	peer      *Loopback
	reachable bool
	queued    [][]byte
	reachFns  []func(bool)
	inbound   func(data []byte, reply func([]byte))
}

// NewLoopbackPair 返回互联的两个端点，初始状态不可达。
func NewLoopbackPair() (*Loopback, *Loopback) {
	a := &Loopback{}
	b := &Loopback{}
	a.peer = b
	b.peer = a
	return a, b
}

// SetReachable 切换链路连通状态（两端同步变化），
// 恢复连通时先补投两侧积压的持久消息，再通知各自的回调。
// 两端的状态先后更新，任何时刻只持有一把端点锁。
func (l *Loopback) SetReachable(reachable bool) {
	l.mu.Lock()
	l.reachable = reachable
	l.mu.Unlock()

	l.peer.mu.Lock()
	l.peer.reachable = reachable
	l.peer.mu.Unlock()

	if reachable {
		l.flushQueued()
		l.peer.flushQueued()
	}

	l.notify(reachable)
	l.peer.notify(reachable)
}

// Send 即时投递：不可达时返回 ErrUnreachable，否则同步交给对端处理。
func (l *Loopback) Send(data []byte, reply func([]byte)) error {
	l.mu.Lock()
	reachable := l.reachable
	l.mu.Unlock()

	if !reachable {
		return ErrUnreachable
	}

	l.peer.deliver(data, reply)
	return nil
}

// SendDurable 持久投递：可达时立即送达，否则排队等待连通恢复。
func (l *Loopback) SendDurable(data []byte) error {
	l.mu.Lock()
	reachable := l.reachable
	if !reachable {
		l.queued = append(l.queued, data)
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	l.peer.deliver(data, nil)
	return nil
}

// Reachable 返回当前连通状态。
func (l *Loopback) Reachable() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.reachable
}

// OnReachabilityChange 注册连通性变化回调。
func (l *Loopback) OnReachabilityChange(fn func(bool)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reachFns = append(l.reachFns, fn)
}

// OnInbound 注册入站消息处理函数。
func (l *Loopback) OnInbound(fn func(data []byte, reply func([]byte))) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inbound = fn
}

func (l *Loopback) deliver(data []byte, reply func([]byte)) {
	l.mu.Lock()
	handler := l.inbound
	l.mu.Unlock()

	if handler != nil {
		handler(data, reply)
	}
}

func (l *Loopback) flushQueued() {
	l.mu.Lock()
	queued := l.queued
	l.queued = nil
	l.mu.Unlock()

	for _, data := range queued {
		l.peer.deliver(data, nil)
	}
}

func (l *Loopback) notify(reachable bool) {
	l.mu.Lock()
	fns := make([]func(bool), len(l.reachFns))
	copy(fns, l.reachFns)
	l.mu.Unlock()

	for _, fn := range fns {
		fn(reachable)
	}
}
