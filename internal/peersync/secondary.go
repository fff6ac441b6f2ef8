package peersync

import (
	"sync"
	"time"

	"github.com/lschandler81/Push365-sub000/internal/logutil"
)

// Secondary 是同步协议的副角色（手表等）：只持有缓存投影。
// 本地动作先乐观地更新投影让界面即时反馈，再提交给主设备；
// 不可达时动作进入持久待发队列，连通恢复后按原顺序冲刷。
// 任何到达的权威快照都会无条件覆盖乐观投影（旧序号除外）。
type Secondary struct {
	mu        sync.Mutex
	transport Transport
	pending   *DurableQueue
	state     DayState
	lastSeq   uint64
	now       func() time.Time
}

// NewSecondary 构造副角色并挂接传输层回调。
func NewSecondary(transport Transport, pending *DurableQueue) *Secondary {
	s := &Secondary{transport: transport, pending: pending, now: time.Now}

	if transport != nil {
		transport.OnInbound(func(data []byte, reply func([]byte)) {
			s.handleInbound(data)
		})
		transport.OnReachabilityChange(func(reachable bool) {
			if reachable {
				s.Flush()
			}
		})
	}

	return s
}

// WithClock 替换取当前时间的函数，主要面向测试场景。
func (s *Secondary) WithClock(now func() time.Time) *Secondary {
	if now != nil {
		s.now = now
	}
	return s
}

// Projection 返回当前展示用的投影状态。
func (s *Secondary) Projection() DayState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// PendingCount 返回待发队列长度。
func (s *Secondary) PendingCount() int {
	if s.pending == nil {
		return 0
	}
	return s.pending.Len()
}

// RequestSnapshot 向主设备请求一次初始快照，激活时调用。
// 不可达时静默失败，继续使用本地投影。
func (s *Secondary) RequestSnapshot() {
	if s.transport == nil {
		return
	}

	data := EncodeEnvelope(KindSnapshotRequest, nil)
	if err := s.transport.Send(data, s.handleInbound); err != nil {
		logutil.Log.WithError(err).Debug("snapshot request failed, staying on local projection")
	}
}

// LogPushups 提交一次打卡：先对投影做乐观更新（数量按投影剩余量封顶），
// 再把原始数量提交给主设备，由主设备做权威钳制。
func (s *Secondary) LogPushups(amount int) {
	if amount < 1 {
		amount = 1
	}

	s.mu.Lock()
	if s.state.Remaining > 0 {
		capped := amount
		if capped > s.state.Remaining {
			capped = s.state.Remaining
		}
		s.state.Completed += capped
		s.state.recompute()
	}
	s.mu.Unlock()

	s.submit(NewLogAction(amount, s.now()))
}

// UndoLastLog 提交一次撤销：副设备不知道最后一条日志的数量，
// 乐观更新按减一估算，待权威快照到达后校正。
func (s *Secondary) UndoLastLog() {
	s.mu.Lock()
	if s.state.Completed > 0 {
		s.state.Completed--
		s.state.recompute()
	}
	s.mu.Unlock()

	s.submit(NewUndoAction(s.now()))
}

// Flush 按原顺序冲刷待发队列，发送失败时停止并保留剩余动作。
func (s *Secondary) Flush() {
	if s.pending == nil || s.transport == nil {
		return
	}

	err := s.pending.Drain(func(data []byte) error {
		return s.transport.Send(data, s.handleInbound)
	})
	if err != nil {
		logutil.Log.WithError(err).Debug("pending flush interrupted, will retry on next reachability")
	}
}

func (s *Secondary) submit(action Action) {
	data := EncodeEnvelope(KindAction, action)
	if data == nil {
		return
	}

	if s.transport != nil && s.transport.Reachable() {
		if err := s.transport.Send(data, s.handleInbound); err == nil {
			return
		}
	}

	if s.pending != nil {
		if err := s.pending.Append(data); err != nil {
			logutil.Log.WithError(err).Error("queue pending action failed")
		}
	}
}

func (s *Secondary) handleInbound(data []byte) {
	if EnvelopeKind(data) != KindSnapshot {
		return
	}

	state, ok := DecodeDayState(data)
	if !ok {
		logutil.Log.Debug("dropping malformed snapshot message")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// 即时与持久通道可能重复投递同一快照，旧序号直接丢弃，
	// 相同序号为幂等覆盖
	if state.Seq != 0 && state.Seq < s.lastSeq {
		return
	}

	s.state = state
	if state.Seq > s.lastSeq {
		s.lastSeq = state.Seq
	}
}

// recompute 由完成量重算派生字段，乐观更新后调用。
func (st *DayState) recompute() {
	st.Remaining = st.Target - st.Completed
	if st.Remaining < 0 {
		st.Remaining = 0
	}
	st.IsComplete = st.Completed >= st.Target
	st.CanUndo = st.Completed > 0
}
