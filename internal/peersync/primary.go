package peersync

import (
	"fmt"
	"sync"
	"time"

	"github.com/lschandler81/Push365-sub000/internal/logutil"
	"github.com/lschandler81/Push365-sub000/internal/service"
)

// 去重集合的容量上限，超出后按先进先出淘汰
const seenActionLimit = 512

// Primary 是同步协议的主角色：持有权威 ProgressService，
// 接收副设备动作并经进度服务落库，随后推回最新权威快照。
// 每次推送前递增持久化的快照序号，即时通道不可达时转用持久投递，
// 保证副设备最终收敛。
type Primary struct {
	mu        sync.Mutex
	progress  *service.ProgressService
	transport Transport
	widget    *WidgetStore
	now       func() time.Time
	seen      map[string]struct{}
	seenOrder []string
}

// NewPrimary 构造主角色并挂接传输层的入站与连通性回调。
func NewPrimary(progress *service.ProgressService, transport Transport, widget *WidgetStore) *Primary {
	p := &Primary{
		progress:  progress,
		transport: transport,
		widget:    widget,
		now:       time.Now,
		seen:      make(map[string]struct{}),
	}

	if transport != nil {
		transport.OnInbound(func(data []byte, reply func([]byte)) {
			if resp := p.HandleMessage(data); resp != nil && reply != nil {
				reply(resp)
			}
		})
		transport.OnReachabilityChange(func(reachable bool) {
			if !reachable {
				return
			}
			// 对端重新上线：推送一次权威状态帮助其收敛
			if err := p.PushState(); err != nil {
				logutil.Log.WithError(err).Warn("push state on reachability change failed")
			}
		})
	}

	return p
}

// WithClock 替换取当前时间的函数，主要面向测试场景。
func (p *Primary) WithClock(now func() time.Time) *Primary {
	if now != nil {
		p.now = now
	}
	return p
}

// HandleMessage 处理一条入站消息并返回应答字节（无应答时为 nil）。
// 畸形消息静默丢弃；动作应答始终是最新的权威快照。
func (p *Primary) HandleMessage(data []byte) []byte {
	switch EnvelopeKind(data) {
	case KindAction:
		action, ok := DecodeAction(data)
		if !ok {
			logutil.Log.Debug("dropping malformed action message")
			return nil
		}
		if err := p.applyAction(action); err != nil {
			logutil.Log.WithError(err).Error("apply sync action failed")
		}
		state, err := p.nextState()
		if err != nil {
			logutil.Log.WithError(err).Error("build action reply failed")
			return nil
		}
		return EncodeEnvelope(KindSnapshot, state)
	case KindSnapshotRequest:
		state, err := p.CurrentState()
		if err != nil {
			logutil.Log.WithError(err).Error("build snapshot reply failed")
			return nil
		}
		return EncodeEnvelope(KindSnapshot, state)
	default:
		logutil.Log.Debug("dropping message of unknown kind")
		return nil
	}
}

// PushState 发布一次权威快照：刷新小组件存储，随后尝试即时推送，
// 对端不可达时改走持久的存储转发通道。
func (p *Primary) PushState() error {
	state, err := p.nextState()
	if err != nil {
		return err
	}

	data := EncodeEnvelope(KindSnapshot, state)
	if data == nil {
		return fmt.Errorf("encode snapshot envelope failed")
	}

	if p.transport == nil {
		return nil
	}

	if err := p.transport.Send(data, nil); err != nil {
		return p.transport.SendDurable(data)
	}
	return nil
}

// CurrentState 返回当前的权威快照，只读，不递增序号。
// 快照请求应答与拉取接口走这条路径，重复读取不会让序号变成读计数器。
func (p *Primary) CurrentState() (DayState, error) {
	snap, err := p.progress.Snapshot(p.now())
	if err != nil {
		return DayState{}, err
	}
	return DayStateFromSnapshot(snap), nil
}

// nextState 为一次变更触发的推送生成带新序号的权威快照，
// 并同步刷新小组件存储。
func (p *Primary) nextState() (DayState, error) {
	if _, err := p.progress.NextSeq(); err != nil {
		return DayState{}, err
	}

	snap, err := p.progress.Snapshot(p.now())
	if err != nil {
		return DayState{}, err
	}

	state := DayStateFromSnapshot(snap)
	if p.widget != nil {
		if err := p.widget.Write(state); err != nil {
			logutil.Log.WithError(err).Warn("refresh widget snapshot failed")
		}
	}
	return state, nil
}

// applyAction 把动作路由到进度服务，按 action_id 去重，
// 持久通道的重复投递不会二次生效。
func (p *Primary) applyAction(action Action) error {
	if p.alreadySeen(action.ID) {
		logutil.Log.WithField("action_id", action.ID).Debug("skipping duplicate action")
		return nil
	}

	now := p.now()
	switch action.Type {
	case ActionLog:
		_, err := p.progress.AddLog(action.Amount, now, "sync", "")
		return err
	case ActionUndo:
		_, err := p.progress.UndoLastLog(now)
		return err
	default:
		return nil
	}
}

func (p *Primary) alreadySeen(id string) bool {
	if id == "" {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.seen[id]; ok {
		return true
	}

	p.seen[id] = struct{}{}
	p.seenOrder = append(p.seenOrder, id)
	if len(p.seenOrder) > seenActionLimit {
		oldest := p.seenOrder[0]
		p.seenOrder = p.seenOrder[1:]
		delete(p.seen, oldest)
	}
	return false
}

