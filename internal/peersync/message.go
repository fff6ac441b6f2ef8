package peersync

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/lschandler81/Push365-sub000/internal/service"
	"github.com/tidwall/gjson"
)

// 信封里的消息类别
const (
	KindSnapshot        = "snapshot"
	KindSnapshotRequest = "snapshot_request"
	KindAction          = "action"
)

// 动作类型
const (
	ActionLog  = "log"
	ActionUndo = "undo"
)

// DayState 是主副设备间交换的权威单日状态快照。
// Seq 为主设备维护的单调序号：同一逻辑状态经即时与持久两条通道
// 重复到达时按 Seq 幂等覆盖，乱序到达时丢弃旧序号。
type DayState struct {
	DayNumber  int       `json:"day_number"`
	Target     int       `json:"target"`
	Completed  int       `json:"completed"`
	Remaining  int       `json:"remaining"`
	IsComplete bool      `json:"is_complete"`
	CanUndo    bool      `json:"can_undo"`
	Seq        uint64    `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
}

// Action 是副设备提交的打卡/撤销请求。
// ID 用于主设备去重，持久通道重投不会二次生效。
type Action struct {
	ID              string    `json:"action_id"`
	Type            string    `json:"type"`
	Amount          int       `json:"amount,omitempty"`
	ClientTimestamp time.Time `json:"client_timestamp"`
}

// Envelope 包装一条携带类别标签的消息。
type Envelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DayStateFromSnapshot 把服务层快照转换为线上格式。
func DayStateFromSnapshot(snap service.DaySnapshot) DayState {
	return DayState{
		DayNumber:  snap.DayNumber,
		Target:     snap.Target,
		Completed:  snap.Completed,
		Remaining:  snap.Remaining,
		IsComplete: snap.IsComplete,
		CanUndo:    snap.CanUndo,
		Seq:        snap.Seq,
		Timestamp:  snap.Timestamp,
	}
}

// NewLogAction 构造一条带新 ID 的打卡动作。
func NewLogAction(amount int, now time.Time) Action {
	return Action{ID: uuid.NewString(), Type: ActionLog, Amount: amount, ClientTimestamp: now}
}

// NewUndoAction 构造一条带新 ID 的撤销动作。
func NewUndoAction(now time.Time) Action {
	return Action{ID: uuid.NewString(), Type: ActionUndo, ClientTimestamp: now}
}

// EncodeEnvelope 序列化一条消息，payload 编码失败时返回 nil（调用方按丢弃处理）。
func EncodeEnvelope(kind string, payload interface{}) []byte {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil
		}
		raw = data
	}
	data, err := json.Marshal(Envelope{Kind: kind, Payload: raw})
	if err != nil {
		return nil
	}
	return data
}

// EnvelopeKind 读取消息类别，缺失时返回空串。
func EnvelopeKind(data []byte) string {
	return gjson.GetBytes(data, "kind").String()
}

// DecodeDayState 解析快照载荷。必填字段缺失视为畸形消息，返回 ok=false，
// 接收方静默丢弃，绝不让坏消息击穿状态机。
func DecodeDayState(data []byte) (DayState, bool) {
	payload := gjson.GetBytes(data, "payload")
	if !payload.Exists() {
		return DayState{}, false
	}

	required := []string{"day_number", "target", "completed", "remaining", "is_complete", "seq", "timestamp"}
	for _, field := range required {
		if !payload.Get(field).Exists() {
			return DayState{}, false
		}
	}

	var state DayState
	if err := json.Unmarshal([]byte(payload.Raw), &state); err != nil {
		return DayState{}, false
	}
	return state, true
}

// DecodeAction 解析动作载荷。type 缺失或未知、log 动作缺 amount 均视为畸形；
// 旧客户端缺 action_id 时补发一个，保持去重逻辑可用。
func DecodeAction(data []byte) (Action, bool) {
	payload := gjson.GetBytes(data, "payload")
	if !payload.Exists() {
		return Action{}, false
	}

	kind := payload.Get("type").String()
	switch kind {
	case ActionLog:
		if !payload.Get("amount").Exists() {
			return Action{}, false
		}
	case ActionUndo:
	default:
		return Action{}, false
	}

	var action Action
	if err := json.Unmarshal([]byte(payload.Raw), &action); err != nil {
		return Action{}, false
	}
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	return action, true
}
