package peersync

import (
	"testing"
	"time"

	"github.com/lschandler81/Push365-sub000/internal/db"
	"github.com/lschandler81/Push365-sub000/internal/service"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSyncTestDB(t *testing.T) func() {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	db.DB = gdb

	return func() {
		sqlDB, err := db.DB.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
}

// newSyncFixture 搭一套端到端的同步环境：内存库上的进度服务、
// 回环传输两端、主角色（带小组件存储）与副角色（带落盘待发队列）。
// 设置在 programStart 当天初始化，随后时钟拨到 at。
func newSyncFixture(t *testing.T, programStart, at time.Time) (*Primary, *Secondary, *Loopback, *WidgetStore) {
	t.Helper()

	current := programStart
	clock := func() time.Time { return current }

	svc := service.NewProgressService(db.DB, time.UTC).WithClock(clock)
	if _, err := svc.GetOrCreateSettings(); err != nil {
		t.Fatalf("init settings: %v", err)
	}
	current = at

	primaryEnd, secondaryEnd := NewLoopbackPair()
	widget := NewWidgetStore(t.TempDir())

	pending, err := NewDurableQueue(t.TempDir())
	if err != nil {
		t.Fatalf("NewDurableQueue returned error: %v", err)
	}

	primary := NewPrimary(svc, primaryEnd, widget).WithClock(clock)
	secondary := NewSecondary(secondaryEnd, pending).WithClock(clock)

	return primary, secondary, primaryEnd, widget
}

func TestOfflineLogFlushAndReconcile(t *testing.T) {
	cleanup := setupSyncTestDB(t)
	defer cleanup()

	// 计划从 1 月 1 日开始，当前为第 5 天，目标 5
	programStart := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	day5 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	_, secondary, link, widget := newSyncFixture(t, programStart, day5)

	link.SetReachable(true)
	secondary.RequestSnapshot()

	proj := secondary.Projection()
	if proj.Target != 5 || proj.Completed != 0 {
		t.Fatalf("initial projection = %+v, want target 5 completed 0", proj)
	}

	// 断连期间打卡 10 个：乐观投影按剩余量封顶，动作进入待发队列
	link.SetReachable(false)
	secondary.LogPushups(10)

	proj = secondary.Projection()
	if proj.Completed != 5 || !proj.IsComplete {
		t.Fatalf("optimistic projection = %+v, want completed 5 complete", proj)
	}
	if secondary.PendingCount() != 1 {
		t.Fatalf("pending count = %d, want 1", secondary.PendingCount())
	}

	// 恢复连通：队列冲刷，主设备权威钳制后推回快照覆盖投影
	link.SetReachable(true)

	if secondary.PendingCount() != 0 {
		t.Fatalf("pending count after flush = %d, want 0", secondary.PendingCount())
	}

	proj = secondary.Projection()
	if proj.Completed != 5 || !proj.IsComplete || proj.CanUndo != true {
		t.Fatalf("reconciled projection = %+v, want authoritative completed 5", proj)
	}
	if proj.Seq == 0 {
		t.Fatal("reconciled projection must carry an authoritative seq")
	}

	// 小组件存储同步刷新
	state, ok := widget.Read()
	if !ok {
		t.Fatal("expected widget snapshot to exist")
	}
	if state.Completed != 5 {
		t.Fatalf("widget snapshot completed = %d, want 5", state.Completed)
	}
}

func TestOptimisticUndoThenReconcile(t *testing.T) {
	cleanup := setupSyncTestDB(t)
	defer cleanup()

	// 计划从 1 月 1 日开始，当前为第 3 天，目标 3
	programStart := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	day3 := time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC)
	_, secondary, link, _ := newSyncFixture(t, programStart, day3)

	link.SetReachable(true)
	secondary.RequestSnapshot()
	secondary.LogPushups(2)

	proj := secondary.Projection()
	if proj.Completed != 2 {
		t.Fatalf("completed after log = %d, want 2", proj.Completed)
	}

	// 断连撤销：副设备不知道最后一条的数量，按减一估算
	link.SetReachable(false)
	secondary.UndoLastLog()

	proj = secondary.Projection()
	if proj.Completed != 1 || !proj.CanUndo {
		t.Fatalf("optimistic undo projection = %+v, want completed 1", proj)
	}

	// 恢复连通：主设备删除整条 2 个的日志，权威值 0 覆盖估算值 1
	link.SetReachable(true)

	proj = secondary.Projection()
	if proj.Completed != 0 || proj.CanUndo {
		t.Fatalf("reconciled projection = %+v, want completed 0", proj)
	}
}

func TestPrimaryDeduplicatesRedeliveredActions(t *testing.T) {
	cleanup := setupSyncTestDB(t)
	defer cleanup()

	start := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	primary, _, _, _ := newSyncFixture(t, start, start)

	action := Action{ID: "fixed-id", Type: ActionLog, Amount: 1, ClientTimestamp: start}
	data := EncodeEnvelope(KindAction, action)

	// 即时与持久通道重复投递同一动作
	first := primary.HandleMessage(data)
	second := primary.HandleMessage(data)

	if first == nil || second == nil {
		t.Fatal("expected authoritative replies for both deliveries")
	}

	state, ok := DecodeDayState(second)
	if !ok {
		t.Fatal("expected second reply to decode")
	}
	if state.Completed != 1 {
		t.Fatalf("completed after duplicate delivery = %d, want 1", state.Completed)
	}
}

func TestStaleSnapshotDiscarded(t *testing.T) {
	secondary := NewSecondary(nil, nil)

	fresh := DayState{DayNumber: 3, Target: 3, Completed: 2, Remaining: 1, Seq: 5, Timestamp: time.Now()}
	secondary.handleInbound(EncodeEnvelope(KindSnapshot, fresh))

	stale := DayState{DayNumber: 3, Target: 3, Completed: 0, Remaining: 3, Seq: 3, Timestamp: time.Now()}
	secondary.handleInbound(EncodeEnvelope(KindSnapshot, stale))

	proj := secondary.Projection()
	if proj.Seq != 5 || proj.Completed != 2 {
		t.Fatalf("stale snapshot overwrote projection: %+v", proj)
	}

	// 相同序号的重复投递是幂等覆盖
	secondary.handleInbound(EncodeEnvelope(KindSnapshot, fresh))
	if secondary.Projection().Seq != 5 {
		t.Fatalf("idempotent redelivery changed seq: %+v", secondary.Projection())
	}
}

func TestMalformedInboundDropped(t *testing.T) {
	cleanup := setupSyncTestDB(t)
	defer cleanup()

	start := time.Date(2026, 1, 2, 9, 0, 0, 0, time.UTC)
	primary, secondary, link, _ := newSyncFixture(t, start, start)

	link.SetReachable(true)
	secondary.RequestSnapshot()
	before := secondary.Projection()

	if reply := primary.HandleMessage([]byte(`{"kind":"action","payload":{"amount":3}}`)); reply != nil {
		t.Fatal("expected malformed action to produce no reply")
	}
	if reply := primary.HandleMessage([]byte(`garbage`)); reply != nil {
		t.Fatal("expected garbage to produce no reply")
	}

	secondary.handleInbound([]byte(`{"kind":"snapshot","payload":{"target":9}}`))
	if secondary.Projection() != before {
		t.Fatalf("malformed snapshot mutated projection: %+v", secondary.Projection())
	}
}

func TestSpoolTransportQueuesDurablePushes(t *testing.T) {
	cleanup := setupSyncTestDB(t)
	defer cleanup()

	current := time.Date(2026, 1, 4, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return current }

	svc := service.NewProgressService(db.DB, time.UTC).WithClock(clock)
	queue, err := NewDurableQueue(t.TempDir())
	if err != nil {
		t.Fatalf("NewDurableQueue returned error: %v", err)
	}

	primary := NewPrimary(svc, NewSpoolTransport(queue), nil).WithClock(clock)

	if err := primary.PushState(); err != nil {
		t.Fatalf("PushState returned error: %v", err)
	}

	if queue.Len() != 1 {
		t.Fatalf("spool queue length = %d, want 1", queue.Len())
	}

	var captured []byte
	if err := queue.Drain(func(data []byte) error {
		captured = data
		return nil
	}); err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}

	state, ok := DecodeDayState(captured)
	if !ok {
		t.Fatal("expected spooled snapshot to decode")
	}
	if state.Seq == 0 {
		t.Fatalf("spooled snapshot missing seq: %+v", state)
	}
}

func TestSecondaryWithoutTransportQueuesActions(t *testing.T) {
	pending, err := NewDurableQueue(t.TempDir())
	if err != nil {
		t.Fatalf("NewDurableQueue returned error: %v", err)
	}

	secondary := NewSecondary(nil, pending)

	// 无传输层时请求快照与冲刷都应静默返回
	secondary.RequestSnapshot()
	secondary.Flush()

	secondary.LogPushups(3)
	secondary.UndoLastLog()

	if got := secondary.PendingCount(); got != 2 {
		t.Fatalf("pending count = %d, want 2 queued actions", got)
	}
}
