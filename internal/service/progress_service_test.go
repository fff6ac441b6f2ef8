package service

import (
	"testing"
	"time"

	"github.com/lschandler81/Push365-sub000/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupProgressTestDB(t *testing.T) func() {
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

// newClockedService 构造一个时钟可控的进度服务，返回用于拨动时钟的函数。
func newClockedService(start time.Time) (*ProgressService, func(time.Time)) {
	current := start
	svc := NewProgressService(db.DB, time.UTC).WithClock(func() time.Time {
		return current
	})
	return svc, func(t time.Time) { current = t }
}

func TestGetOrCreateSettingsIdempotent(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	svc, _ := newClockedService(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))

	first, err := svc.GetOrCreateSettings()
	if err != nil {
		t.Fatalf("GetOrCreateSettings returned error: %v", err)
	}
	second, err := svc.GetOrCreateSettings()
	if err != nil {
		t.Fatalf("second GetOrCreateSettings returned error: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("expected singleton settings, got ids %d and %d", first.ID, second.ID)
	}
	if first.Mode != db.ModeStrict {
		t.Fatalf("default mode = %s, want strict", first.Mode)
	}

	var count int64
	if err := db.DB.Model(&db.ProgramSettings{}).Count(&count).Error; err != nil {
		t.Fatalf("count settings: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 settings row, got %d", count)
	}
}

func TestAddLogStrictEndToEnd(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	svc, setClock := newClockedService(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))

	// 先在 1 月 1 日初始化计划，开始日期随之固定
	if _, err := svc.GetOrCreateSettings(); err != nil {
		t.Fatalf("init settings: %v", err)
	}

	day3 := time.Date(2026, 1, 3, 9, 0, 0, 0, time.UTC)
	setClock(day3)

	for i := 0; i < 3; i++ {
		setClock(day3.Add(time.Duration(i) * time.Minute))
		if _, err := svc.AddLog(1, day3, "manual", ""); err != nil {
			t.Fatalf("AddLog returned error: %v", err)
		}
	}

	record, err := svc.GetOrCreateDayRecord(day3)
	if err != nil {
		t.Fatalf("GetOrCreateDayRecord returned error: %v", err)
	}

	if record.DayNumber != 3 || record.Target != 3 {
		t.Fatalf("day/target = %d/%d, want 3/3", record.DayNumber, record.Target)
	}
	if record.Completed != 3 || !record.IsComplete() {
		t.Fatalf("completed = %d complete=%v, want 3/true", record.Completed, record.IsComplete())
	}

	settings, err := svc.GetOrCreateSettings()
	if err != nil {
		t.Fatalf("reload settings: %v", err)
	}
	if settings.CurrentStreak != 1 {
		t.Fatalf("first-ever completion streak = %d, want 1", settings.CurrentStreak)
	}
	if settings.LastCompletedTarget != 3 {
		t.Fatalf("last completed target = %d, want 3", settings.LastCompletedTarget)
	}

	// 撤销一次：完成量回落，连胜保持不变
	record, err = svc.UndoLastLog(day3)
	if err != nil {
		t.Fatalf("UndoLastLog returned error: %v", err)
	}
	if record.Completed != 2 || record.IsComplete() {
		t.Fatalf("after undo completed = %d complete=%v, want 2/false", record.Completed, record.IsComplete())
	}

	settings, _ = svc.GetOrCreateSettings()
	if settings.CurrentStreak != 1 || settings.LongestStreak != 1 {
		t.Fatalf("undo must not roll back streak, got %d/%d", settings.CurrentStreak, settings.LongestStreak)
	}
}

func TestAddLogClampsToRemaining(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc, setClock := newClockedService(start)
	if _, err := svc.GetOrCreateSettings(); err != nil {
		t.Fatalf("init settings: %v", err)
	}

	day5 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	setClock(day5)

	record, err := svc.AddLog(30, day5, "manual", "")
	if err != nil {
		t.Fatalf("AddLog returned error: %v", err)
	}

	if record.Completed != 5 {
		t.Fatalf("completed = %d, want clamp to remaining 5", record.Completed)
	}
	if len(record.Logs) != 1 || record.Logs[0].Amount != 5 {
		t.Fatalf("expected single clamped entry of 5, got %+v", record.Logs)
	}
}

func TestAddLogNoOpWhenComplete(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc, setClock := newClockedService(start)
	if _, err := svc.GetOrCreateSettings(); err != nil {
		t.Fatalf("init settings: %v", err)
	}

	day2 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	setClock(day2)

	if _, err := svc.AddLog(2, day2, "manual", ""); err != nil {
		t.Fatalf("AddLog returned error: %v", err)
	}

	record, err := svc.AddLog(1, day2, "manual", "")
	if err != nil {
		t.Fatalf("AddLog on complete day returned error: %v", err)
	}

	if len(record.Logs) != 1 {
		t.Fatalf("expected no new entry on complete day, got %d entries", len(record.Logs))
	}
	if record.Completed != 2 {
		t.Fatalf("completed = %d, want 2", record.Completed)
	}
}

func TestUndoLastLogRemovesLatest(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc, setClock := newClockedService(start)
	if _, err := svc.GetOrCreateSettings(); err != nil {
		t.Fatalf("init settings: %v", err)
	}

	day10 := time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

	setClock(day10)
	if _, err := svc.AddLog(4, day10, "manual", ""); err != nil {
		t.Fatalf("AddLog returned error: %v", err)
	}
	setClock(day10.Add(time.Hour))
	if _, err := svc.AddLog(3, day10, "manual", ""); err != nil {
		t.Fatalf("AddLog returned error: %v", err)
	}

	record, err := svc.UndoLastLog(day10)
	if err != nil {
		t.Fatalf("UndoLastLog returned error: %v", err)
	}

	if record.Completed != 4 {
		t.Fatalf("completed after undo = %d, want 4 (latest entry removed)", record.Completed)
	}
	if len(record.Logs) != 1 || record.Logs[0].Amount != 4 {
		t.Fatalf("expected the earlier entry to survive, got %+v", record.Logs)
	}
}

func TestUndoLastLogNoLogsNoOp(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	svc, _ := newClockedService(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))

	record, err := svc.UndoLastLog(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("UndoLastLog returned error: %v", err)
	}
	if record.Completed != 0 || len(record.Logs) != 0 {
		t.Fatalf("expected untouched empty record, got completed=%d logs=%d", record.Completed, len(record.Logs))
	}
}

func TestFlexibleModeProgression(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc, setClock := newClockedService(start)
	if _, err := svc.GetOrCreateSettings(); err != nil {
		t.Fatalf("init settings: %v", err)
	}
	if _, err := svc.UpdateSettings(SettingsInput{Mode: db.ModeFlexible}); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}

	// 从未完成过：第 5 天目标回退到天数编号 5
	day5 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	setClock(day5)
	record, err := svc.GetOrCreateDayRecord(day5)
	if err != nil {
		t.Fatalf("GetOrCreateDayRecord returned error: %v", err)
	}
	if record.Target != 5 {
		t.Fatalf("flexible fallback target = %d, want 5", record.Target)
	}

	if _, err := svc.AddLog(5, day5, "manual", ""); err != nil {
		t.Fatalf("AddLog returned error: %v", err)
	}

	// 完成目标 5 后：次日目标为 6，与天数编号无关
	day6 := time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC)
	setClock(day6)
	record, err = svc.GetOrCreateDayRecord(day6)
	if err != nil {
		t.Fatalf("GetOrCreateDayRecord returned error: %v", err)
	}
	if record.Target != 6 {
		t.Fatalf("flexible progressed target = %d, want 6", record.Target)
	}
}

func TestTargetFrozenAtCreation(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc, setClock := newClockedService(start)
	if _, err := svc.GetOrCreateSettings(); err != nil {
		t.Fatalf("init settings: %v", err)
	}

	day4 := time.Date(2026, 1, 4, 10, 0, 0, 0, time.UTC)
	setClock(day4)
	record, err := svc.GetOrCreateDayRecord(day4)
	if err != nil {
		t.Fatalf("GetOrCreateDayRecord returned error: %v", err)
	}
	if record.Target != 4 {
		t.Fatalf("strict target = %d, want 4", record.Target)
	}

	// 事后切换模式不追溯已创建记录
	if _, err := svc.UpdateSettings(SettingsInput{Mode: db.ModeFlexible}); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}
	record, err = svc.GetOrCreateDayRecord(day4)
	if err != nil {
		t.Fatalf("reload day record: %v", err)
	}
	if record.Target != 4 {
		t.Fatalf("target changed after mode switch: %d", record.Target)
	}
}

func TestUpdateSettingsRejectsUnknownMode(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	svc, _ := newClockedService(time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC))

	if _, err := svc.UpdateSettings(SettingsInput{Mode: "yearly"}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}

func TestResetPurgesRecords(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc, setClock := newClockedService(start)

	day2 := time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC)
	setClock(day2)
	if _, err := svc.AddLog(2, day2, "manual", ""); err != nil {
		t.Fatalf("AddLog returned error: %v", err)
	}

	if err := svc.Reset(); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}

	var records int64
	if err := db.DB.Model(&db.DayRecord{}).Count(&records).Error; err != nil {
		t.Fatalf("count records: %v", err)
	}
	if records != 0 {
		t.Fatalf("expected 0 day records after reset, got %d", records)
	}

	settings, err := svc.GetOrCreateSettings()
	if err != nil {
		t.Fatalf("GetOrCreateSettings returned error: %v", err)
	}
	if settings.CurrentStreak != 0 || settings.LastCompletedDateKey != nil {
		t.Fatalf("expected default settings after reset, got %+v", settings)
	}
}

func TestSnapshotAndSeq(t *testing.T) {
	cleanup := setupProgressTestDB(t)
	defer cleanup()

	start := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	svc, setClock := newClockedService(start)
	if _, err := svc.GetOrCreateSettings(); err != nil {
		t.Fatalf("init settings: %v", err)
	}

	day3 := time.Date(2026, 1, 3, 10, 0, 0, 0, time.UTC)
	setClock(day3)
	if _, err := svc.AddLog(1, day3, "manual", ""); err != nil {
		t.Fatalf("AddLog returned error: %v", err)
	}

	seq, err := svc.NextSeq()
	if err != nil {
		t.Fatalf("NextSeq returned error: %v", err)
	}
	if seq != 1 {
		t.Fatalf("first seq = %d, want 1", seq)
	}

	snap, err := svc.Snapshot(day3)
	if err != nil {
		t.Fatalf("Snapshot returned error: %v", err)
	}
	if snap.DayNumber != 3 || snap.Target != 3 || snap.Completed != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if snap.Remaining != 2 || snap.IsComplete || !snap.CanUndo {
		t.Fatalf("unexpected derived snapshot fields: %+v", snap)
	}
	if snap.Seq != 1 {
		t.Fatalf("snapshot seq = %d, want 1", snap.Seq)
	}
}
