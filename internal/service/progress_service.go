package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lschandler81/Push365-sub000/internal/db"
	"gorm.io/gorm"
)

// ErrInvalidMode 在传入未知的进度模式时返回
var ErrInvalidMode = errors.New("invalid progress mode")

// ProgressService 负责每日进度的读改写闭环：
// 取出或创建设置与日记录、追加/撤销打卡、重算完成量并触发连胜更新。
// 所有变更在单条互斥锁上串行执行（单写者模型），并以事务保证原子性。
type ProgressService struct {
	db  *gorm.DB
	loc *time.Location
	mu  sync.Mutex
	now func() time.Time
}

// SettingsInput 定义可由外层更新的设置字段。
type SettingsInput struct {
	Mode         string
	ReminderHour *int
	DisplayUnit  string
}

// DaySnapshot 是对外（同步/小组件/状态接口）发布的单日状态快照。
type DaySnapshot struct {
	DayNumber  int       `json:"day_number"`
	Target     int       `json:"target"`
	Completed  int       `json:"completed"`
	Remaining  int       `json:"remaining"`
	IsComplete bool      `json:"is_complete"`
	CanUndo    bool      `json:"can_undo"`
	Seq        uint64    `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
}

// NewProgressService 构造 ProgressService。loc 为 nil 时使用本地时区。
func NewProgressService(gdb *gorm.DB, loc *time.Location) *ProgressService {
	if loc == nil {
		loc = time.Local
	}
	return &ProgressService{db: gdb, loc: loc, now: time.Now}
}

// WithClock 替换取当前时间的函数，主要面向测试场景。
func (s *ProgressService) WithClock(now func() time.Time) *ProgressService {
	if now != nil {
		s.now = now
	}
	return s
}

// Location 返回服务使用的时区。
func (s *ProgressService) Location() *time.Location {
	return s.loc
}

// GetOrCreateSettings 读取设置单例，不存在时以默认值创建并立即持久化。
func (s *ProgressService) GetOrCreateSettings() (*db.ProgramSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var settings *db.ProgramSettings
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		settings, txErr = s.settingsTx(tx)
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("get or create settings: %w", err)
	}
	return settings, nil
}

// GetOrCreateDayRecord 取出指定日期的记录，缺失时按当前设置解析目标并创建。
// 读取路径同样会先执行漏打检查，保证连胜状态在任何访问前都是最新的。
func (s *ProgressService) GetOrCreateDayRecord(date time.Time) (*db.DayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record *db.DayRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		settings, txErr := s.settingsTx(tx)
		if txErr != nil {
			return txErr
		}
		if txErr := s.evaluateTx(tx, settings, date); txErr != nil {
			return txErr
		}
		record, txErr = s.dayRecordTx(tx, settings, date)
		return txErr
	})
	if err != nil {
		return nil, fmt.Errorf("get or create day record: %w", err)
	}
	return record, nil
}

// AddLog 为指定日期追加一次打卡。
// 数量钳制到 [1, 剩余量]，已完成的日期静默忽略；
// 当日从未完成转为完成时触发连胜记录并更新上次完成目标。
func (s *ProgressService) AddLog(amount int, date time.Time, source, note string) (*db.DayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record *db.DayRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		settings, txErr := s.settingsTx(tx)
		if txErr != nil {
			return txErr
		}
		if txErr := s.evaluateTx(tx, settings, date); txErr != nil {
			return txErr
		}
		record, txErr = s.dayRecordTx(tx, settings, date)
		if txErr != nil {
			return txErr
		}

		wasComplete := record.IsComplete()
		remaining := record.Remaining()
		if remaining == 0 {
			// 当日目标已达成，不再追加日志
			return nil
		}

		if amount < 1 {
			amount = 1
		}
		if amount > remaining {
			amount = remaining
		}

		entry := db.LogEntry{
			DayRecordID: record.ID,
			Timestamp:   s.now(),
			Amount:      amount,
			Source:      strings.TrimSpace(source),
			Note:        strings.TrimSpace(note),
		}
		if txErr := tx.Create(&entry).Error; txErr != nil {
			return txErr
		}

		record.Logs = append(record.Logs, entry)
		recomputeCompleted(record)
		if txErr := tx.Model(&db.DayRecord{}).Where("id = ?", record.ID).
			Update("completed", record.Completed).Error; txErr != nil {
			return txErr
		}

		if !wasComplete && record.IsComplete() {
			RecordCompletion(date, settings, s.loc)
			settings.LastCompletedTarget = record.Target
			if txErr := tx.Save(settings).Error; txErr != nil {
				return txErr
			}
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("add log: %w", err)
	}
	return record, nil
}

// UndoLastLog 删除指定日期时间戳最新的一条打卡并重算完成量。
// 没有日志时为无操作；连胜状态不随撤销回滚。
func (s *ProgressService) UndoLastLog(date time.Time) (*db.DayRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var record *db.DayRecord
	err := s.db.Transaction(func(tx *gorm.DB) error {
		settings, txErr := s.settingsTx(tx)
		if txErr != nil {
			return txErr
		}
		if txErr := s.evaluateTx(tx, settings, date); txErr != nil {
			return txErr
		}
		record, txErr = s.dayRecordTx(tx, settings, date)
		if txErr != nil {
			return txErr
		}

		if len(record.Logs) == 0 {
			return nil
		}

		latest := 0
		for i := 1; i < len(record.Logs); i++ {
			if record.Logs[i].Timestamp.After(record.Logs[latest].Timestamp) ||
				(record.Logs[i].Timestamp.Equal(record.Logs[latest].Timestamp) &&
					record.Logs[i].ID > record.Logs[latest].ID) {
				latest = i
			}
		}

		if txErr := tx.Delete(&db.LogEntry{}, record.Logs[latest].ID).Error; txErr != nil {
			return txErr
		}

		record.Logs = append(record.Logs[:latest], record.Logs[latest+1:]...)
		recomputeCompleted(record)
		return tx.Model(&db.DayRecord{}).Where("id = ?", record.ID).
			Update("completed", record.Completed).Error
	})
	if err != nil {
		return nil, fmt.Errorf("undo last log: %w", err)
	}
	return record, nil
}

// UpdateSettings 更新模式与透传偏好，模式不合法时返回 ErrInvalidMode。
func (s *ProgressService) UpdateSettings(input SettingsInput) (*db.ProgramSettings, error) {
	mode := strings.ToLower(strings.TrimSpace(input.Mode))
	if mode != "" && mode != db.ModeStrict && mode != db.ModeFlexible {
		return nil, fmt.Errorf("%w: %s", ErrInvalidMode, input.Mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var settings *db.ProgramSettings
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var txErr error
		settings, txErr = s.settingsTx(tx)
		if txErr != nil {
			return txErr
		}
		if mode != "" {
			settings.Mode = mode
		}
		if input.ReminderHour != nil {
			settings.ReminderHour = input.ReminderHour
		}
		if strings.TrimSpace(input.DisplayUnit) != "" {
			settings.DisplayUnit = strings.TrimSpace(input.DisplayUnit)
		}
		return tx.Save(settings).Error
	})
	if err != nil {
		return nil, fmt.Errorf("update settings: %w", err)
	}
	return settings, nil
}

// Reset 清空全部日记录与打卡日志，并把设置恢复为默认值。
func (s *ProgressService) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Transaction(func(tx *gorm.DB) error {
		session := tx.Session(&gorm.Session{AllowGlobalUpdate: true})
		if txErr := session.Unscoped().Delete(&db.LogEntry{}).Error; txErr != nil {
			return txErr
		}
		if txErr := session.Unscoped().Delete(&db.DayRecord{}).Error; txErr != nil {
			return txErr
		}
		if txErr := session.Unscoped().Delete(&db.ProgramSettings{}).Error; txErr != nil {
			return txErr
		}
		_, txErr := s.settingsTx(tx)
		return txErr
	})
	if err != nil {
		return fmt.Errorf("reset progress: %w", err)
	}
	return nil
}

// Snapshot 构建指定日期的权威状态快照，不递增序号。
func (s *ProgressService) Snapshot(date time.Time) (DaySnapshot, error) {
	record, err := s.GetOrCreateDayRecord(date)
	if err != nil {
		return DaySnapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var settings db.ProgramSettings
	if err := s.db.First(&settings).Error; err != nil {
		return DaySnapshot{}, fmt.Errorf("snapshot settings: %w", err)
	}

	return DaySnapshot{
		DayNumber:  record.DayNumber,
		Target:     record.Target,
		Completed:  record.Completed,
		Remaining:  record.Remaining(),
		IsComplete: record.IsComplete(),
		CanUndo:    len(record.Logs) > 0,
		Seq:        settings.SnapshotSeq,
		Timestamp:  s.now(),
	}, nil
}

// NextSeq 自增并持久化快照序号，每次权威推送前调用一次。
func (s *ProgressService) NextSeq() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var seq uint64
	err := s.db.Transaction(func(tx *gorm.DB) error {
		settings, txErr := s.settingsTx(tx)
		if txErr != nil {
			return txErr
		}
		settings.SnapshotSeq++
		seq = settings.SnapshotSeq
		return tx.Save(settings).Error
	})
	if err != nil {
		return 0, fmt.Errorf("next snapshot seq: %w", err)
	}
	return seq, nil
}

// settingsTx 在事务内取出或创建设置单例。
func (s *ProgressService) settingsTx(tx *gorm.DB) (*db.ProgramSettings, error) {
	var settings db.ProgramSettings
	err := tx.First(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	today := DateKey(s.now(), s.loc)
	settings = db.ProgramSettings{
		ProgramStartDate:  today,
		TrackingStartDate: today,
		Mode:              db.ModeStrict,
	}
	if err := tx.Create(&settings).Error; err != nil {
		return nil, err
	}
	return &settings, nil
}

// evaluateTx 在事务内执行漏打检查并持久化评估结果。
func (s *ProgressService) evaluateTx(tx *gorm.DB, settings *db.ProgramSettings, date time.Time) error {
	EvaluateMissedDays(date, settings, s.loc)
	return tx.Save(settings).Error
}

// dayRecordTx 在事务内按日期键取出记录，缺失时创建并冻结目标。
func (s *ProgressService) dayRecordTx(tx *gorm.DB, settings *db.ProgramSettings, date time.Time) (*db.DayRecord, error) {
	key := DateKey(date, s.loc)

	var record db.DayRecord
	err := tx.Preload("Logs").Where("date_key = ?", key).First(&record).Error
	if err == nil {
		return &record, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	dayNumber := DayNumber(date, settings.ProgramStartDate, s.loc)
	record = db.DayRecord{
		DateKey:   key,
		DayNumber: dayNumber,
		Target:    ResolveTarget(dayNumber, settings),
	}
	if err := tx.Create(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

// recomputeCompleted 把完成量重算为日志金额之和，任何日志变更后都必须调用。
func recomputeCompleted(record *db.DayRecord) {
	sum := 0
	for _, entry := range record.Logs {
		sum += entry.Amount
	}
	record.Completed = sum
	sort.SliceStable(record.Logs, func(i, j int) bool {
		return record.Logs[i].Timestamp.Before(record.Logs[j].Timestamp)
	})
}
