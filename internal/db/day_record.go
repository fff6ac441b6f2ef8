package db

import (
	"time"

	"gorm.io/gorm"
)

// DayRecord 记录单个自然日的进度。
// DateKey 归一到当日零点并唯一索引，保证每个日期仅有一条记录。
// Target 在记录创建时一次性解析并冻结，此后设置变更不会追溯修改。
// Completed 永远等于所属日志条目金额之和，由服务层在每次变更后重算。
type DayRecord struct {
	gorm.Model
	DateKey   time.Time `gorm:"uniqueIndex"`
	DayNumber int
	Target    int
	Completed int
	Logs      []LogEntry `gorm:"constraint:OnDelete:CASCADE"`
}

// Remaining 返回当日剩余量，完成后为 0。
func (r DayRecord) Remaining() int {
	if r.Target <= r.Completed {
		return 0
	}
	return r.Target - r.Completed
}

// IsComplete 判断当日目标是否已达成。
func (r DayRecord) IsComplete() bool {
	return r.Completed >= r.Target
}

// TableName 自定义表名以保持命名一致。
func (DayRecord) TableName() string {
	return "day_records"
}

// LogEntry 是一次打卡的明细。
// Amount 在写入前已被服务层钳制到 [1, remaining]；Source 标记来源（manual/sync/watch）。
type LogEntry struct {
	gorm.Model
	DayRecordID uint `gorm:"index"`
	Timestamp   time.Time
	Amount      int
	Source      string `gorm:"size:20"`
	Note        string
}

// TableName 自定义表名以保持命名一致。
func (LogEntry) TableName() string {
	return "log_entries"
}
