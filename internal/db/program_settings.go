package db

import (
	"time"

	"gorm.io/gorm"
)

const (
	// ModeStrict 表示目标等于天数的严格模式。
	ModeStrict = "strict"
	// ModeFlexible 表示目标跟随上次完成值递增的弹性模式。
	ModeFlexible = "flexible"
)

// ProgramSettings 是每台主设备唯一的计划设置单例。
// ProgramStartDate 决定天数编号；TrackingStartDate 之前的补录日不计入漏打统计。
// CurrentStreak/LongestStreak 仅由连胜计算器修改，撤销打卡不会回滚历史。
// SnapshotSeq 为同步快照的单调序号，随每次权威推送自增并持久化。
type ProgramSettings struct {
	gorm.Model
	ProgramStartDate           time.Time
	TrackingStartDate          time.Time
	Mode                       string `gorm:"size:20"`
	CurrentStreak              int
	LongestStreak              int
	LastCompletedDateKey       *time.Time
	LastStreakEvaluatedDateKey *time.Time
	LastCompletedTarget        int
	SnapshotSeq                uint64
	// 以下为透传的展示/提醒偏好，核心逻辑不解释其含义
	ReminderHour *int
	DisplayUnit  string `gorm:"size:20"`
}

// TableName 自定义表名以保持命名一致。
func (ProgramSettings) TableName() string {
	return "program_settings"
}
