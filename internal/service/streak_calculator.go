package service

import (
	"time"

	"github.com/lschandler81/Push365-sub000/internal/db"
)

// 连胜状态只通过下面两个函数变化，撤销打卡不会回滚历史。
// 这是刻意的产品决策：连胜记录的是“曾经完成过”，而非当前数值。

// EvaluateMissedDays 执行漏打检查。
// 首次运行只记录评估日期；同一自然日重复调用为幂等无操作；
// 距上次完成相隔 ≥2 个自然日（即至少整整漏掉一天）时清零当前连胜。
func EvaluateMissedDays(today time.Time, settings *db.ProgramSettings, loc *time.Location) {
	todayKey := DateKey(today, loc)

	if settings.LastStreakEvaluatedDateKey == nil {
		settings.LastStreakEvaluatedDateKey = &todayKey
		return
	}

	if DaysBetween(*settings.LastStreakEvaluatedDateKey, todayKey, loc) == 0 {
		return
	}

	if settings.LastCompletedDateKey != nil {
		gap := DaysBetween(*settings.LastCompletedDateKey, todayKey, loc)
		if gap >= 2 {
			settings.CurrentStreak = 0
		}
	}

	settings.LastStreakEvaluatedDateKey = &todayKey
}

// RecordCompletion 记录某日目标达成。
// 同一自然日重复调用为幂等无操作；与上次完成恰好相隔 1 天则连胜加一，
// 否则（从未完成过或间隔 ≥2 天）连胜重置为 1。LongestStreak 单调不减。
func RecordCompletion(date time.Time, settings *db.ProgramSettings, loc *time.Location) {
	dateKey := DateKey(date, loc)

	if settings.LastCompletedDateKey != nil &&
		DaysBetween(*settings.LastCompletedDateKey, dateKey, loc) == 0 {
		return
	}

	if settings.LastCompletedDateKey != nil &&
		DaysBetween(*settings.LastCompletedDateKey, dateKey, loc) == 1 {
		settings.CurrentStreak++
	} else {
		settings.CurrentStreak = 1
	}

	settings.LastCompletedDateKey = &dateKey

	if settings.CurrentStreak > settings.LongestStreak {
		settings.LongestStreak = settings.CurrentStreak
	}
}
