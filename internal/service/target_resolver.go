package service

import "github.com/lschandler81/Push365-sub000/internal/db"

// ResolveTarget 计算某一天的目标值，仅在 DayRecord 创建时调用一次，
// 结果随记录冻结，之后修改模式不会追溯已有记录。
// 严格模式：目标等于天数编号；弹性模式：上次完成目标 +1，
// 从未完成过时回退到按天数编号计算。
func ResolveTarget(dayNumber int, settings *db.ProgramSettings) int {
	switch settings.Mode {
	case db.ModeFlexible:
		if settings.LastCompletedTarget > 0 {
			return settings.LastCompletedTarget + 1
		}
		return StrictTarget(dayNumber)
	default:
		return StrictTarget(dayNumber)
	}
}
