package service

import "time"

// 日期计算均以自然日为粒度：先把时间戳归一到所在时区的当日零点，
// 再换算成 UTC 日序数求差，避免夏令时把一天算成 23/25 小时。

// DateKey 将任意时间截断到其所在自然日的零点。
// loc 为 nil 时回退到本地时区，不向调用方抛错。
func DateKey(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}

// DaysBetween 返回两个时间所在自然日的带符号天数差（b 晚于 a 时为正）。
func DaysBetween(a, b time.Time, loc *time.Location) int {
	ka := DateKey(a, loc)
	kb := DateKey(b, loc)

	// 映射到 UTC 零点后相减，UTC 无夏令时，每天恰好 24 小时
	ua := time.Date(ka.Year(), ka.Month(), ka.Day(), 0, 0, 0, 0, time.UTC)
	ub := time.Date(kb.Year(), kb.Month(), kb.Day(), 0, 0, 0, 0, time.UTC)

	return int(ub.Sub(ua).Hours() / 24)
}

// DayNumber 计算 1 起始的计划天数编号，早于开始日的日期一律记为第 1 天。
// 同一自然日内的任意时刻返回相同编号。
func DayNumber(t, startDate time.Time, loc *time.Location) int {
	n := DaysBetween(startDate, t, loc) + 1
	if n < 1 {
		return 1
	}
	return n
}

// StrictTarget 返回严格模式下的目标值。
func StrictTarget(dayNumber int) int {
	if dayNumber < 1 {
		return 1
	}
	return dayNumber
}

// StartOfYear 返回时间所在年份的 1 月 1 日零点。
func StartOfYear(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := t.In(loc)
	return time.Date(local.Year(), time.January, 1, 0, 0, 0, 0, loc)
}
