package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/lschandler81/Push365-sub000/internal/db"
	"gorm.io/gorm"
)

// AnalyticsService 提供只读统计：全量合计、年度合计以及由记录独立推导的连胜。
// 后者与设置中保存的连胜互为交叉校验，便于测试与排查。
type AnalyticsService struct {
	db  *gorm.DB
	loc *time.Location
}

// ProgressStats 汇总一个日期区间内的基础统计数据。
type ProgressStats struct {
	RangeStart     time.Time `json:"range_start"`
	RangeEnd       time.Time `json:"range_end"`
	DaysLogged     int       `json:"days_logged"`
	DaysCompleted  int       `json:"days_completed"`
	TotalCompleted int       `json:"total_completed"`
}

// NewAnalyticsService 构造 AnalyticsService。loc 为 nil 时使用本地时区。
func NewAnalyticsService(gdb *gorm.DB, loc *time.Location) *AnalyticsService {
	if loc == nil {
		loc = time.Local
	}
	return &AnalyticsService{db: gdb, loc: loc}
}

// LifetimeTotal 返回所有日记录完成量之和。
func (s *AnalyticsService) LifetimeTotal() (int, error) {
	var total int
	if err := s.db.Model(&db.DayRecord{}).
		Select("COALESCE(SUM(completed), 0)").
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("lifetime total: %w", err)
	}
	return total, nil
}

// YearToDateTotal 返回 now 所在年份内的完成量之和。
func (s *AnalyticsService) YearToDateTotal(now time.Time) (int, error) {
	start := StartOfYear(now, s.loc)

	var total int
	if err := s.db.Model(&db.DayRecord{}).
		Select("COALESCE(SUM(completed), 0)").
		Where("date_key >= ?", start).
		Scan(&total).Error; err != nil {
		return 0, fmt.Errorf("year to date total: %w", err)
	}
	return total, nil
}

// CurrentStreakFromRecords 从今天起逐日回溯，只要记录存在且达标就累计。
// 早于 TrackingStartDate 的日期不参与回溯（补录区间不算漏打）。
func (s *AnalyticsService) CurrentStreakFromRecords(today time.Time) (int, error) {
	var settings db.ProgramSettings
	if err := s.db.First(&settings).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("load settings: %w", err)
	}

	streak := 0
	cursor := DateKey(today, s.loc)
	trackingStart := DateKey(settings.TrackingStartDate, s.loc)

	for !cursor.Before(trackingStart) {
		var record db.DayRecord
		err := s.db.Where("date_key = ?", cursor).First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				break
			}
			return 0, fmt.Errorf("current streak from records: %w", err)
		}
		if !record.IsComplete() {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -1)
	}

	return streak, nil
}

// LongestStreakFromRecords 按日期顺序扫描全部记录，统计最长的连续达标天数。
func (s *AnalyticsService) LongestStreakFromRecords() (int, error) {
	var records []db.DayRecord
	if err := s.db.Order("date_key ASC").Find(&records).Error; err != nil {
		return 0, fmt.Errorf("longest streak from records: %w", err)
	}

	longest := 0
	current := 0
	var prev *time.Time

	for i := range records {
		record := records[i]
		if !record.IsComplete() {
			prev = nil
			current = 0
			continue
		}

		if prev != nil && DaysBetween(*prev, record.DateKey, s.loc) == 1 {
			current++
		} else {
			current = 1
		}

		key := record.DateKey
		prev = &key
		if current > longest {
			longest = current
		}
	}

	return longest, nil
}

// RangeSummary 统计一个日期区间内的打卡天数、达标天数与完成量合计。
func (s *AnalyticsService) RangeSummary(start, end time.Time) (*ProgressStats, error) {
	if end.Before(start) {
		return nil, fmt.Errorf("invalid range: end before start")
	}

	normalizedStart := DateKey(start, s.loc)
	normalizedEnd := DateKey(end, s.loc)

	var records []db.DayRecord
	if err := s.db.Where("date_key BETWEEN ? AND ?", normalizedStart, normalizedEnd).
		Order("date_key ASC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("range summary: %w", err)
	}

	stats := &ProgressStats{RangeStart: normalizedStart, RangeEnd: normalizedEnd}
	for _, record := range records {
		if record.Completed > 0 {
			stats.DaysLogged++
		}
		if record.IsComplete() {
			stats.DaysCompleted++
		}
		stats.TotalCompleted += record.Completed
	}

	return stats, nil
}
