package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lschandler81/Push365-sub000/internal/db"
	"github.com/lschandler81/Push365-sub000/internal/logutil"
	"github.com/lschandler81/Push365-sub000/internal/peersync"
	"github.com/lschandler81/Push365-sub000/internal/service"
)

// API 聚合各处理器依赖的服务，便于路由层统一装配。
type API struct {
	progress  *service.ProgressService
	analytics *service.AnalyticsService
	primary   *peersync.Primary
	now       func() time.Time
}

// NewAPI 构造 API。primary 可为 nil（纯本地模式，不推送同步快照）。
func NewAPI(progress *service.ProgressService, analytics *service.AnalyticsService, primary *peersync.Primary) *API {
	return &API{
		progress:  progress,
		analytics: analytics,
		primary:   primary,
		now:       time.Now,
	}
}

// WithClock 替换取当前时间的函数，主要面向测试场景。
func (a *API) WithClock(now func() time.Time) *API {
	if now != nil {
		a.now = now
	}
	return a
}

// dayRecordPayload 把日记录整理成对外 JSON。
func dayRecordPayload(record *db.DayRecord) gin.H {
	logs := make([]gin.H, 0, len(record.Logs))
	for _, entry := range record.Logs {
		logs = append(logs, gin.H{
			"id":        entry.ID,
			"timestamp": entry.Timestamp,
			"amount":    entry.Amount,
			"source":    entry.Source,
			"note":      entry.Note,
		})
	}

	return gin.H{
		"date":        record.DateKey.Format(dateFormat),
		"day_number":  record.DayNumber,
		"target":      record.Target,
		"completed":   record.Completed,
		"remaining":   record.Remaining(),
		"is_complete": record.IsComplete(),
		"logs":        logs,
	}
}

// settingsPayload 把设置整理成对外 JSON，日期只保留日期部分。
func settingsPayload(settings *db.ProgramSettings) gin.H {
	payload := gin.H{
		"program_start_date":    settings.ProgramStartDate.Format(dateFormat),
		"tracking_start_date":   settings.TrackingStartDate.Format(dateFormat),
		"mode":                  settings.Mode,
		"current_streak":        settings.CurrentStreak,
		"longest_streak":        settings.LongestStreak,
		"last_completed_target": settings.LastCompletedTarget,
		"display_unit":          settings.DisplayUnit,
	}
	if settings.LastCompletedDateKey != nil {
		payload["last_completed_date"] = settings.LastCompletedDateKey.Format(dateFormat)
	}
	if settings.ReminderHour != nil {
		payload["reminder_hour"] = *settings.ReminderHour
	}
	return payload
}

// pushState 本地变更后向副设备发布权威快照，失败只记日志不影响本次响应。
func (a *API) pushState() {
	if a.primary == nil {
		return
	}
	if err := a.primary.PushState(); err != nil {
		logutil.Log.WithError(err).Warn("push authoritative state failed")
	}
}
