package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lschandler81/Push365-sub000/internal/service"
)

type logPayload struct {
	Amount int    `json:"amount"`
	Date   string `json:"date"`
	Note   string `json:"note"`
}

type undoPayload struct {
	Date string `json:"date"`
}

type settingsUpdatePayload struct {
	Mode         string `json:"mode"`
	ReminderHour *int   `json:"reminder_hour"`
	DisplayUnit  string `json:"display_unit"`
}

// GetToday 返回今日记录（缺失时创建）。
func (a *API) GetToday(c *gin.Context) {
	date, ok := parseDateQuery(c.Query("date"), a.progress.Location(), a.now())
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的日期格式")
		return
	}

	record, err := a.progress.GetOrCreateDayRecord(date)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取今日进度失败")
		return
	}

	c.JSON(http.StatusOK, dayRecordPayload(record))
}

// CreateLog 追加一次打卡并向副设备推送权威快照。
func (a *API) CreateLog(c *gin.Context) {
	var payload logPayload
	if !bindJSON(c, &payload, "无效的打卡数据") {
		return
	}

	date, ok := parseDateQuery(payload.Date, a.progress.Location(), a.now())
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的日期格式")
		return
	}

	record, err := a.progress.AddLog(payload.Amount, date, "manual", payload.Note)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "打卡失败")
		return
	}

	a.pushState()
	c.JSON(http.StatusOK, dayRecordPayload(record))
}

// UndoLog 撤销最近一次打卡并向副设备推送权威快照。
func (a *API) UndoLog(c *gin.Context) {
	var payload undoPayload
	if c.Request.ContentLength > 0 && !bindJSON(c, &payload, "无效的撤销数据") {
		return
	}

	date, ok := parseDateQuery(payload.Date, a.progress.Location(), a.now())
	if !ok {
		respondError(c, http.StatusBadRequest, "无效的日期格式")
		return
	}

	record, err := a.progress.UndoLastLog(date)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "撤销失败")
		return
	}

	a.pushState()
	c.JSON(http.StatusOK, dayRecordPayload(record))
}

// GetStats 返回合计与连胜统计，设置值与记录推导值并列便于校验。
func (a *API) GetStats(c *gin.Context) {
	now := a.now()

	lifetime, err := a.analytics.LifetimeTotal()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "统计失败")
		return
	}

	ytd, err := a.analytics.YearToDateTotal(now)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "统计失败")
		return
	}

	currentFromRecords, err := a.analytics.CurrentStreakFromRecords(now)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "统计失败")
		return
	}

	longestFromRecords, err := a.analytics.LongestStreakFromRecords()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "统计失败")
		return
	}

	settings, err := a.progress.GetOrCreateSettings()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "统计失败")
		return
	}

	body := gin.H{
		"lifetime_total":              lifetime,
		"year_to_date_total":          ytd,
		"current_streak":              settings.CurrentStreak,
		"longest_streak":              settings.LongestStreak,
		"current_streak_from_records": currentFromRecords,
		"longest_streak_from_records": longestFromRecords,
	}

	// 可选的 from/to 区间汇总
	if c.Query("from") != "" || c.Query("to") != "" {
		loc := a.progress.Location()
		from, okFrom := parseDateQuery(c.Query("from"), loc, now)
		to, okTo := parseDateQuery(c.Query("to"), loc, now)
		if !okFrom || !okTo {
			respondError(c, http.StatusBadRequest, "无效的日期格式")
			return
		}

		summary, err := a.analytics.RangeSummary(from, to)
		if err != nil {
			respondError(c, http.StatusBadRequest, "无效的统计区间")
			return
		}
		body["range"] = gin.H{
			"start":           summary.RangeStart.Format(dateFormat),
			"end":             summary.RangeEnd.Format(dateFormat),
			"days_logged":     summary.DaysLogged,
			"days_completed":  summary.DaysCompleted,
			"total_completed": summary.TotalCompleted,
		}
	}

	c.JSON(http.StatusOK, body)
}

// GetSettings 返回计划设置。
func (a *API) GetSettings(c *gin.Context) {
	settings, err := a.progress.GetOrCreateSettings()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "获取设置失败")
		return
	}

	c.JSON(http.StatusOK, settingsPayload(settings))
}

// UpdateSettings 更新模式与透传偏好。
func (a *API) UpdateSettings(c *gin.Context) {
	var payload settingsUpdatePayload
	if !bindJSON(c, &payload, "无效的设置数据") {
		return
	}

	settings, err := a.progress.UpdateSettings(service.SettingsInput{
		Mode:         payload.Mode,
		ReminderHour: payload.ReminderHour,
		DisplayUnit:  payload.DisplayUnit,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidMode) {
			respondError(c, http.StatusBadRequest, "不支持的进度模式")
			return
		}
		respondError(c, http.StatusInternalServerError, "更新设置失败")
		return
	}

	c.JSON(http.StatusOK, settingsPayload(settings))
}

// ResetProgram 清空全部记录并恢复默认设置。
func (a *API) ResetProgram(c *gin.Context) {
	if err := a.progress.Reset(); err != nil {
		respondError(c, http.StatusInternalServerError, "重置失败")
		return
	}

	a.pushState()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}
