package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const dateFormat = "2006-01-02"

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		respondError(c, http.StatusBadRequest, message)
		return false
	}
	return true
}

// parseDateQuery 解析可选的日期参数（2006-01-02），缺省回退到 fallback。
func parseDateQuery(raw string, loc *time.Location, fallback time.Time) (time.Time, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback, true
	}

	parsed, err := time.ParseInLocation(dateFormat, trimmed, loc)
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}
