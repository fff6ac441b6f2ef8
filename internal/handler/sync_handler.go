package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/lschandler81/Push365-sub000/internal/db"
	"github.com/lschandler81/Push365-sub000/internal/peersync"
)

const maxSyncMessageBytes = 1 << 20

// DeviceAuthRequired 校验副设备的名称与令牌请求头。
func DeviceAuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.GetHeader(peersync.HeaderDeviceName)
		token := c.GetHeader(peersync.HeaderDeviceToken)
		if name == "" || token == "" {
			respondError(c, http.StatusUnauthorized, "缺少设备凭据")
			c.Abort()
			return
		}

		device, err := db.VerifyDeviceToken(name, token)
		if err != nil {
			respondError(c, http.StatusUnauthorized, "设备凭据无效")
			c.Abort()
			return
		}

		c.Set("device", device)
		c.Next()
	}
}

// HandleSyncMessage 接收副设备的同步信封，交给主角色处理并原样返回应答。
// 畸形消息没有应答，返回 204。
func (a *API) HandleSyncMessage(c *gin.Context) {
	if a.primary == nil {
		respondError(c, http.StatusServiceUnavailable, "同步未启用")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSyncMessageBytes))
	if err != nil {
		respondError(c, http.StatusBadRequest, "读取消息失败")
		return
	}

	reply := a.primary.HandleMessage(body)
	if reply == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.Data(http.StatusOK, "application/json", reply)
}

// GetSyncSnapshot 返回当前权威快照信封，供副设备重连后拉取收敛。
// 纯读取，不递增快照序号。
func (a *API) GetSyncSnapshot(c *gin.Context) {
	if a.primary == nil {
		respondError(c, http.StatusServiceUnavailable, "同步未启用")
		return
	}

	state, err := a.primary.CurrentState()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "生成快照失败")
		return
	}

	data := peersync.EncodeEnvelope(peersync.KindSnapshot, state)
	if data == nil {
		respondError(c, http.StatusInternalServerError, "生成快照失败")
		return
	}

	c.Data(http.StatusOK, "application/json", data)
}
