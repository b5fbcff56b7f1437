// internal/api/websocket.go
package api

import (
	"net/http"
	"time"

	"github.com/Plotforge/MysteryWeaver/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// WebSocket 升级器配置
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 在生产环境中应该进行更严格的检查
		return true
	},
}

const (
	wsWriteTimeout = 10 * time.Second
	wsPingInterval = 30 * time.Second
)

// RunProgressWebSocket 通过 WebSocket 推送运行进度更新
// 运行完成或失败后发送最后一条更新并关闭连接
func (h *Handler) RunProgressWebSocket(c *gin.Context) {
	runID := c.Param("id")

	tracker, exists := h.ProgressService.GetTracker(runID)
	if !exists {
		h.Response.NotFound(c, "运行不存在或已清理")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Error("websocket upgrade failed", map[string]interface{}{
			"run_id": runID,
			"err":    err.Error(),
		})
		return
	}
	defer conn.Close()

	updateChan := tracker.Subscribe()
	defer tracker.Unsubscribe(updateChan)

	// 读循环只用于感知客户端断开
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-clientGone:
			return
		case update, ok := <-updateChan:
			if !ok {
				return
			}

			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteJSON(update); err != nil {
				return
			}

			// 运行结束后关闭连接
			if update.Status == "completed" || update.Status == "failed" {
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"))
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
