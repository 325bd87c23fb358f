package handler

import (
	"errors"
	"net/http"

	"agri-ai-go/internal/middleware"
	"agri-ai-go/internal/model"
	"agri-ai-go/internal/repository"
	"agri-ai-go/internal/service"

	"github.com/gin-gonic/gin"
)

// CommandHandler 负责跨视图命令的投递与消费。
type CommandHandler struct {
	commands service.CommandService
}

// NewCommandHandler 创建一个新的 CommandHandler 实例。
func NewCommandHandler(commands service.CommandService) *CommandHandler {
	return &CommandHandler{commands: commands}
}

// Push 投递一条命令，标签与负载不匹配时返回 400，文章不存在时返回 404
func (h *CommandHandler) Push(c *gin.Context) {
	var cmd model.Command
	if err := c.ShouldBindJSON(&cmd); err != nil {
		badRequest(c, "无效的命令: "+err.Error())
		return
	}
	if err := h.commands.Push(c.Request.Context(), middleware.DeviceID(c), cmd); err != nil {
		respondError(c, err)
		return
	}
	respond(c, http.StatusAccepted, "accepted", nil)
}

// Next 取出并移除队首命令，队列为空时返回 204
func (h *CommandHandler) Next(c *gin.Context) {
	res, err := h.commands.Consume(c.Request.Context(), middleware.DeviceID(c))
	if errors.Is(err, repository.ErrNoCommand) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	ok(c, res)
}
