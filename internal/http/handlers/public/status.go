package public

import (
	"errors"
	"strings"

	handlershared "github.com/member-next/internal/http/handlers/shared"
	"github.com/member-next/internal/http/response"
	"github.com/member-next/internal/service"

	"github.com/gin-gonic/gin"
)

// GetMemberStatus 凭状态令牌查询会员状态。
// 令牌取自 Authorization Bearer 头或 token 查询参数。
func (h *Handler) GetMemberStatus(c *gin.Context) {
	token := extractStatusToken(c)
	if token == "" {
		handlershared.RespondError(c, response.CodeUnauthorized, "status token required", nil)
		return
	}

	status, err := h.StatusService.Resolve(token)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			handlershared.RespondError(c, response.CodeUnauthorized, "status token invalid", nil)
			return
		}
		handlershared.RespondError(c, response.CodeInternal, "status fetch failed", err)
		return
	}
	response.Success(c, status)
}

func extractStatusToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return header
	}
	return strings.TrimSpace(c.Query("token"))
}
