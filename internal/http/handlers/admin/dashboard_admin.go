package admin

import (
	"time"

	"github.com/member-next/internal/cache"
	"github.com/member-next/internal/http/response"
	"github.com/member-next/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	dashboardOverviewCacheKey = "dashboard:overview"
	dashboardOverviewCacheTTL = 30 * time.Second
)

// GetDashboardOverview 获取后台仪表盘总览
func (h *Handler) GetDashboardOverview(c *gin.Context) {
	var cached service.DashboardOverview
	if hit, err := cache.GetJSON(c.Request.Context(), dashboardOverviewCacheKey, &cached); err == nil && hit {
		response.Success(c, cached)
		return
	}

	data, err := h.DashboardService.GetOverview()
	if err != nil {
		respondError(c, response.CodeInternal, "dashboard fetch failed", err)
		return
	}

	_ = cache.SetJSON(c.Request.Context(), dashboardOverviewCacheKey, data, dashboardOverviewCacheTTL)
	response.Success(c, data)
}
