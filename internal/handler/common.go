// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"chai-builder-go/internal/config"
	"chai-builder-go/internal/model"

	"github.com/gin-gonic/gin"
)

// currentUser 从上下文取出认证中间件注入的用户。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, exists := c.Get("user")
	if !exists {
		return nil, false
	}
	user, ok := v.(*model.User)
	return user, ok
}

// errDetail 只在 debug 模式下向客户端透出底层错误信息。
func errDetail(err error) string {
	if config.Conf.Server.Mode == "debug" {
		return err.Error()
	}
	return ""
}
