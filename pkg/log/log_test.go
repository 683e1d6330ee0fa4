package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// 未调用 Init 的包（比如各个单元测试包）打日志时必须安全降级，不能 panic。
func TestLogSafeBeforeInit(t *testing.T) {
	assert.NotPanics(t, func() {
		Info("服务启动")
		Infof("用户 %d 扣除 %d tokens", 1, 20)
		Infow("请求完成", "path", "/api/ai/chat", "status", 200)
		Warnf("解析失败: %v", "unexpected token")
		Error("数据库错误", assert.AnError)
		Errorf("查询失败: %v", assert.AnError)
		Sync()
	})
}

func TestInitReplacesDefaultLogger(t *testing.T) {
	before := sugar
	Init("debug", "console", "")
	assert.NotSame(t, before, sugar)
	assert.NotPanics(t, func() {
		Infof("初始化完成, level=%s", "debug")
	})
}
