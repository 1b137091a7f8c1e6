package di

import (
	"github.com/aihub/ragbot/internal/logger"
	"go.uber.org/dig"
	"go.uber.org/zap"
)

// Container 是依赖注入容器的全局实例
var Container *dig.Container

// InitContainer 初始化依赖注入容器
func InitContainer() *dig.Container {
	Container = dig.New()
	return Container
}

// GetContainer 获取依赖注入容器实例
func GetContainer() *dig.Container {
	return Container
}

// Invoke 封装dig.Invoke，提供更友好的接口
func Invoke(function interface{}, opts ...dig.InvokeOption) error {
	return Container.Invoke(function, opts...)
}

// Provide 封装dig.Provide，提供更友好的接口
func Provide(constructor interface{}, opts ...dig.ProvideOption) error {
	return Container.Provide(constructor, opts...)
}

// Lifecycle 收集需要在退出时释放的资源
type Lifecycle struct {
	cleanupTasks []func() error
}

// NewLifecycle 创建空的资源清理列表
func NewLifecycle() *Lifecycle {
	return &Lifecycle{}
}

// OnStop 注册清理函数，按注册的逆序执行
func (l *Lifecycle) OnStop(task func() error) {
	l.cleanupTasks = append(l.cleanupTasks, task)
}

// Stop 执行全部清理函数，单个失败不影响其他
func (l *Lifecycle) Stop() {
	for i := len(l.cleanupTasks) - 1; i >= 0; i-- {
		if err := l.cleanupTasks[i](); err != nil {
			logger.Warn("cleanup error", zap.Error(err))
		}
	}
	l.cleanupTasks = nil
}
