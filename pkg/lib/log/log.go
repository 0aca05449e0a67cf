// Package log 提供 commstack 对外的日志接口
//
// 基于 Go 标准库 log/slog 封装。组件日志在每次调用时取 slog.Default()，
// 支持运行时切换输出目标。
//
// SPMD 作业中每个进程都执行同样的代码，同一条日志会被打印 N 次。
// ForRank 给日志附加进程号，RootOnly 让日志只在 0 号进程输出。
package log

import (
	"context"
	"io"
	"log/slog"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// SetDefault 设置默认 logger
func SetDefault(l *slog.Logger) {
	slog.SetDefault(l)
}

// SetOutputWithLevel 同时设置日志输出目标和级别
func SetOutputWithLevel(w io.Writer, level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
// 使用方式：
//
//	var logger = log.Logger("registry")
//	logger.ForRank(rank).RootOnly().Info("communicator added", "key", key)
type LazyLogger struct {
	component string
	rank      int
	hasRank   bool
	rootOnly  bool
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

// ForRank 返回附带进程号的副本
func (l *LazyLogger) ForRank(rank int) *LazyLogger {
	c := *l
	c.rank = rank
	c.hasRank = true
	return &c
}

// RootOnly 返回只在 0 号进程输出的副本
//
// 未设置进程号时不做过滤。
func (l *LazyLogger) RootOnly() *LazyLogger {
	c := *l
	c.rootOnly = true
	return &c
}

func (l *LazyLogger) silenced() bool {
	return l.rootOnly && l.hasRank && l.rank != 0
}

func (l *LazyLogger) base() *slog.Logger {
	lg := slog.Default().With("component", l.component)
	if l.hasRank {
		lg = lg.With("rank", l.rank)
	}
	return lg
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) {
	l.log(context.Background(), LevelDebug, msg, args...)
}

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) {
	l.log(context.Background(), LevelInfo, msg, args...)
}

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) {
	l.log(context.Background(), LevelWarn, msg, args...)
}

// Error 输出 Error 级别日志
//
// Error 不受 RootOnly 过滤：致命错误可能只发生在某一个进程上。
func (l *LazyLogger) Error(msg string, args ...any) {
	l.base().Error(msg, args...)
}

// InfoContext 带 context 的 Info 日志
func (l *LazyLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.log(ctx, LevelInfo, msg, args...)
}

func (l *LazyLogger) log(ctx context.Context, level slog.Level, msg string, args ...any) {
	if l.silenced() {
		return
	}
	l.base().Log(ctx, level, msg, args...)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.base().With(args...)
}
