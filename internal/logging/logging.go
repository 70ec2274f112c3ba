// Package logging はプロセス全体のログ出力を設定します。
//
// slogのテキストハンドラをラップし、-verboseフラグに応じて
// ログレベルを切り替えます。
package logging

import (
	"log/slog"
	"os"
	"sync"
)

var (
	logger *slog.Logger
	once   sync.Once
)

// Init はグローバルロガーを初期化する
// verboseがtrueの場合はデバッグレベルまで出力する
func Init(verbose bool) {
	once.Do(func() {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}

		opts := &slog.HandlerOptions{
			Level: level,
		}

		logger = slog.New(slog.NewTextHandler(os.Stderr, opts))
		slog.SetDefault(logger)
	})
}

// L はグローバルロガーを返す
func L() *slog.Logger {
	if logger == nil {
		Init(false)
	}
	return logger
}

// With は指定された属性を持つロガーを返す
func With(args ...any) *slog.Logger {
	return L().With(args...)
}
