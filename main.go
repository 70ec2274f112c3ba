package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectcam/internal/camera"
	"connectcam/internal/config"
	"connectcam/internal/logging"
	"connectcam/internal/server"
	"connectcam/internal/supervisor"
	"connectcam/internal/uploader"
)

// stopTimeout はシャットダウン時に全Workerの終了を待つ猶予時間
const stopTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "", "設定ファイルのパス（省略時は実行ファイルと同じディレクトリのconfig.toml）")
	verbose := flag.Bool("verbose", false, "デバッグログを出力する")
	oneshot := flag.Bool("oneshot", false, "各カメラで1回だけキャプチャとアップロードを行って終了する")
	flag.Parse()

	logging.Init(*verbose)

	// 設定を読み込む
	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("設定の読み込みに失敗しました", "error", err)
		os.Exit(1)
	}

	// キャプチャとアップロードの部品を組み立てる
	discovery := camera.NewLinuxDiscovery()
	opener := camera.NewV4L2DeviceOpener(discovery)
	up := uploader.New()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *oneshot {
		os.Exit(runOneshot(ctx, cfg, opener, up))
	}

	sup := supervisor.New(cfg, opener, up)
	if err := sup.Start(ctx); err != nil {
		slog.Error("Supervisorの開始に失敗しました", "error", err)
		os.Exit(1)
	}

	// 状態確認サーバーは設定で有効な場合のみ起動する
	serverErrCh := make(chan error, 1)
	if cfg.Server.Enabled {
		srv := server.New(cfg, sup)
		go func() {
			serverErrCh <- srv.Start(ctx)
		}()
	}

	// シグナルかサーバーの異常終了を待つ
	select {
	case <-ctx.Done():
		slog.Info("シグナルを受信しました。シャットダウンします")
	case err := <-serverErrCh:
		if err != nil {
			slog.Error("HTTPサーバーが異常終了しました", "error", err)
		}
	}
	stop()

	// 全Workerの終了とデバイス解放を待つ
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := sup.Stop(stopCtx); err != nil {
		slog.Error("シャットダウンが完了しませんでした", "error", err)
		os.Exit(1)
	}
}

// runOneshot は各カメラで1サイクルだけ実行し、終了コードを返す
// 設定やデバイスの疎通確認に使う。1台でも失敗すれば非ゼロを返す
func runOneshot(ctx context.Context, cfg *config.Config, opener camera.DeviceOpener, up uploader.Uploader) int {
	exitCode := 0

	for _, cam := range cfg.Cameras {
		if err := oneshotCycle(ctx, cam, opener, up); err != nil {
			slog.Error("カメラの疎通確認に失敗しました", "camera", cam.Name, "error", err)
			exitCode = 1
			continue
		}
		slog.Info("カメラの疎通確認に成功しました", "camera", cam.Name)
	}

	return exitCode
}

// oneshotCycle は1台のカメラでオープン→キャプチャ→アップロードを1回行う
func oneshotCycle(ctx context.Context, cam config.CameraConfig, opener camera.DeviceOpener, up uploader.Uploader) error {
	dev, err := opener.OpenDevice(ctx, cam)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			slog.Warn("デバイスのクローズに失敗しました", "camera", cam.Name, "error", err)
		}
	}()

	frame, err := dev.Capture(ctx)
	if err != nil {
		return err
	}

	return up.Upload(ctx, frame, cam)
}
