package camera

import (
	"context"
	"errors"

	"connectcam/internal/config"
)

// デバイスオープン時のエラー分類
var (
	// ErrDeviceNotFound は設定された名前に一致するデバイスが存在しないことを表す
	ErrDeviceNotFound = errors.New("デバイスが見つかりません")
	// ErrDeviceBusy はデバイスが他プロセスに使用されていることを表す
	ErrDeviceBusy = errors.New("デバイスが使用中です")
	// ErrUnsupportedFormat はデバイスがMotion-JPEGを出力できないことを表す
	ErrUnsupportedFormat = errors.New("デバイスがMotion-JPEGに対応していません")
)

// キャプチャ時のエラー分類
var (
	// ErrCaptureTimeout は制限時間内にフレームが得られなかったことを表す
	ErrCaptureTimeout = errors.New("フレーム取得がタイムアウトしました")
	// ErrDeviceDisconnected はデバイスが切断されたことを表す
	ErrDeviceDisconnected = errors.New("デバイスが切断されました")
)

// DeviceInfo はキャプチャノードの情報を表す
type DeviceInfo struct {
	Device string // デバイスパス（例: /dev/video0）
	Name   string // キャプチャサブシステムが報告するカメラ名
	Width  int    // ネゴシエートされた画像幅
	Height int    // ネゴシエートされた画像高さ
}

// Device は1台のカメラのキャプチャリソースを表す
// 所有するWorker以外から使用してはならない
type Device interface {
	// Capture は圧縮済みの1フレームを取得する
	// フレームが得られるかタイムアウトするまで呼び出し元をブロックする
	Capture(ctx context.Context) ([]byte, error)

	// Close はキャプチャリソースを解放する。冪等
	Close() error

	// Info はデバイス情報を返す
	Info() DeviceInfo
}

// Discovery はカメラデバイスの検出機能を提供する
type Discovery interface {
	// ResolveDevice はカメラ名からデバイスパスを解決する
	ResolveDevice(ctx context.Context, name string) (string, error)

	// ListDevices はシステム内のキャプチャノード一覧を取得する
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
}

// DeviceOpener はカメラ設定からDeviceを作成する
// Workerは失敗のたびにこれを通じてデバイスを開き直す
type DeviceOpener interface {
	OpenDevice(ctx context.Context, cam config.CameraConfig) (Device, error)
}
