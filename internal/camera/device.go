package camera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/blackjack/webcam"

	"connectcam/internal/config"
)

// pixelFormatMJPEG はMotion-JPEGのV4L2 fourcc（'MJPG'）
const pixelFormatMJPEG = webcam.PixelFormat(0x47504A4D)

// captureTimeout はフレーム取得を待つ最大時間
const captureTimeout = 10 * time.Second

// waitSlice はシャットダウンシグナルを確認する間隔（秒）
// WaitForFrameを短く区切り、各区切りでコンテキストを確認する
const waitSlice = 1

// staleDrainLimit は取得前に破棄する滞留フレームの上限
// バッファは1つしか確保しないため、実際に滞留するのは高々1フレーム
const staleDrainLimit = 4

// V4L2Device はblackjack/webcamによるDevice実装
type V4L2Device struct {
	cam  *webcam.Webcam
	info DeviceInfo

	mu     sync.Mutex
	closed bool
}

// V4L2DeviceOpener は実際のV4L2デバイスを開くDeviceOpener実装
type V4L2DeviceOpener struct {
	discovery Discovery
}

// NewV4L2DeviceOpener は新しいV4L2DeviceOpenerを作成する
func NewV4L2DeviceOpener(discovery Discovery) DeviceOpener {
	return &V4L2DeviceOpener{discovery: discovery}
}

// OpenDevice はカメラ設定からデバイスを開き、Motion-JPEGをネゴシエートする
// Motion-JPEGを出力できないデバイスはここで拒否される（暗黙のフォーマット劣化はしない）
func (o *V4L2DeviceOpener) OpenDevice(ctx context.Context, cam config.CameraConfig) (Device, error) {
	path := cam.Device
	if path == "" {
		resolved, err := o.discovery.ResolveDevice(ctx, cam.Name)
		if err != nil {
			return nil, err
		}
		path = resolved
	}

	vd, err := webcam.Open(path)
	if err != nil {
		return nil, classifyOpenError(path, err)
	}

	// Motion-JPEG対応の確認
	formats := vd.GetSupportedFormats()
	if _, ok := formats[pixelFormatMJPEG]; !ok {
		_ = vd.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	// 解像度の選択（設定値が対応されていれば設定値、なければ最大）
	width, height, matched := chooseFrameSize(vd.GetSupportedFrameSizes(pixelFormatMJPEG), cam.Resolution)
	if cam.Resolution != "" && !matched {
		slog.Warn("指定された解像度に対応していないため最大解像度を使用します",
			"camera", cam.Name, "resolution", cam.Resolution,
			"fallback", fmt.Sprintf("%dx%d", width, height))
	}

	format, w, h, err := vd.SetImageFormat(pixelFormatMJPEG, width, height)
	if err != nil {
		_ = vd.Close()
		return nil, fmt.Errorf("%w: フォーマット設定に失敗: %v", ErrUnsupportedFormat, err)
	}
	if format != pixelFormatMJPEG {
		_ = vd.Close()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}

	// バッファを1つだけ確保する。保持するフレームを最新の1枚に限定し、
	// 復帰したデバイスが古いフレームを返すのを防ぐ
	if err := vd.SetBufferCount(1); err != nil {
		_ = vd.Close()
		return nil, fmt.Errorf("キャプチャバッファの設定に失敗: %w", err)
	}

	if err := vd.StartStreaming(); err != nil {
		_ = vd.Close()
		return nil, fmt.Errorf("ストリーミングの開始に失敗 (%s): %w", path, err)
	}

	slog.Debug("デバイスを開きました",
		"camera", cam.Name, "device", path,
		"resolution", fmt.Sprintf("%dx%d", w, h))

	return &V4L2Device{
		cam: vd,
		info: DeviceInfo{
			Device: path,
			Name:   cam.Name,
			Width:  int(w),
			Height: int(h),
		},
	}, nil
}

// Capture は圧縮済みの1フレームを取得する
func (d *V4L2Device) Capture(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil, fmt.Errorf("%w: %s", ErrDeviceDisconnected, d.info.Device)
	}

	// 滞留フレームを破棄してから新しいフレームを待つ
	d.drainStale()

	deadline := time.Now().Add(captureTimeout)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		err := d.cam.WaitForFrame(waitSlice)
		switch err.(type) {
		case nil:
		case *webcam.Timeout:
			if time.Now().After(deadline) {
				return nil, fmt.Errorf("%w: %s", ErrCaptureTimeout, d.info.Name)
			}
			continue
		default:
			return nil, fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
		}

		frame, err := d.cam.ReadFrame()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDeviceDisconnected, err)
		}
		if len(frame) == 0 {
			continue
		}

		// ドライバのバッファは次の取得で再利用されるためコピーを返す
		buf := make([]byte, len(frame))
		copy(buf, frame)
		return buf, nil
	}
}

// drainStale はデバイスに滞留している取得済みフレームを破棄する
func (d *V4L2Device) drainStale() {
	for i := 0; i < staleDrainLimit; i++ {
		if err := d.cam.WaitForFrame(0); err != nil {
			return // 滞留フレームなし
		}
		if _, err := d.cam.ReadFrame(); err != nil {
			return
		}
	}
}

// Close はキャプチャリソースを解放する。冪等
func (d *V4L2Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true

	// StopStreamingの失敗は無視してクローズまで進める
	// （切断済みデバイスではどちらも失敗するため）
	_ = d.cam.StopStreaming()
	if err := d.cam.Close(); err != nil {
		return fmt.Errorf("デバイスのクローズに失敗 (%s): %w", d.info.Device, err)
	}

	return nil
}

// Info はデバイス情報を返す
func (d *V4L2Device) Info() DeviceInfo {
	return d.info
}

// classifyOpenError はオープン失敗をエラー分類に対応付ける
func classifyOpenError(path string, err error) error {
	if os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, path)
	}

	var errno syscall.Errno
	if errors.As(err, &errno) && errno == syscall.EBUSY {
		return fmt.Errorf("%w: %s", ErrDeviceBusy, path)
	}

	return fmt.Errorf("デバイスのオープンに失敗 (%s): %w", path, err)
}

// chooseFrameSize は対応サイズ一覧から使用する解像度を決める
// resolutionが対応されていればそれを、なければ最大ピクセル数のサイズを返す
func chooseFrameSize(sizes []webcam.FrameSize, resolution string) (width, height uint32, matched bool) {
	var confW, confH int
	if resolution != "" {
		confW, confH, _ = config.ParseResolution(resolution)
	}

	var maxPixels uint32
	for _, s := range sizes {
		// 離散サイズはMin==Max。ステップ指定のデバイスも最大値を候補にする
		w, h := s.MaxWidth, s.MaxHeight

		if confW > 0 && fitsFrameSize(s, uint32(confW), uint32(confH)) {
			return uint32(confW), uint32(confH), true
		}

		if w*h >= maxPixels {
			width, height = w, h
			maxPixels = w * h
		}
	}

	return width, height, false
}

// fitsFrameSize は指定解像度がFrameSizeの範囲に収まるかを判定する
func fitsFrameSize(s webcam.FrameSize, w, h uint32) bool {
	return w >= s.MinWidth && w <= s.MaxWidth && h >= s.MinHeight && h <= s.MaxHeight
}
