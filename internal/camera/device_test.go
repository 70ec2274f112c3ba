package camera

import (
	"context"
	"errors"
	"os"
	"syscall"
	"testing"

	"github.com/blackjack/webcam"
)

// discrete は離散フレームサイズ（Min==Max）を作るテストヘルパー
func discrete(w, h uint32) webcam.FrameSize {
	return webcam.FrameSize{
		MinWidth: w, MaxWidth: w,
		MinHeight: h, MaxHeight: h,
	}
}

func TestChooseFrameSize_Max(t *testing.T) {
	sizes := []webcam.FrameSize{
		discrete(640, 480),
		discrete(1920, 1080),
		discrete(1280, 720),
	}

	// 解像度指定なしの場合は最大ピクセル数のサイズを選ぶ
	w, h, matched := chooseFrameSize(sizes, "")
	if w != 1920 || h != 1080 {
		t.Errorf("Expected 1920x1080, got %dx%d", w, h)
	}
	if matched {
		t.Error("Expected matched to be false without a configured resolution")
	}
}

func TestChooseFrameSize_Configured(t *testing.T) {
	sizes := []webcam.FrameSize{
		discrete(640, 480),
		discrete(1280, 720),
		discrete(1920, 1080),
	}

	// 対応している解像度指定はそのまま使われる
	w, h, matched := chooseFrameSize(sizes, "1280x720")
	if w != 1280 || h != 720 {
		t.Errorf("Expected 1280x720, got %dx%d", w, h)
	}
	if !matched {
		t.Error("Expected matched to be true")
	}
}

func TestChooseFrameSize_UnsupportedFallsBackToMax(t *testing.T) {
	sizes := []webcam.FrameSize{
		discrete(640, 480),
		discrete(1280, 720),
	}

	// 対応していない解像度指定は最大解像度にフォールバックする
	w, h, matched := chooseFrameSize(sizes, "3840x2160")
	if w != 1280 || h != 720 {
		t.Errorf("Expected fallback 1280x720, got %dx%d", w, h)
	}
	if matched {
		t.Error("Expected matched to be false for unsupported resolution")
	}
}

func TestClassifyOpenError(t *testing.T) {
	// 存在しないデバイス
	err := classifyOpenError("/dev/video9", &os.PathError{
		Op: "open", Path: "/dev/video9", Err: syscall.ENOENT,
	})
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("Expected ErrDeviceNotFound, got %v", err)
	}

	// 使用中のデバイス
	err = classifyOpenError("/dev/video0", &os.PathError{
		Op: "open", Path: "/dev/video0", Err: syscall.EBUSY,
	})
	if !errors.Is(err, ErrDeviceBusy) {
		t.Errorf("Expected ErrDeviceBusy, got %v", err)
	}

	// その他のエラーは分類されずラップのみ
	err = classifyOpenError("/dev/video0", syscall.EACCES)
	if errors.Is(err, ErrDeviceNotFound) || errors.Is(err, ErrDeviceBusy) {
		t.Errorf("Expected unclassified error, got %v", err)
	}
}

func TestMockDevice_CloseIdempotent(t *testing.T) {
	dev := NewMockDevice("テストカメラ")

	if err := dev.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := dev.Close(); err != nil {
		t.Fatalf("Second close failed: %v", err)
	}

	if !dev.Closed() {
		t.Error("Expected device to be closed")
	}

	// クローズ後のキャプチャは切断エラーになる
	_, err := dev.Capture(context.Background())
	if !errors.Is(err, ErrDeviceDisconnected) {
		t.Errorf("Expected ErrDeviceDisconnected after close, got %v", err)
	}
}
