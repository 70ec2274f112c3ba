package supervisor

import (
	"context"
	"net/http"
	"testing"
	"time"

	"connectcam/internal/camera"
	"connectcam/internal/config"
	"connectcam/internal/uploader"
)

// testInterval はテスト用の短いサイクル間隔
const testInterval = 10 * time.Millisecond

// testCameraConfig はテスト用のカメラ設定を作成する
func testCameraConfig(name string) config.CameraConfig {
	return config.CameraConfig{
		Name:        name,
		Token:       "token-" + name,
		Fingerprint: config.DeriveFingerprint(name),
		URL:         "http://example.invalid/c/snapshot",
	}
}

// waitUntil は条件が成立するまで待つ（最大1秒）
func waitUntil(t *testing.T, desc string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(1 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("条件が成立しませんでした: %s", desc)
}

func TestWorker_SuccessfulCycles(t *testing.T) {
	opener := camera.NewMockDeviceOpener()
	up := uploader.NewMock()

	w := newWorker("test-worker", testCameraConfig("カメラA"), testInterval, opener, up)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(doneCh)
	}()

	// 数サイクル分のアップロードが行われる
	waitUntil(t, "3回以上のアップロード", func() bool {
		return up.CountFor("カメラA") >= 3
	})

	cancel()
	<-doneCh

	// デバイスは最初のサイクルで一度だけ開かれる
	if got := opener.OpenCount("カメラA"); got != 1 {
		t.Errorf("Expected 1 open, got %d", got)
	}

	// 送信されたフレームの内容確認
	for _, r := range up.Records() {
		if r.FrameSize == 0 {
			t.Error("Expected non-empty frame to be uploaded")
		}
	}

	// 終了後はデバイスが解放されている
	for _, dev := range opener.OpenedDevices() {
		if !dev.Closed() {
			t.Error("Expected device to be closed after Run returned")
		}
	}
}

func TestWorker_AtMostOneInFlight(t *testing.T) {
	// 前のサイクルのアップロードが完了するまで次のキャプチャは始まらない
	opener := camera.NewMockDeviceOpener()
	up := uploader.NewMock()
	blockCh := make(chan struct{})
	up.SetBlocking(blockCh)

	w := newWorker("test-worker", testCameraConfig("カメラA"), testInterval, opener, up)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(doneCh)
	}()

	// 最初のサイクルがアップロードでブロックされるのを待つ
	waitUntil(t, "アップロード段階への到達", func() bool {
		return w.Status().Phase == PhaseUploading
	})

	// ブロック中に何度も間隔が経過してもキャプチャは1回のまま
	time.Sleep(10 * testInterval)

	devices := opener.OpenedDevices()
	if len(devices) != 1 {
		t.Fatalf("Expected 1 opened device, got %d", len(devices))
	}
	if got := devices[0].CaptureCount(); got != 1 {
		t.Errorf("Expected exactly 1 capture while upload is in flight, got %d", got)
	}

	// ブロックを解除すると次のサイクルが進む
	close(blockCh)
	waitUntil(t, "2回目のキャプチャ", func() bool {
		return devices[0].CaptureCount() >= 2
	})

	cancel()
	<-doneCh
}

func TestWorker_CaptureFailureSkipsUpload(t *testing.T) {
	// キャプチャに失敗したサイクルはアップロードせずに破棄される
	opener := camera.NewMockDeviceOpener()
	up := uploader.NewMock()

	w := newWorker("test-worker", testCameraConfig("カメラA"), testInterval, opener, up)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(doneCh)
	}()

	// 最初のサイクルでデバイスが開かれたらキャプチャ失敗を仕込む
	waitUntil(t, "デバイスのオープン", func() bool {
		return len(opener.OpenedDevices()) == 1
	})
	dev := opener.OpenedDevices()[0]
	before := up.CountFor("カメラA")
	dev.SetCaptureError(camera.ErrCaptureTimeout)

	// 失敗サイクルが何度か実行される
	waitUntil(t, "失敗サイクルの実行", func() bool {
		return dev.CaptureCount() >= 3 && w.Status().Phase == PhaseErrored
	})

	after := up.CountFor("カメラA")
	if after > before+1 {
		// 仕込んだ直後に進行中だった1サイクル分だけは許容する
		t.Errorf("Expected no uploads after capture failures, got %d new", after-before)
	}

	cancel()
	<-doneCh
}

func TestWorker_DisconnectReopensDevice(t *testing.T) {
	// デバイス切断時はハンドルを解放し、次サイクルで開き直す
	opener := camera.NewMockDeviceOpener()
	up := uploader.NewMock()

	w := newWorker("test-worker", testCameraConfig("カメラA"), testInterval, opener, up)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(doneCh)
	}()

	waitUntil(t, "デバイスのオープン", func() bool {
		return len(opener.OpenedDevices()) == 1
	})
	first := opener.OpenedDevices()[0]
	first.SetCaptureError(camera.ErrDeviceDisconnected)

	// 切断されたハンドルは解放され、新しいハンドルが開かれる
	waitUntil(t, "切断ハンドルの解放", func() bool {
		return first.Closed()
	})
	waitUntil(t, "デバイスの再オープン", func() bool {
		return opener.OpenCount("カメラA") >= 2
	})

	cancel()
	<-doneCh
}

func TestWorker_PermanentThenSuccess(t *testing.T) {
	// 401（PermanentFailure）の次のサイクルで200が返るシナリオ
	// フレームは破棄され、状態の破損なく次サイクルが成功する
	opener := camera.NewMockDeviceOpener()
	up := uploader.NewMock(
		&uploader.Error{Classification: uploader.PermanentFailure, StatusCode: http.StatusUnauthorized},
		nil,
	)

	w := newWorker("test-worker", testCameraConfig("カメラA"), testInterval, opener, up)

	ctx, cancel := context.WithCancel(context.Background())
	doneCh := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(doneCh)
	}()

	// 失敗1回と成功1回以上
	waitUntil(t, "2回以上のアップロード試行", func() bool {
		return up.CountFor("カメラA") >= 2
	})
	waitUntil(t, "成功サイクルへの回復", func() bool {
		return w.Status().Uploads >= 1
	})

	cancel()
	<-doneCh

	status := w.Status()
	if status.Cycles < 2 {
		t.Errorf("Expected at least 2 cycles, got %d", status.Cycles)
	}
	// 各試行は新しいフレームを送る（失敗フレームの再送はない）
	records := up.Records()
	if len(records) < 2 {
		t.Fatalf("Expected at least 2 upload attempts, got %d", len(records))
	}
}

func TestWorker_TransientAndPermanentSameControlFlow(t *testing.T) {
	// TransientFailureもPermanentFailureも制御フローは同じ:
	// フレームを破棄して次サイクルへ進む
	for _, tt := range []struct {
		name string
		err  *uploader.Error
	}{
		{"transient", &uploader.Error{Classification: uploader.TransientFailure, StatusCode: http.StatusInternalServerError}},
		{"permanent", &uploader.Error{Classification: uploader.PermanentFailure, StatusCode: http.StatusUnauthorized}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			opener := camera.NewMockDeviceOpener()
			up := uploader.NewMock(tt.err)

			w := newWorker("test-worker", testCameraConfig("カメラA"), testInterval, opener, up)

			ctx, cancel := context.WithCancel(context.Background())
			doneCh := make(chan struct{})
			go func() {
				w.Run(ctx)
				close(doneCh)
			}()

			// 失敗しても次サイクルの試行は続く
			waitUntil(t, "3回以上のアップロード試行", func() bool {
				return up.CountFor("カメラA") >= 3
			})

			status := w.Status()
			if status.Phase != PhaseErrored && status.Phase != PhaseUploading && status.Phase != PhaseCapturing {
				t.Errorf("Unexpected phase %s", status.Phase)
			}
			if status.Uploads != 0 {
				t.Errorf("Expected 0 successful uploads, got %d", status.Uploads)
			}

			cancel()
			<-doneCh
		})
	}
}
