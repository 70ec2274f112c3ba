package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"connectcam/internal/camera"
	"connectcam/internal/config"
	"connectcam/internal/uploader"
)

// Phase はWorkerの状態機械の段階を表す
type Phase string

const (
	PhaseIdle      Phase = "idle"      // 起動前
	PhaseOpening   Phase = "opening"   // デバイスのオープン中
	PhaseWaiting   Phase = "waiting"   // 次サイクルまで待機中
	PhaseCapturing Phase = "capturing" // フレーム取得中
	PhaseUploading Phase = "uploading" // フレーム送信中
	PhaseErrored   Phase = "errored"   // 直近のサイクルが失敗（次の間隔で回復を試みる）
)

// WorkerStatus はWorkerの状態スナップショット
type WorkerStatus struct {
	ID          string    `json:"id"`           // Workerの一意識別子
	Camera      string    `json:"camera"`       // カメラ名
	Device      string    `json:"device"`       // 解決されたデバイスパス（未オープン時は空）
	Phase       Phase     `json:"phase"`        // 現在の段階
	Cycles      uint64    `json:"cycles"`       // 実行したサイクル数
	Uploads     uint64    `json:"uploads"`      // 成功したアップロード数
	LastSuccess time.Time `json:"last_success"` // 最後に成功した時刻
	LastError   string    `json:"last_error"`   // 直近のエラー（なければ空）
}

// Worker は1台のカメラのキャプチャ→アップロードサイクルを駆動する
// 自分のDevice Handleを排他的に所有し、他のWorkerと状態を共有しない
type Worker struct {
	id       string
	cam      config.CameraConfig
	interval time.Duration
	opener   camera.DeviceOpener
	uploader uploader.Uploader

	mu          sync.RWMutex
	phase       Phase
	device      camera.Device
	cycles      uint64
	uploads     uint64
	lastSuccess time.Time
	lastErr     error
}

// newWorker は新しいWorkerを作成する
func newWorker(id string, cam config.CameraConfig, interval time.Duration, opener camera.DeviceOpener, up uploader.Uploader) *Worker {
	return &Worker{
		id:       id,
		cam:      cam,
		interval: interval,
		opener:   opener,
		uploader: up,
		phase:    PhaseIdle,
	}
}

// Run はサイクルループを実行する。ctxのキャンセルで終了する
// 終了時には開いていたデバイスを必ず解放する
func (w *Worker) Run(ctx context.Context) {
	defer w.closeDevice()

	w.setPhase(PhaseWaiting)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// サイクルはここで直列に実行される。処理中に来たtickは
			// 捨てられるため、サイクルが重なることはない
			w.runCycle(ctx)
		}
	}
}

// runCycle は1サイクル（オープン→キャプチャ→アップロード）を実行する
// どのステップの失敗もこのWorker内に閉じ、次サイクルで回復を試みる
func (w *Worker) runCycle(ctx context.Context) {
	w.mu.Lock()
	w.cycles++
	w.mu.Unlock()

	dev := w.currentDevice()
	if dev == nil {
		w.setPhase(PhaseOpening)
		opened, err := w.opener.OpenDevice(ctx, w.cam)
		if err != nil {
			slog.Warn("デバイスのオープンに失敗しました",
				"camera", w.cam.Name, "error", err)
			w.setError(err)
			return
		}
		w.setDevice(opened)
		dev = opened
	}

	w.setPhase(PhaseCapturing)
	frame, err := dev.Capture(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return // シャットダウン中
		}
		slog.Warn("フレームの取得に失敗しました",
			"camera", w.cam.Name, "error", err)
		w.setError(err)
		if errors.Is(err, camera.ErrDeviceDisconnected) {
			// ハンドルは使用不能。解放して次サイクルで開き直す
			w.closeDevice()
		}
		return
	}

	w.setPhase(PhaseUploading)
	err = w.uploader.Upload(ctx, frame, w.cam)
	// フレームは結果にかかわらずここで破棄される。保持も再送もしない
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		// 分類は診断ログにのみ影響し、Workerの制御フローは変わらない
		switch uploader.Classify(err) {
		case uploader.PermanentFailure:
			slog.Error("アップロードが拒否されました。トークン設定を確認してください",
				"camera", w.cam.Name, "error", err)
		default:
			slog.Warn("アップロードに失敗しました",
				"camera", w.cam.Name, "error", err)
		}
		w.setError(err)
		return
	}

	w.mu.Lock()
	w.uploads++
	w.lastSuccess = time.Now()
	w.lastErr = nil
	w.mu.Unlock()

	w.setPhase(PhaseWaiting)
	slog.Debug("フレームを送信しました",
		"camera", w.cam.Name, "bytes", len(frame))
}

// Status は状態スナップショットを返す
func (w *Worker) Status() WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	status := WorkerStatus{
		ID:          w.id,
		Camera:      w.cam.Name,
		Phase:       w.phase,
		Cycles:      w.cycles,
		Uploads:     w.uploads,
		LastSuccess: w.lastSuccess,
	}
	if w.device != nil {
		status.Device = w.device.Info().Device
	}
	if w.lastErr != nil {
		status.LastError = w.lastErr.Error()
	}
	return status
}

// setPhase は現在の段階を更新する
func (w *Worker) setPhase(phase Phase) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.phase = phase
}

// setError は失敗を記録してErrored状態へ遷移する
func (w *Worker) setError(err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.phase = PhaseErrored
	w.lastErr = err
}

// currentDevice は現在のデバイスを返す（未オープン時はnil）
func (w *Worker) currentDevice() camera.Device {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.device
}

// setDevice はデバイスを設定する
func (w *Worker) setDevice(dev camera.Device) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.device = dev
}

// closeDevice は開いていたデバイスを解放する。未オープンなら何もしない
func (w *Worker) closeDevice() {
	w.mu.Lock()
	dev := w.device
	w.device = nil
	w.mu.Unlock()

	if dev == nil {
		return
	}
	if err := dev.Close(); err != nil {
		slog.Warn("デバイスのクローズに失敗しました",
			"camera", w.cam.Name, "error", err)
	}
}
