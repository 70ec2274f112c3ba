package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"connectcam/internal/camera"
	"connectcam/internal/config"
	"connectcam/internal/uploader"
)

// Supervisor は全Camera Workerの起動・停止を管理する
// Worker間で共有される状態はこの起動・停止の帳簿だけで、
// それはSupervisorだけが所有する
type Supervisor struct {
	cfg      *config.Config
	opener   camera.DeviceOpener
	uploader uploader.Uploader
	interval time.Duration

	mu      sync.RWMutex
	workers map[string]*Worker
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New は新しいSupervisorを作成する
func New(cfg *config.Config, opener camera.DeviceOpener, up uploader.Uploader) *Supervisor {
	return &Supervisor{
		cfg:      cfg,
		opener:   opener,
		uploader: up,
		interval: time.Duration(cfg.RefreshRate) * time.Second,
		workers:  make(map[string]*Worker),
	}
}

// SetInterval はサイクル間隔を上書きする（テスト用）
func (s *Supervisor) SetInterval(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interval = interval
}

// Start は設定されたカメラごとにWorkerを作成し、独立したゴルーチンで起動する
// Workerの起動自体は失敗しない。デバイスのオープンは各Workerが
// 自分のサイクル内で行い、失敗しても自分のスケジュールで再試行する
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("Supervisorは既に開始されています")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for _, cam := range s.cfg.Cameras {
		w := newWorker(uuid.New().String(), cam, s.interval, s.opener, s.uploader)
		s.workers[w.id] = w

		s.wg.Add(1)
		go func(w *Worker) {
			defer s.wg.Done()
			w.Run(runCtx)
		}(w)
	}

	s.running = true
	slog.Info("Supervisorを開始しました",
		"cameras", len(s.workers), "interval", s.interval)

	return nil
}

// Stop は全Workerに停止を通知し、全員の終了とデバイス解放を待つ
// 戻った時点で、Workerが開いたデバイスハンドルは全て解放されている
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel := s.cancel
	s.mu.Unlock()

	cancel()

	// 全Workerの終了を待つ
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("Workerの停止待機が中断されました: %w", ctx.Err())
	}

	s.mu.Lock()
	s.running = false
	s.workers = make(map[string]*Worker)
	s.mu.Unlock()

	slog.Info("Supervisorを停止しました")
	return nil
}

// Running は動作中かを返す
func (s *Supervisor) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Workers は全Workerの状態スナップショットを返す
// 表示を安定させるためカメラ名でソートする
func (s *Supervisor) Workers() []WorkerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	statuses := make([]WorkerStatus, 0, len(s.workers))
	for _, w := range s.workers {
		statuses = append(statuses, w.Status())
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Camera < statuses[j].Camera
	})

	return statuses
}
