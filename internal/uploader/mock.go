package uploader

import (
	"context"
	"sync"

	"connectcam/internal/config"
)

// UploadRecord は1回のアップロード試行の記録
type UploadRecord struct {
	Camera    string // カメラ名
	FrameSize int    // 送信したフレームのバイト数
}

// Mock はテスト用のモックUploader実装
// 結果を先頭から順に返し、使い切った後は最後の結果を繰り返す
type Mock struct {
	mu sync.Mutex

	results []error
	records []UploadRecord

	// blockCh が設定されている場合、Uploadは受信までブロックする
	// ワーカーのサイクル直列性のテストに使う
	blockCh chan struct{}
}

// NewMock は新しいMockを作成する。結果未設定の場合は常に成功を返す
func NewMock(results ...error) *Mock {
	return &Mock{results: results}
}

// Upload は設定された結果を順に返す
func (m *Mock) Upload(ctx context.Context, frame []byte, cam config.CameraConfig) error {
	m.mu.Lock()
	blockCh := m.blockCh
	m.mu.Unlock()

	if blockCh != nil {
		select {
		case <-blockCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = append(m.records, UploadRecord{Camera: cam.Name, FrameSize: len(frame)})

	if len(m.results) == 0 {
		return nil
	}

	result := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return result
}

// SetBlocking はUploadをブロックさせるチャンネルを設定する
func (m *Mock) SetBlocking(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockCh = ch
}

// Records はこれまでのアップロード記録を返す
func (m *Mock) Records() []UploadRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]UploadRecord, len(m.records))
	copy(result, m.records)
	return result
}

// CountFor は指定カメラのアップロード試行回数を返す
func (m *Mock) CountFor(camera string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, r := range m.records {
		if r.Camera == camera {
			count++
		}
	}
	return count
}
