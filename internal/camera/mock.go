package camera

import (
	"context"
	"fmt"
	"sync"

	"connectcam/internal/config"
)

// mockFrame はテストで返す最小のJPEG風フレーム（SOI/EOIマーカーのみ）
var mockFrame = []byte{0xFF, 0xD8, 0xFF, 0xD9}

// MockDevice はテスト用のモックDevice実装
type MockDevice struct {
	mu sync.Mutex

	info       DeviceInfo
	frame      []byte
	captureErr error

	captureCount int
	closeCount   int
	closed       bool
}

// NewMockDevice は新しいMockDeviceを作成する
func NewMockDevice(name string) *MockDevice {
	return &MockDevice{
		info:  DeviceInfo{Device: "/dev/video0", Name: name, Width: 1280, Height: 720},
		frame: mockFrame,
	}
}

// Capture はモックフレームを返す
func (m *MockDevice) Capture(_ context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.captureCount++

	if m.closed {
		return nil, fmt.Errorf("%w: %s", ErrDeviceDisconnected, m.info.Device)
	}
	if m.captureErr != nil {
		return nil, m.captureErr
	}

	frame := make([]byte, len(m.frame))
	copy(frame, m.frame)
	return frame, nil
}

// Close はモックデバイスをクローズする。冪等
func (m *MockDevice) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCount++
	m.closed = true
	return nil
}

// Info はデバイス情報を返す
func (m *MockDevice) Info() DeviceInfo {
	return m.info
}

// SetCaptureError はテスト用にキャプチャ失敗を設定する
func (m *MockDevice) SetCaptureError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.captureErr = err
}

// SetFrame はテスト用に返すフレームを設定する
func (m *MockDevice) SetFrame(frame []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frame = frame
}

// CaptureCount はCaptureの呼び出し回数を返す
func (m *MockDevice) CaptureCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.captureCount
}

// Closed はクローズ済みかを返す
func (m *MockDevice) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// CloseCount はCloseの呼び出し回数を返す
func (m *MockDevice) CloseCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCount
}

// MockDeviceOpener はテスト用のモックDeviceOpener実装
// カメラ名ごとにオープン失敗を設定でき、開いたデバイスを記録する
type MockDeviceOpener struct {
	mu sync.Mutex

	openErrs  map[string]error
	opened    []*MockDevice
	openCount map[string]int
}

// NewMockDeviceOpener は新しいMockDeviceOpenerを作成する
func NewMockDeviceOpener() *MockDeviceOpener {
	return &MockDeviceOpener{
		openErrs:  make(map[string]error),
		openCount: make(map[string]int),
	}
}

// OpenDevice はモックデバイスを作成して返す
func (o *MockDeviceOpener) OpenDevice(_ context.Context, cam config.CameraConfig) (Device, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.openCount[cam.Name]++

	if err, ok := o.openErrs[cam.Name]; ok && err != nil {
		return nil, err
	}

	dev := NewMockDevice(cam.Name)
	o.opened = append(o.opened, dev)
	return dev, nil
}

// SetOpenError はテスト用に指定カメラのオープン失敗を設定する
func (o *MockDeviceOpener) SetOpenError(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.openErrs[name] = err
}

// OpenCount は指定カメラのオープン試行回数を返す
func (o *MockDeviceOpener) OpenCount(name string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.openCount[name]
}

// OpenedDevices はこれまでに開いた全モックデバイスを返す
func (o *MockDeviceOpener) OpenedDevices() []*MockDevice {
	o.mu.Lock()
	defer o.mu.Unlock()

	result := make([]*MockDevice, len(o.opened))
	copy(result, o.opened)
	return result
}
