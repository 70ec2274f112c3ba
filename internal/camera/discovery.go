package camera

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// sysfsVideoPath はV4L2デバイスの名前ファイルが置かれるディレクトリ
const sysfsVideoPath = "/sys/class/video4linux"

// LinuxDiscovery はLinux環境でのカメラデバイス検出を実装する
// sysfsの名前ファイルを読むだけなのでデバイスを開かない
type LinuxDiscovery struct {
	sysfsPath string
}

// NewLinuxDiscovery は新しいLinuxDiscoveryを作成する
func NewLinuxDiscovery() Discovery {
	return &LinuxDiscovery{sysfsPath: sysfsVideoPath}
}

// NewLinuxDiscoveryAt はテスト用に任意のsysfsパスを使うLinuxDiscoveryを作成する
func NewLinuxDiscoveryAt(path string) Discovery {
	return &LinuxDiscovery{sysfsPath: path}
}

// ResolveDevice はカメラ名からデバイスパスを解決する
// 名前は部分一致で照合し、複数一致する場合は最も番号の小さいノードを選ぶ
// （同一カメラが複数ノードを公開する場合、先頭ノードが映像チャンネルのため）
func (d *LinuxDiscovery) ResolveDevice(ctx context.Context, name string) (string, error) {
	devices, err := d.ListDevices(ctx)
	if err != nil {
		return "", err
	}

	for _, dev := range devices {
		if strings.Contains(dev.Name, name) {
			return dev.Device, nil
		}
	}

	return "", fmt.Errorf("%w: '%s'", ErrDeviceNotFound, name)
}

// ListDevices はシステム内のキャプチャノード一覧を取得する
func (d *LinuxDiscovery) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	entries, err := os.ReadDir(d.sysfsPath)
	if err != nil {
		if os.IsNotExist(err) {
			// V4L2サブシステム自体がない環境（カメラ未接続）
			return nil, nil
		}
		return nil, fmt.Errorf("デバイスのスキャンに失敗: %w", err)
	}

	var devices []DeviceInfo
	for _, entry := range entries {
		// コンテキストのキャンセルをチェック
		select {
		case <-ctx.Done():
			return devices, ctx.Err()
		default:
		}

		name, err := d.readDeviceName(entry.Name())
		if err != nil {
			continue
		}

		devices = append(devices, DeviceInfo{
			Device: filepath.Join("/dev", entry.Name()),
			Name:   name,
		})
	}

	// デバイス番号でソート
	sort.Slice(devices, func(i, j int) bool {
		return extractDeviceNumber(devices[i].Device) < extractDeviceNumber(devices[j].Device)
	})

	return devices, nil
}

// readDeviceName はsysfsの名前ファイルからカメラ名を読み取る
func (d *LinuxDiscovery) readDeviceName(node string) (string, error) {
	data, err := os.ReadFile(filepath.Join(d.sysfsPath, node, "name"))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// extractDeviceNumber はデバイスパスから番号を抽出する
func extractDeviceNumber(device string) int {
	// /dev/videoXX から XX を抽出
	re := regexp.MustCompile(`video(\d+)`)
	matches := re.FindStringSubmatch(device)
	if len(matches) < 2 {
		return 0
	}

	num, err := strconv.Atoi(matches[1])
	if err != nil {
		return 0
	}

	return num
}

// MockDiscovery はテスト用のモックDiscovery実装
type MockDiscovery struct {
	devices []DeviceInfo
}

// NewMockDiscovery は新しいMockDiscoveryを作成する
func NewMockDiscovery(devices []DeviceInfo) *MockDiscovery {
	return &MockDiscovery{devices: devices}
}

// ResolveDevice はモックデバイスから名前を解決する
func (m *MockDiscovery) ResolveDevice(_ context.Context, name string) (string, error) {
	for _, dev := range m.devices {
		if strings.Contains(dev.Name, name) {
			return dev.Device, nil
		}
	}
	return "", fmt.Errorf("%w: '%s'", ErrDeviceNotFound, name)
}

// ListDevices はモックデバイス一覧を返す
func (m *MockDiscovery) ListDevices(_ context.Context) ([]DeviceInfo, error) {
	result := make([]DeviceInfo, len(m.devices))
	copy(result, m.devices)
	return result, nil
}

// AddDevice はテスト用にデバイスを追加する
func (m *MockDiscovery) AddDevice(device, name string) {
	m.devices = append(m.devices, DeviceInfo{Device: device, Name: name})
}

// RemoveDevice はテスト用にデバイスを削除する
func (m *MockDiscovery) RemoveDevice(device string) {
	for i, dev := range m.devices {
		if dev.Device == device {
			m.devices = append(m.devices[:i], m.devices[i+1:]...)
			return
		}
	}
}
