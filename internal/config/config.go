// Package config はConnectCamの設定ファイルの読み込みと検証を担う
//
// # 責務
// - TOML設定ファイルの読み込み
// - カメラ設定（名前・トークン・デバイス指定）の検証
// - フィンガープリントなどの省略可能項目のデフォルト値補完
//
// # 仕様
// - 設定はTOML形式（pelletier/go-toml/v2を使用）
// - [[camera]] テーブルでカメラを複数定義できる（旧形式の cameras キーも受け付ける）
// - refresh_rate は秒単位の整数で、1以上でなければならない
// - 設定は起動時に一度だけ読み込まれ、以降は変更されない
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// DefaultURL はスナップショット送信先のデフォルトエンドポイント
const DefaultURL = "https://connect.prusa3d.com/c/snapshot"

// DefaultRefreshRate はデフォルトの撮影間隔（秒）
const DefaultRefreshRate = 30

// Config はアプリケーション全体の設定を保持する構造体
type Config struct {
	RefreshRate int            `toml:"refresh_rate"` // 撮影間隔（秒）
	Server      ServerConfig   `toml:"server"`       // ステータスサーバーの設定
	Cameras     []CameraConfig `toml:"camera"`       // カメラ毎の設定

	// 旧形式の設定ファイルとの互換用。読み込み後にCamerasへ統合される
	LegacyCameras []CameraConfig `toml:"cameras"`
}

// ServerConfig は状態確認用HTTPサーバーの設定
type ServerConfig struct {
	Enabled bool   `toml:"enabled"` // サーバーを起動するか（デフォルト: 無効）
	Host    string `toml:"host"`    // リッスンするホスト
	Port    int    `toml:"port"`    // リッスンするポート番号
}

// CameraConfig は個別カメラの設定
// 起動時に一度だけ作成され、以降は変更されない
type CameraConfig struct {
	Name        string `toml:"name"`        // キャプチャサブシステムが報告するカメラ名
	Token       string `toml:"token"`       // アップロード用トークン
	Device      string `toml:"dev"`         // デバイスパスの明示指定（省略時は名前から解決）
	Resolution  string `toml:"resolution"`  // 解像度指定 "幅x高さ"（省略時は最大解像度）
	URL         string `toml:"url"`         // 送信先URL（省略時はDefaultURL）
	Fingerprint string `toml:"fingerprint"` // フィンガープリント（省略時は名前から導出）
}

// Load は指定されたパスから設定を読み込む
// pathが空の場合は実行ファイルと同じディレクトリのconfig.tomlを使用する
func Load(path string) (*Config, error) {
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("実行ファイルのパス取得に失敗: %w", err)
		}
		path = filepath.Join(filepath.Dir(exe), "config.toml")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
	}

	return Parse(data)
}

// Parse はTOMLデータから設定を組み立てる
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		RefreshRate: DefaultRefreshRate,
		Server: ServerConfig{
			Enabled: false,
			Host:    "0.0.0.0",
			Port:    8080,
		},
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("設定の解析に失敗: %w", err)
	}

	// 旧形式の cameras キーを統合
	if len(cfg.Cameras) == 0 && len(cfg.LegacyCameras) > 0 {
		cfg.Cameras = cfg.LegacyCameras
	}
	cfg.LegacyCameras = nil

	// 省略可能項目のデフォルト値を補完
	for i := range cfg.Cameras {
		cam := &cfg.Cameras[i]
		if cam.URL == "" {
			cam.URL = DefaultURL
		}
		if cam.Fingerprint == "" {
			cam.Fingerprint = DeriveFingerprint(cam.Name)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定の検証に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定の妥当性を検証する
func (c *Config) Validate() error {
	if len(c.Cameras) < 1 {
		return fmt.Errorf("カメラが設定されていません")
	}

	if c.RefreshRate < 1 {
		return fmt.Errorf("無効なrefresh_rate: %d（1以上が必要）", c.RefreshRate)
	}

	for i, cam := range c.Cameras {
		if cam.Name == "" {
			return fmt.Errorf("カメラ設定 %d に名前がありません", i)
		}
		if cam.Token == "" {
			return fmt.Errorf("カメラ '%s' にトークンがありません", cam.Name)
		}
		if cam.Resolution != "" {
			if _, _, err := ParseResolution(cam.Resolution); err != nil {
				return fmt.Errorf("カメラ '%s' の解像度指定が無効: %w", cam.Name, err)
			}
		}
	}

	if c.Server.Enabled {
		if c.Server.Port < 1 || c.Server.Port > 65535 {
			return fmt.Errorf("無効なポート番号: %d", c.Server.Port)
		}
	}

	return nil
}

// ServerAddress はステータスサーバーのリッスンアドレスを返す
func (c *Config) ServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// DeriveFingerprint はカメラ名からフィンガープリントを導出する
// base64エンコードした名前を'.'で16文字以上に埋め、64文字に切り詰める
func DeriveFingerprint(name string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(name))
	if len(encoded) < 16 {
		encoded += strings.Repeat(".", 16-len(encoded))
	}
	if len(encoded) > 64 {
		encoded = encoded[:64]
	}
	return encoded
}

// ParseResolution は"幅x高さ"形式の解像度指定を解析する
func ParseResolution(s string) (width, height int, err error) {
	parts := strings.SplitN(s, "x", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("解像度は '幅x高さ' 形式で指定してください: %s", s)
	}

	width, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("幅の解析に失敗: %w", err)
	}

	height, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("高さの解析に失敗: %w", err)
	}

	if width < 1 || height < 1 {
		return 0, 0, fmt.Errorf("解像度は正の値でなければなりません: %s", s)
	}

	return width, height, nil
}
