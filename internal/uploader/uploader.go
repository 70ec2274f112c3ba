// Package uploader はキャプチャしたフレームのリモート送信を担う
//
// # 責務
// - 圧縮フレーム1枚をスナップショット受信エンドポイントへPOSTする
// - 送信結果を Success / TransientFailure / PermanentFailure に分類する
//
// # 仕様
// - リトライは一切行わない。リトライ方針はWorkerの次サイクルに委ねる
// - ネットワーク/サーバーエラー（タイムアウト・5xx・接続拒否）はTransientFailure
// - 認証拒否やリクエスト不正（4xx）はPermanentFailure
// - リクエストは独自のタイムアウトで制限され、シャットダウンで強制中断されない
package uploader

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"connectcam/internal/config"
)

// Classification はアップロード結果の分類を表す
type Classification string

const (
	// Success は2xx応答を表す
	Success Classification = "success"
	// TransientFailure は次サイクルで回復しうる失敗（ネットワーク・サーバー障害）を表す
	TransientFailure Classification = "transient_failure"
	// PermanentFailure は設定起因の失敗（トークン無効・リクエスト不正）を表す
	PermanentFailure Classification = "permanent_failure"
)

// HTTPクライアントのタイムアウト設定
const (
	defaultTimeout        = 30 * time.Second
	defaultConnectTimeout = 10 * time.Second
	defaultKeepAlive      = 30 * time.Second
)

// Error はアップロード失敗の分類と詳細を保持する
type Error struct {
	Classification Classification // 失敗の分類
	StatusCode     int            // HTTPステータスコード（トランスポートエラー時は0）
	Err            error          // 下位のエラー（HTTPエラー応答時はnil）
}

// Error はエラーメッセージを返す
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("アップロードに失敗 (%s): %v", e.Classification, e.Err)
	}
	return fmt.Sprintf("アップロードに失敗 (%s): ステータス %d", e.Classification, e.StatusCode)
}

// Unwrap は下位のエラーを返す
func (e *Error) Unwrap() error {
	return e.Err
}

// Classify はエラーから結果分類を取り出す
func Classify(err error) Classification {
	if err == nil {
		return Success
	}

	var uploadErr *Error
	if errors.As(err, &uploadErr) {
		return uploadErr.Classification
	}

	// 分類不明のエラーは一時的な失敗として扱う
	return TransientFailure
}

// Uploader はフレーム送信機能を提供する
type Uploader interface {
	// Upload はフレームとカメラの認証情報をエンドポイントへ送信する
	// 失敗時は分類付きの*Errorを返す
	Upload(ctx context.Context, frame []byte, cam config.CameraConfig) error
}

// HTTPUploader はHTTP POSTによるUploader実装。状態を持たない
type HTTPUploader struct {
	client *http.Client
}

// New は本番用のタイムアウト設定を持つHTTPUploaderを作成する
func New() *HTTPUploader {
	return NewWithClient(&http.Client{
		Timeout: defaultTimeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   defaultConnectTimeout,
				KeepAlive: defaultKeepAlive,
			}).DialContext,
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 2,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	})
}

// NewWithClient は指定されたHTTPクライアントを使うHTTPUploaderを作成する
func NewWithClient(client *http.Client) *HTTPUploader {
	return &HTTPUploader{client: client}
}

// Upload はフレーム1枚をスナップショット受信エンドポイントへPOSTする
func (u *HTTPUploader) Upload(ctx context.Context, frame []byte, cam config.CameraConfig) error {
	// シャットダウン中でも送信中のリクエストは完了まで進める
	// （中断はクライアント自身のタイムアウトに委ねる）
	req, err := http.NewRequestWithContext(context.WithoutCancel(ctx), http.MethodPost, cam.URL, bytes.NewReader(frame))
	if err != nil {
		return &Error{Classification: PermanentFailure, Err: err}
	}

	req.Header.Set("Content-Type", "image/jpg")
	req.Header.Set("Token", cam.Token)
	req.Header.Set("Fingerprint", cam.Fingerprint)
	req.ContentLength = int64(len(frame))

	resp, err := u.client.Do(req)
	if err != nil {
		return &Error{Classification: TransientFailure, Err: err}
	}
	defer func() {
		// コネクション再利用のためボディを読み捨てる
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 500:
		return &Error{Classification: TransientFailure, StatusCode: resp.StatusCode}
	default:
		// 4xx（認証拒否・リクエスト不正）および想定外のステータス
		return &Error{Classification: PermanentFailure, StatusCode: resp.StatusCode}
	}
}
