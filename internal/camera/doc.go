// Package camera はV4L2キャプチャデバイスの解決とフレーム取得を担う
//
// # 責務
// - 設定されたカメラ名から /dev/videoN ノードへの解決
// - デバイスのオープンとMotion-JPEGフォーマットのネゴシエーション
// - 1フレーム単位での圧縮画像の取得
// - デバイスリソースの確実な解放
//
// # 仕様
// - Discovery: /sys/class/video4linux 配下の名前ファイルを走査して解決
// - Device: blackjack/webcam によるV4L2アクセス（cgo不要）
// - 取得フォーマットはMotion-JPEGのみ。対応しないデバイスはオープン時に拒否する
// - キャプチャバッファは1つだけ確保し、取得前に滞留フレームを破棄する
// - Close は何度呼んでも安全（冪等）
//
// # 前提要件
//   - videoグループへの参加: デバイスアクセス権限
//     sudo usermod -a -G video $USER
package camera
