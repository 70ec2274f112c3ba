// Package server は、稼働状態を確認するためのHTTPサーバーを管理します。
//
// このパッケージは、HTTPサーバーの起動、ルーティング、
// 各カメラWorkerの状態の公開を担当します。
//
// 責務:
//   - HTTPサーバーの起動とグレースフルシャットダウン
//   - ヘルスチェックエンドポイントの提供
//   - カメラWorkerの状態スナップショットの配信
//
// 仕様:
//   - ルーティングにはgin-gonic/ginを使用
//   - 読み取り専用（設定変更やカメラ操作のエンドポイントは持たない）
//   - 設定で無効化されている場合は起動しない
package server
