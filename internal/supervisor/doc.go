// Package supervisor はカメラごとのキャプチャ→アップロードサイクルの駆動を担う
//
// # 責務
// - 設定されたカメラ1台につき1つのWorkerゴルーチンを起動する
// - Workerのサイクル（待機→キャプチャ→アップロード）を一定間隔で駆動する
// - 1台のカメラの障害を他のカメラから隔離する
// - 停止時に全デバイスリソースの解放を保証する
//
// # 仕様
// - Worker間に共有する可変状態はない。各Workerは自分のデバイスと設定のみを扱う
// - サイクルはWorkerのループ内で直列に実行される。前のサイクル（キャプチャ＋
//   アップロード）が完了するまで次のキャプチャは始まらない
// - 失敗したサイクルのフレームは破棄される。キューも再送もない
// - どのステップの失敗もそのWorkerのErrored状態に吸収され、次の間隔で
//   回復を試みる。プロセス全体が停止することはない
// - Stopは全Workerの終了とデバイス解放を確認してから戻る
package supervisor
