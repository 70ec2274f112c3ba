package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"connectcam/internal/supervisor"
)

// HealthResponse はヘルスチェックのレスポンス
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// StatusResponse はシステム状態のレスポンス
type StatusResponse struct {
	Status    string     `json:"status"`
	Server    ServerInfo `json:"server"`
	Cameras   int        `json:"cameras"`
	Timestamp time.Time  `json:"timestamp"`
}

// ServerInfo はサーバーの待ち受け情報
type ServerInfo struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// CamerasResponse はカメラWorkerの状態一覧のレスポンス
type CamerasResponse struct {
	Cameras []supervisor.WorkerStatus `json:"cameras"`
}

// handleHealth はヘルスチェックエンドポイントの実装
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
	})
}

// handleStatus はシステム状態取得エンドポイントの実装
func (s *Server) handleStatus(c *gin.Context) {
	status := "running"
	if !s.source.Running() {
		status = "stopped"
	}

	c.JSON(http.StatusOK, StatusResponse{
		Status: status,
		Server: ServerInfo{
			Host: s.config.Server.Host,
			Port: s.config.Server.Port,
		},
		Cameras:   len(s.config.Cameras),
		Timestamp: time.Now(),
	})
}

// handleCameras はカメラWorkerの状態一覧取得エンドポイントの実装
func (s *Server) handleCameras(c *gin.Context) {
	statuses := s.source.Workers()
	if statuses == nil {
		statuses = []supervisor.WorkerStatus{}
	}

	c.JSON(http.StatusOK, CamerasResponse{Cameras: statuses})
}
