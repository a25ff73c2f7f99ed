package api

import "github.com/mattjoyce/foldermon/internal/bridge"

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string        `json:"status"` // ok, degraded
	UptimeSeconds int64         `json:"uptime_seconds"`
	Worker        bridge.Health `json:"worker"`
}

// ScanResponse is returned by POST /scan.
type ScanResponse struct {
	Payload string   `json:"payload"`
	Items   []string `json:"items"`
}

// FoldersResponse is returned by the folder endpoints.
type FoldersResponse struct {
	Folders []string `json:"folders"`
}

// FolderRequest is the JSON body for POST /folders and POST /reveal.
type FolderRequest struct {
	Path string `json:"path"`
}

// FolderChangeResponse is returned after an add or remove.
type FolderChangeResponse struct {
	Path    string   `json:"path"`
	Status  string   `json:"status"` // added, removed
	Acked   bool     `json:"acked"`
	Folders []string `json:"folders"`
}

// StatusResponse is a generic acknowledgement.
type StatusResponse struct {
	Status string `json:"status"`
}
