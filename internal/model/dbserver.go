package model

import "time"

// DBServer describes one shared database engine process. There is at most
// one record per engine type; its lifecycle is independent of any site.
type DBServer struct {
	Engine        Engine    `json:"engine"`
	Port          int       `json:"port"`
	Running       bool      `json:"is_running"`
	DataDirectory string    `json:"data_directory"`
	PID           int       `json:"pid,omitempty"`
	StartedAt     time.Time `json:"started_at,omitzero"`
}
