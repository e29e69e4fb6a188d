// Package node carries this process's identity within the registry cluster:
// the address other instances forward requests to, and the liveness/version
// information surfaced on the health and metadata endpoints.
package node

import (
	"time"

	"github.com/google/uuid"
)

// Self describes the identity of the local registry instance.
type Self struct {
	ID       string `json:"id"`
	Hostname string `json:"hostname"`
	Address  string `json:"address"`
	Port     int    `json:"port"`

	ClusterID string `json:"clusterId"`
	Version   string `json:"version"`
	GitCommit string `json:"gitCommit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`

	StartTime time.Time `json:"startTime"`
}

// Build describes version metadata injected at link time.
type Build struct {
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
}

// New constructs this instance's identity. hostname and advertised address/port
// come from configuration (host.name / listeners); clusterID is fixed for the
// lifetime of the _schemas topic and is learned on LogStore.Init.
func New(hostname, address string, port int, clusterID string, build Build) *Self {
	return &Self{
		ID:        uuid.New().String(),
		Hostname:  hostname,
		Address:   address,
		Port:      port,
		ClusterID: clusterID,
		Version:   build.Version,
		GitCommit: build.GitCommit,
		BuildTime: build.BuildTime,
		GoVersion: build.GoVersion,
		StartTime: time.Now(),
	}
}

// URL returns the base URL other instances use to forward requests to this one.
func (s *Self) URL() string {
	if s.Address == "" {
		return ""
	}
	return s.Address
}

// Uptime returns how long this instance has been running.
func (s *Self) Uptime() time.Duration {
	return time.Since(s.StartTime)
}
