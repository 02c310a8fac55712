// Package buildinfo reports the version the binary was built from.
package buildinfo

import (
	"encoding/json"
	"net/http"
	"runtime"
)

// These vars are set at build time via ldflags:
// -X github.com/romuloxaguiar/teste-yfbai3/pkg/buildinfo.Version=v0.3.0
// -X github.com/romuloxaguiar/teste-yfbai3/pkg/buildinfo.Commit=4f1c2ab
// -X github.com/romuloxaguiar/teste-yfbai3/pkg/buildinfo.BuildTime=2026-10-01T09:00:00Z
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info holds build information for a service.
type Info struct {
	ServiceName string `json:"service_name"`
	Version     string `json:"version"`
	Commit      string `json:"commit"`
	BuildTime   string `json:"build_time"`
	GoVersion   string `json:"go_version"`
}

// Get returns build info for the named service.
func Get(serviceName string) Info {
	return Info{
		ServiceName: serviceName,
		Version:     Version,
		Commit:      Commit,
		BuildTime:   BuildTime,
		GoVersion:   runtime.Version(),
	}
}

// String returns a human-readable one-liner like "v0.3.0 (4f1c2ab, 2026-10-01T09:00:00Z)"
func String() string {
	return Version + " (" + Commit + ", " + BuildTime + ")"
}

// Short returns the version recorded in minutes metadata: "v0.3.0+4f1c2ab",
// or just the version when the commit is unknown.
func Short() string {
	if Commit == "" || Commit == "unknown" {
		return Version
	}
	return Version + "+" + Commit
}

// UserAgent identifies serviceName in outbound requests.
func UserAgent(serviceName string) string {
	return serviceName + "/" + Short()
}

// Handler returns an HTTP handler that responds with build info JSON.
func Handler(serviceName string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info := Get(serviceName)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	}
}
