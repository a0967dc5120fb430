// Package version carries build metadata for the market stream binaries.
//
// Set at link time:
//
//	go build -ldflags "-X github.com/rickgao/market-stream/internal/version.Version=1.0.0 \
//	                   -X github.com/rickgao/market-stream/internal/version.Commit=$(git rev-parse --short HEAD) \
//	                   -X github.com/rickgao/market-stream/internal/version.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// BuildInfo is the JSON form served on the API banner.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Info returns the current build metadata.
func Info() BuildInfo {
	return BuildInfo{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String formats the build metadata for logs and -version output.
func String() string {
	return Version + " (" + Commit + ") built " + BuildTime
}
