// Package utils holds small helpers shared by the CLI and the server.
package utils

// Set at build time with -ldflags "-X".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// BuildInfo describes a truthstore binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	Buildtime string `json:"built_at"`
}

// CurrentBuild returns the build info of the running binary.
func CurrentBuild() BuildInfo {
	return BuildInfo{Version: Version, Sha: Sha, Buildtime: Buildtime}
}
