package version

var (
	// GitCommit is the current HEAD set using ldflags.
	GitCommit string

	// Version is the built software's version.
	Version = PASemVer
)

func init() {
	if GitCommit != "" {
		Version += "-" + GitCommit
	}
}

// PASemVer is the current semantic version of the proof API.
const PASemVer = "0.3.0"
