package infra

import (
	"fmt"
	"runtime"
)

const (
	programName = "txcommit"
)

// set by -ldflags at build time
var (
	Version   string
	CommitSHA string
	BuiltTime string
)

func GetVersionInfo() string {
	if Version == "" {
		Version = "dev"
	}
	return fmt.Sprintf("%s:\n Version: %s\n Go version: %s\n Git commit: %s\n Built: %s\n OS/Arch: %s\n",
		programName,
		Version,
		runtime.Version(),
		CommitSHA,
		BuiltTime,
		fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	)
}
