package main

import (
	"fmt"
	"io"
	"runtime"

	"github.com/spf13/cobra"

	"mercator-hq/tribune/pkg/telemetry/health"
)

// Set with -ldflags "-X main.Version=... -X main.GitCommit=... -X main.BuildDate=...".
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

var versionFlags struct {
	format string
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long: `Print the version, commit and build date. The same information is served
at /version by "tribune serve".`,
	RunE: printVersion,
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().StringVar(&versionFlags.format, "format", "text", "output format: text, json, yaml")
}

func buildInfo() health.VersionInfo {
	return health.VersionInfo{
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// VersionReport is the result of the version command.
type VersionReport struct {
	health.VersionInfo `yaml:",inline"`
	Platform           string `json:"platform" yaml:"platform"`
}

// RenderText prints one field per line.
func (v *VersionReport) RenderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Tribune %s\ncommit:   %s\nbuilt:    %s\ngo:       %s\nplatform: %s\n",
		v.Version, v.Commit, v.BuildTime, v.GoVersion, v.Platform)
	return err
}

func printVersion(cmd *cobra.Command, args []string) error {
	return printResult(versionFlags.format, &VersionReport{
		VersionInfo: buildInfo(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
	})
}
