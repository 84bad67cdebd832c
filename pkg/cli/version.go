package cli

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
)

// BuildInfo carries version information injected at build time.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildDate string
}

// VersionOutput is the JSON shape of the version command.
type VersionOutput struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
	Go      string `json:"go"`
	OS      string `json:"os"`
	Arch    string `json:"arch"`
}

// RunVersion prints version information, falling back to module build
// info when ldflags were not set.
func RunVersion(info BuildInfo, args []string) error {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	version, commit, date := info.Version, info.Commit, info.BuildDate
	if bi, ok := debug.ReadBuildInfo(); ok {
		if version == "dev" || version == "" {
			version = bi.Main.Version
		}
		for _, setting := range bi.Settings {
			switch setting.Key {
			case "vcs.revision":
				if commit == "unknown" || commit == "" {
					commit = setting.Value
				}
			case "vcs.time":
				if date == "unknown" || date == "" {
					date = setting.Value
				}
			case "vcs.modified":
				if setting.Value == "true" {
					commit += "-dirty"
				}
			}
		}
	}

	out := VersionOutput{
		Version: version,
		Commit:  commit,
		Date:    date,
		Go:      runtime.Version(),
		OS:      runtime.GOOS,
		Arch:    runtime.GOARCH,
	}

	if *jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("routerd %s (%s, %s)\n", out.Version, out.Commit, out.Date)
	fmt.Printf("%s %s/%s\n", out.Go, out.OS, out.Arch)
	return nil
}
