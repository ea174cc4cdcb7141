package subcmd

import (
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/mengelbart/glpipe/cmdmain"
	"github.com/mengelbart/glpipe/softgl"
)

func init() {
	cmdmain.RegisterSubCmd("version", func() cmdmain.SubCmd { return newVersion() })
}

// Version reports the build and the render backend the binary was built
// with.
type Version struct {
	path      string
	version   string
	gitCommit string
	gitDate   string
	goVersion string
}

func newVersion() *Version {
	v := &Version{
		path:      "github.com/mengelbart/glpipe",
		version:   "(devel)",
		goVersion: runtime.Version(),
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return v
	}
	if info.Main.Path != "" {
		v.path = info.Main.Path
	}
	if info.Main.Version != "" {
		v.version = info.Main.Version
	}
	dirty := false
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			v.gitCommit = setting.Value
		case "vcs.time":
			v.gitDate = setting.Value
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	if dirty {
		v.gitCommit += "+dirty"
	}
	return v
}

// Exec implements cmdmain.SubCmd.
func (v *Version) Exec(cmd string, args []string) error {
	fs := flag.NewFlagSet("version", flag.ExitOnError)
	short := fs.Bool("short", false, "Print the version number only")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Print version and render backend information

Usage:
	%s version [flags]

Flags:
`, cmd)
		fs.PrintDefaults()
		fmt.Fprintln(os.Stderr)
	}
	fs.Parse(args)

	if *short {
		fmt.Fprintln(os.Stdout, v.version)
		return nil
	}
	gpu, err := softgl.New()
	if err != nil {
		return err
	}
	return v.write(os.Stdout, gpu)
}

func (v *Version) write(w io.Writer, gpu *softgl.GPU) error {
	api := "GLES2"
	if gpu.IsGLES3() {
		api = "GLES3"
	}
	ids := gpu.Registry().IDs()
	effects := make([]string, len(ids))
	for i, id := range ids {
		effects[i] = id.String()
	}
	_, err := fmt.Fprintf(w, `glpipe %s (%s)
	Git commit:	%s
	Built:		%s
	Go version:	%s
	Backend:	softgl %s
	Effects:	%s
`, v.version, v.path, v.gitCommit, v.gitDate, v.goVersion, api, strings.Join(effects, ", "))
	return err
}

// Help implements cmdmain.SubCmd.
func (v *Version) Help() string {
	return "Print version and render backend information"
}
