package subcmd

import (
	"flag"
	"fmt"
	"os"

	"github.com/mengelbart/glpipe/cmdmain"
)

func init() {
	cmdmain.RegisterSubCmd("help", func() cmdmain.SubCmd { return new(help) })
}

type help struct{}

// Exec implements cmdmain.SubCmd. With a command name it prints that
// command's summary, otherwise the global usage.
func (h *help) Exec(cmd string, args []string) error {
	if len(args) == 0 {
		flag.Usage()
		return nil
	}
	sub, ok := cmdmain.Lookup(args[0])
	if !ok {
		return fmt.Errorf("unknown command: %q", args[0])
	}
	fmt.Fprintf(os.Stderr, "%s %s: %s\n\nRun `%s %s -h` to list its flags\n", cmd, args[0], sub.Help(), cmd, args[0])
	return nil
}

// Help implements cmdmain.SubCmd.
func (h *help) Help() string {
	return "Print help for glpipe or one of its commands"
}
