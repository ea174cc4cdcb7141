package main

import (
	"github.com/mengelbart/glpipe/cmdmain"
	_ "github.com/mengelbart/glpipe/subcmd"
)

func main() {
	cmdmain.Main()
}
