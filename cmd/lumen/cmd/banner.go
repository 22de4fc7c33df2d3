package cmd

import (
	"fmt"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

const banner = `
  _
 | |  _   _ _ __ ___   ___ _ __
 | | | | | | '_ ` + "`" + ` _ \ / _ \ '_ \
 | |_| |_| | | | | | |  __/ | | |
 |____\__,_|_| |_| |_|\___|_| |_|

`

func printBanner() {
	fmt.Printf("\x1b[34m%s\x1b[0m", banner)
	fmt.Printf("\x1b[32m  Control Panel Backend - Version %s\x1b[0m\n\n", Version)
}
