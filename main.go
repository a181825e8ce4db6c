// insservgo computes SysV init script start/stop order from LSB dependency
// headers and reconciles the S/K symlink farm in each runlevel directory to
// match, the way insserv does.
package main

import (
	"fmt"
	"os"

	"insservgo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "insservgo: %v\n", err)
		os.Exit(1)
	}
}
