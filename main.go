// ./main.go
package main

import (
	"github.com/xkilldash9x/tabpilot/cmd"
)

func main() {
	cmd.Execute()
}
