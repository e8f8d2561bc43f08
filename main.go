package main

import (
	"github.com/furisto/scout/frontend/cli/cmd"
)

func main() {
	cmd.Execute()
}
