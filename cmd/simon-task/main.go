package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/lixenwraith/simon-task/observability"
)

func main() {
	if err := newRootCmd(newApp()).Execute(); err != nil {
		observability.GetLogger().Error("Command failed.", zap.Error(err))
		observability.Sync()
		fmt.Fprintf(os.Stderr, "simon-task: %v\n", err)
		os.Exit(1)
	}
	observability.Sync()
}
