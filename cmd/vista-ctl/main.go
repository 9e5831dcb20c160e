package main

import (
	"fmt"
	"os"

	"vista/internal/ipc"
)

func main() {
	cmd := ipc.CmdTrigger
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	if err := ipc.SendCommand(cmd); err != nil {
		fmt.Println("vista not running:", err)
		os.Exit(1)
	}
}
