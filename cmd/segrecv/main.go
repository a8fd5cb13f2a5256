package main

import (
	"os"

	"github.com/sheerbytes/segfs/internal/cli/receiver"
)

func main() {
	receiver.Run(os.Args[1:])
}
