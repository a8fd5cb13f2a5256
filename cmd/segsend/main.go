package main

import (
	"os"

	"github.com/sheerbytes/segfs/internal/cli/sender"
)

func main() {
	sender.Run(os.Args[1:])
}
