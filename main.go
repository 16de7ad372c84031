package main

import (
	"os"

	"github.com/JakWai01/http-mount/cmd/http-mount/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
