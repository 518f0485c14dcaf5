package main

import (
	"os"

	"github.com/danmuck/monctl/internal/app"
)

// version is stamped by the build; the default marks a source build.
var version = "0.3.0-dev"

func main() {
	os.Exit(app.New(version).Run(os.Args[1:]))
}
