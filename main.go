package main

import (
	"fmt"
	"log"
	"os"
)

// @title        Book Club API
// @version      1.0
// @description  Books catalog with ratings and top ranking, and members loans.
// @BasePath     /

// Set at build time with -ldflags "-X main.GitCommit=... -X main.GitTag=... -X main.BuildTime=...".
var (
	GitCommit string
	GitTag    string
	BuildTime string
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "version" {
		fmt.Printf("bookclub %s (commit %s, built %s)\n", GitTag, GitCommit, BuildTime)
		return
	}

	app, err := NewApp()
	if err != nil {
		log.Fatal("bookclub failed to start: ", err)
	}
	if err = app.Run(); err != nil {
		log.Fatal("bookclub exited with error, check the logs for details: ", err)
	}
}
