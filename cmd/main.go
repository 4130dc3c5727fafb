package main

import (
	"flag"
	"log"
	"os"

	"github.com/samaelod/portgen/tui"
)

var version = "dev"

func main() {
	streamFile := flag.String("s", "", "Lua stream script to load")
	replayFile := flag.String("r", "", "capture file to replay")
	filter := flag.String("f", "", "BPF filter for capture sessions")
	flag.Parse()

	// Only create debug log in dev builds
	if version == "dev" {
		f, err := os.OpenFile("debug.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			log.SetOutput(f)
		}
	}

	opts := tui.Options{
		StreamFile:    *streamFile,
		ReplayFile:    *replayFile,
		CaptureFilter: *filter,
	}

	if err := tui.Run(version, opts); err != nil {
		log.Fatal(err)
	}
}
