package streams

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/samaelod/portgen/config"
	"github.com/samaelod/portgen/types"
)

// WriteConfig emits a stream config as a Lua script that round-trips
// through ReadStreamFile.
func WriteConfig(w io.Writer, cfg *types.StreamConfig) error {
	fmt.Fprintln(w, "local config = {}")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "-- GLOBALS ----------------------------------------")
	fmt.Fprintln(w, "config.globals = {")
	fmt.Fprintf(w, "\tloop_mode = %v,\n", cfg.Globals.LoopMode)
	fmt.Fprintf(w, "\tloop_delay_ms = %d,\n", cfg.Globals.LoopDelayMs)
	if cfg.Globals.RateAccuracy != "" {
		fmt.Fprintf(w, "\trate_accuracy = %q,\n", cfg.Globals.RateAccuracy)
	}
	fmt.Fprintln(w, "}")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "-- STREAMS ----------------------------------------")
	fmt.Fprintln(w, "config.streams = {")
	for _, s := range cfg.Streams {
		fmt.Fprintln(w, "\t{")
		fmt.Fprintf(w, "\t\tname = %q,\n", s.Name)
		fmt.Fprintf(w, "\t\tcount = %d,\n", s.Count)
		fmt.Fprintf(w, "\t\tgap_usec = %d,\n", s.GapUsec)
		fmt.Fprintf(w, "\t\tburst_delay_usec = %d,\n", s.BurstDelayUsec)
		fmt.Fprintln(w, "\t\tpackets = {")
		for _, p := range s.Packets {
			fmt.Fprintf(w, "\t\t\t%q,\n", p)
		}
		fmt.Fprintln(w, "\t\t},")
		fmt.Fprintln(w, "\t},")
	}
	fmt.Fprintln(w, "}")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "return config")

	return nil
}

// SaveToRecent writes the config to a fresh numbered file in the recent
// directory, based on the original file's name. Returns the new path.
func SaveToRecent(cfg *types.StreamConfig, originalPath string) (string, error) {
	appConfig, err := config.LoadDefault()
	if err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	recentDir := appConfig.RecentDir
	if recentDir == "" {
		recentDir = "recent"
	}

	if err := os.MkdirAll(recentDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recent directory: %w", err)
	}

	baseName := filepath.Base(originalPath)
	nameWithoutExt := strings.TrimSuffix(baseName, filepath.Ext(baseName))

	counter := 1
	var newPath string
	for {
		newPath = filepath.Join(recentDir, fmt.Sprintf("%s_%d.lua", nameWithoutExt, counter))
		if _, err := os.Stat(newPath); os.IsNotExist(err) {
			break
		}
		counter++
	}

	f, err := os.Create(newPath)
	if err != nil {
		return "", fmt.Errorf("failed to create stream file: %w", err)
	}
	defer f.Close()

	if err := WriteConfig(f, cfg); err != nil {
		return "", fmt.Errorf("failed to write stream config: %w", err)
	}

	return newPath, nil
}
