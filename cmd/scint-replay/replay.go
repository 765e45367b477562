// Command scint-replay reprocesses a captured serial transcript through the
// stream interpreter, recording runs to a database and optionally writing
// the autosave files. Useful for re-decoding captures after interpreter
// changes without the instrument attached.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"os"

	_ "modernc.org/sqlite"

	"github.com/scint-data/spectrum.report/internal/commfil"
	"github.com/scint-data/spectrum.report/internal/db"
	"github.com/scint-data/spectrum.report/internal/export"
)

var (
	file        = flag.String("file", "", "Transcript file of raw serial bytes (required)")
	dbFile      = flag.String("db", "replay.db", "SQLite database to record runs into")
	autosaveDir = flag.String("autosave", "", "Autosave directory (empty disables exports)")
	plots       = flag.Bool("plots", false, "Render PNG plots alongside autosave files")
)

func main() {
	flag.Parse()

	if *file == "" {
		flag.Usage()
		os.Exit(1)
	}

	data, err := os.ReadFile(*file)
	if err != nil {
		log.Fatalf("failed to read transcript: %v", err)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	var exporter commfil.Exporter
	if *autosaveDir != "" {
		autosaver, err := export.NewAutosaver(*autosaveDir)
		if err != nil {
			log.Fatalf("failed to prepare autosave directory: %v", err)
		}
		autosaver.WritePlots = *plots
		exporter = autosaver
	}

	sess := commfil.NewSession(database, exporter)

	// Feed the transcript one newline-terminated segment at a time, the same
	// framing the live monitor produces. Stray newline bytes inside a binary
	// block just become extra cut points for the reassembler.
	payloads := 0
	problems := 0
	for _, payload := range bytes.SplitAfter(data, []byte{'\n'}) {
		if len(payload) == 0 {
			continue
		}
		payloads++
		if err := sess.HandlePayload(payload); err != nil {
			problems++
			log.Printf("interpreter error at payload %d: %v", payloads, err)
		}
	}

	if err := sess.Close(); err != nil {
		log.Printf("error flushing session: %v", err)
	}

	runs, err := database.ListRuns(0)
	if err != nil {
		log.Fatalf("failed to list recorded runs: %v", err)
	}

	fmt.Printf("Replayed %d payloads (%d errors) into %s\n", payloads, problems, *dbFile)
	for _, run := range runs {
		switch run.Kind {
		case db.RunKindSpectrum:
			fmt.Printf("  %s  %-8s  protocol=%q sample=%d channels=%d complete=%v\n",
				run.ID, run.Kind, run.Protocol, run.SampleNumber, run.Channels, run.Complete)
		default:
			fmt.Printf("  %s  %-8s  protocol=%q sample=%d started=%s\n",
				run.ID, run.Kind, run.Protocol, run.SampleNumber, run.StartTime)
		}
	}
}
