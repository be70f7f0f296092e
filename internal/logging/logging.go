// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"os"

	log "github.com/sirupsen/logrus"
)

// Term is the logfile target meaning standard output.
const Term = "term"

// Level maps a -v count to a log level: warnings by default, info at one,
// debug from two.
func Level(verbosity int) log.Level {
	switch {
	case verbosity <= 0:
		return log.WarnLevel
	case verbosity == 1:
		return log.InfoLevel
	}
	return log.DebugLevel
}

// Setup points the standard logger at targets, each a file path or Term.
// With no targets logging stays on standard error. The returned function
// closes any opened files.
func Setup(verbosity int, targets []string) (func() error, error) {
	log.SetLevel(Level(verbosity))
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	var writers []io.Writer
	var files []*os.File
	closeAll := func() error {
		var first error
		for _, f := range files {
			if err := f.Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	}
	for _, t := range targets {
		if t == Term {
			writers = append(writers, os.Stdout)
			continue
		}
		f, err := os.OpenFile(t, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			closeAll()
			return nil, err
		}
		files = append(files, f)
		writers = append(writers, f)
	}
	switch len(writers) {
	case 0:
		log.SetOutput(os.Stderr)
	case 1:
		log.SetOutput(writers[0])
	default:
		log.SetOutput(io.MultiWriter(writers...))
	}
	return closeAll, nil
}
