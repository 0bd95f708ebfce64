package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/cloudcmds/lazybin/format"
)

// loadContainer reads and parses a container file. With --verbose, loader
// debug events go to stderr.
func loadContainer(path string) (*format.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var opts []format.Option
	if flagVerbose {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			With().Timestamp().Logger()
		opts = append(opts, format.WithLogger(logger))
	}
	return format.Load(data, opts...)
}
