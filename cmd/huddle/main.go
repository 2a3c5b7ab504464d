package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Huddle/internal/cli"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := cli.NewRootCmd().Execute(); err != nil {
		log.Error().Err(err).Str("module", "main").Msg("huddle")
		os.Exit(1)
	}
}
