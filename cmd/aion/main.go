package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := buildRootCommand().Execute(); err != nil {
		log.Error().Err(err).Msg("aion failed")
		os.Exit(1)
	}
}
