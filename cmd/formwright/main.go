// Command formwright runs the form platform server and its CLI tooling.
package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/formwright/formwright/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("formwright exited with error")
		os.Exit(1)
	}
}
