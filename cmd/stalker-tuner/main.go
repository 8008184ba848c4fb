// Command stalker-tuner: serve a Stalker/Ministra portal's live channels as an M3U playlist,
// or run one step of the portal flow by hand.
//
//	serve      HTTP playlist + link resolver (the normal mode)
//	handshake  force a new portal session and profile sync
//	index      fetch genres and channels and store the catalog
//	playlist   write the M3U playlist to stdout or a file
//	identity   print the virtual STB identity for a MAC
//	resolve    resolve one catalog index to a stream URL
//	check      probe a running instance's endpoints
package main

import (
	"context"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func main() {
	cmd := &cli.Command{
		Name:    "stalker-tuner",
		Usage:   "Stalker portal session manager and M3U playlist server",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "env-file",
				Value: ".env",
				Usage: "KEY=value file loaded into the environment before config",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "YAML config file (keys map to STALKER_TUNER_*; env wins)",
			},
			&cli.StringFlag{
				Name:  "portal",
				Usage: "portal base URL (overrides STALKER_TUNER_PORTAL_URL)",
			},
			&cli.StringFlag{
				Name:  "mac",
				Usage: "device MAC (overrides STALKER_TUNER_MAC)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error (overrides STALKER_TUNER_LOG_LEVEL)",
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			handshakeCommand,
			indexCommand,
			playlistCommand,
			identityCommand,
			resolveCommand,
			checkCommand,
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}
