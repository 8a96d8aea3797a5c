package main

import (
	"context"
	"log"
	"os"

	"github.com/urfave/cli/v3"
)

func main() {
	envFlag := &cli.StringFlag{
		Name:    "env-file",
		Aliases: []string{"e"},
		Usage:   "Path to an optional .env file",
		Value:   ".env",
	}

	app := &cli.Command{
		Name:   "battlebrief",
		Usage:  "Summarize field reports with ethics screening",
		Flags:  []cli.Flag{envFlag},
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API (default)",
				Action: serve,
			},
			{
				Name:   "migrate",
				Usage:  "Apply database migrations and exit",
				Action: migrate,
			},
			{
				Name:  "sweep",
				Usage: "Apply the per-user retention cap to every user and exit",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "cap",
						Usage: "Override RETENTION_CAP for this run",
					},
				},
				Action: sweep,
			},
			{
				Name:      "user-status",
				Usage:     "Disable a user account, or re-enable it with --enable",
				ArgsUsage: "<username>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "enable",
						Usage: "Re-enable the account instead of disabling it",
					},
				},
				Action: setUserDisabled,
			},
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		log.Fatalf("application error: %v", err)
	}
}
