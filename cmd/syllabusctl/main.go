package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/yungbote/syllabridge-backend/cmd/syllabusctl/commands"
)

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "path to an env file",
		Value: ".env",
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "syllabusctl",
		Usage: "operator tooling for the syllabus ingestion service",
		Commands: []*cli.Command{
			{
				Name:   "status",
				Usage:  "show course totals and job counts per state",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.StatusAction,
			},
			{
				Name:  "course",
				Usage: "course commands",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "show a course and its events",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{Name: "id", Usage: "course id"},
							&cli.StringFlag{Name: "title", Usage: "exact course title"},
							&cli.StringFlag{Name: "owner", Usage: "restrict --title lookups to an owner"},
						},
						Action: commands.CourseShowAction,
					},
					{
						Name:  "export",
						Usage: "export an owner's courses to xlsx",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{Name: "owner", Usage: "owner id", Required: true},
							&cli.StringFlag{Name: "out", Usage: "output path", Value: "courses.xlsx"},
						},
						Action: commands.CourseExportAction,
					},
					{
						Name:  "delete",
						Usage: "delete a course and its events",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{Name: "id", Usage: "course id", Required: true},
						},
						Action: commands.CourseDeleteAction,
					},
				},
			},
			{
				Name:  "jobs",
				Usage: "ingestion job commands",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "list recent jobs",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{Name: "state", Usage: "filter by state"},
							&cli.StringFlag{Name: "owner", Usage: "filter by owner id"},
							&cli.IntFlag{Name: "limit", Usage: "max rows", Value: 50},
						},
						Action: commands.JobsListAction,
					},
					{
						Name:   "sweep",
						Usage:  "mark abandoned in-flight jobs stale",
						Flags:  []cli.Flag{envFlag()},
						Action: commands.JobsSweepAction,
					},
				},
			},
			{
				Name:  "token",
				Usage: "sign a bearer token for local API testing",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{Name: "owner", Usage: "owner id", Required: true},
					&cli.StringFlag{Name: "institution", Usage: "institution id"},
					&cli.DurationFlag{Name: "ttl", Usage: "token lifetime", Value: 24 * time.Hour},
				},
				Action: commands.TokenAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
