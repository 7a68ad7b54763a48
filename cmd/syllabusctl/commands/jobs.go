package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	jobsrepo "github.com/yungbote/syllabridge-backend/internal/data/repos/jobs"
	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// JobsListAction lists recent ingestion jobs, optionally filtered.
func JobsListAction(ctx context.Context, cmd *cli.Command) error {
	owner, err := parseUUIDFlag("owner", cmd.String("owner"))
	if err != nil {
		return err
	}
	state := jobs.State(strings.ToUpper(strings.TrimSpace(cmd.String("state"))))
	if state != "" && !state.Valid() {
		return fmt.Errorf("--state: unknown state %q", state)
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	list, err := appCtx.Services.Jobs.List(dbctx.New(ctx), jobsrepo.ListFilter{
		OwnerID: owner,
		State:   state,
		Limit:   int(cmd.Int("limit")),
	})
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Job ID", "State", "Progress", "Attempts", "File", "Error", "Updated")
	for _, j := range list {
		table.Append(
			j.ID.String(),
			string(j.State),
			fmt.Sprintf("%d%%", j.ProgressPercent),
			fmt.Sprintf("%d", j.AttemptCount),
			j.Filename,
			j.ErrorKind,
			j.UpdatedAt.Format("2006-01-02 15:04:05"),
		)
	}
	table.Render()
	return nil
}

// JobsSweepAction runs a single stale sweep.
func JobsSweepAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	n, err := appCtx.Services.Sweeper.Sweep(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("marked %d jobs stale\n", n)
	return nil
}
