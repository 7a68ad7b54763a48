package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/yungbote/syllabridge-backend/internal/domain/jobs"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// StatusAction prints catalog totals and the job count per state.
func StatusAction(ctx context.Context, cmd *cli.Command) error {
	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	dbc := dbctx.New(ctx)
	counts, err := appCtx.Services.Courses.Counts(dbc)
	if err != nil {
		return fmt.Errorf("count courses: %w", err)
	}
	byState, err := appCtx.Services.Jobs.CountByState(dbc)
	if err != nil {
		return fmt.Errorf("count jobs: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Metric", "Value")
	table.Append("courses", fmt.Sprintf("%d", counts.Courses))
	table.Append("course events", fmt.Sprintf("%d", counts.Events))
	table.Append("owners", fmt.Sprintf("%d", counts.DistinctOwner))
	for _, s := range jobs.AllStates {
		table.Append("jobs "+string(s), fmt.Sprintf("%d", byState[s]))
	}
	table.Render()
	return nil
}
