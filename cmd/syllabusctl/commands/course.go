package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v3"

	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/export"
	"github.com/yungbote/syllabridge-backend/internal/platform/dbctx"
)

// CourseShowAction prints a course by --id, or every match for --title.
func CourseShowAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseUUIDFlag("id", cmd.String("id"))
	if err != nil {
		return err
	}
	owner, err := parseUUIDFlag("owner", cmd.String("owner"))
	if err != nil {
		return err
	}
	title := strings.TrimSpace(cmd.String("title"))
	if id == nil && title == "" {
		return fmt.Errorf("one of --id or --title is required")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	dbc := dbctx.New(ctx)
	var found []*courses.Course
	if id != nil {
		c, err := appCtx.Services.Courses.GetByID(dbc, *id, true)
		if err != nil {
			return err
		}
		found = append(found, c)
	} else {
		matches, err := appCtx.Services.Courses.FindByTitle(dbc, title, owner)
		if err != nil {
			return err
		}
		for _, m := range matches {
			c, err := appCtx.Services.Courses.GetByID(dbc, m.ID, true)
			if err != nil {
				return err
			}
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		fmt.Println("no courses found")
		return nil
	}
	for _, c := range found {
		renderCourse(c)
	}
	return nil
}

func renderCourse(c *courses.Course) {
	fmt.Printf("\n%s  %s\n", c.ID, c.Title)
	fmt.Printf("  owner:      %s\n", c.OwnerID)
	fmt.Printf("  code:       %s\n", c.CourseCode)
	fmt.Printf("  instructor: %s\n", c.Instructor)
	fmt.Printf("  term:       %s\n", c.Term)
	fmt.Printf("  visibility: %s\n\n", c.Visibility)

	if len(c.Events) == 0 {
		return
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Start", "Category", "Title", "Location")
	for _, e := range c.Events {
		table.Append(e.StartTime.Format("2006-01-02 15:04"), e.Category, e.Title, e.Location)
	}
	table.Render()
}

// CourseExportAction writes an owner's courses and events to an xlsx file.
func CourseExportAction(ctx context.Context, cmd *cli.Command) error {
	owner, err := parseUUIDFlag("owner", cmd.String("owner"))
	if err != nil {
		return err
	}
	if owner == nil {
		return fmt.Errorf("--owner is required")
	}
	out := cmd.String("out")

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	list, err := appCtx.Services.Courses.ListByOwner(dbctx.New(ctx), *owner, true)
	if err != nil {
		return err
	}
	raw, err := export.Bytes(list)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, raw, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	appCtx.Log.Info("export.xlsx.ok", "owner_id", owner.String(), "courses", len(list), "path", out)
	fmt.Printf("wrote %d courses to %s\n", len(list), out)
	return nil
}

// CourseDeleteAction removes a course regardless of owner.
func CourseDeleteAction(ctx context.Context, cmd *cli.Command) error {
	id, err := parseUUIDFlag("id", cmd.String("id"))
	if err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("--id is required")
	}

	appCtx, err := NewAppContext(ctx, cmd.String("env"))
	if err != nil {
		return err
	}
	defer appCtx.Close()

	if err := appCtx.Services.Creator.Delete(ctx, *id, nil); err != nil {
		return err
	}
	fmt.Printf("deleted course %s\n", id)
	return nil
}
