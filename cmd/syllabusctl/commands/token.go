package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/yungbote/syllabridge-backend/internal/platform/authtoken"
	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/envutil"
)

// TokenAction signs a bearer token for local testing against the API.
func TokenAction(ctx context.Context, cmd *cli.Command) error {
	if envFile := cmd.String("env"); envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	owner, err := parseUUIDFlag("owner", cmd.String("owner"))
	if err != nil {
		return err
	}
	if owner == nil {
		return fmt.Errorf("--owner is required")
	}
	institution, err := parseUUIDFlag("institution", cmd.String("institution"))
	if err != nil {
		return err
	}

	token, err := authtoken.Issue(
		envutil.String("JWT_SECRET_KEY", ""),
		ctxutil.Requester{OwnerID: *owner, InstitutionID: institution},
		cmd.Duration("ttl"),
	)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
