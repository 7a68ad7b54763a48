package gcp

import (
	"strings"

	"google.golang.org/api/option"

	"github.com/yungbote/syllabridge-backend/internal/platform/envutil"
)

// clientOptions prepends credentials to extra. Inline JSON may come from
// GOOGLE_APPLICATION_CREDENTIALS_JSON or GOOGLE_APPLICATION_CREDENTIALS;
// anything else in the latter is a key file path. Without either the client
// libraries use ambient credentials (workload identity, gcloud).
func clientOptions(extra ...option.ClientOption) []option.ClientOption {
	creds := envutil.String("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	if creds == "" {
		creds = envutil.String("GOOGLE_APPLICATION_CREDENTIALS", "")
	}
	var opts []option.ClientOption
	switch {
	case creds == "":
	case strings.HasPrefix(creds, "{"):
		opts = append(opts, option.WithCredentialsJSON([]byte(creds)))
	default:
		opts = append(opts, option.WithCredentialsFile(creds))
	}
	return append(opts, extra...)
}
