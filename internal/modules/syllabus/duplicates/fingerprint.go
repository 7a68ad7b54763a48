package duplicates

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/syllabridge-backend/internal/domain/courses"
	"github.com/yungbote/syllabridge-backend/internal/domain/syllabus"
	"github.com/yungbote/syllabridge-backend/internal/modules/syllabus/similarity"
)

// Fingerprint keys cached match lists. Hash covers everything that decides
// the result for one requester; OwnerID is kept separately for invalidation.
type Fingerprint struct {
	OwnerID uuid.UUID
	Hash    string
}

func NewFingerprint(cand *syllabus.CandidateCourse, scope courses.SearchScope) Fingerprint {
	inst := ""
	if scope.InstitutionID != nil {
		inst = scope.InstitutionID.String()
	}
	identifier := ""
	if cand != nil && !similarity.IsPlaceholderIdentifier(cand.Identifier) {
		identifier = strings.ToLower(strings.TrimSpace(cand.Identifier))
	}
	title, term := "", ""
	if cand != nil {
		title = similarity.NormalizeTitle(cand.Title)
		term = similarity.NormalizeTitle(cand.Term)
	}
	parts := []string{
		title,
		identifier,
		term,
		scope.RequesterID.String(),
		string(scope.Mode),
		inst,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return Fingerprint{OwnerID: scope.RequesterID, Hash: hex.EncodeToString(sum[:])}
}
