package attendance

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"checkin/internal/audit"
)

// BulkRequest applies one status to many students of one session.
type BulkRequest struct {
	SessionID   string
	Status      Status
	Identifiers []string
}

// BulkResult reports how many students were written and which identifiers matched no user.
type BulkResult struct {
	Updated int
	Missing []string
}

// NormalizeIdentifiers trims, drops empties and removes duplicates, keeping first-seen order.
// Matching is case-sensitive.
func NormalizeIdentifiers(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// BulkUpdate upserts the status for every resolvable identifier. Unknown identifiers are
// reported in Missing and do not fail the call. Writes run concurrently inside a batch and
// batches run one after another.
func (s *Service) BulkUpdate(ctx context.Context, who Identity, req BulkRequest) (BulkResult, error) {
	if who.Role != RoleAdmin {
		return BulkResult{}, ErrForbidden
	}
	if err := s.allow(ctx, ActionBulk, who.UserID, s.rules.Bulk); err != nil {
		return BulkResult{}, err
	}

	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return BulkResult{}, invalid("session id is required")
	}
	if !req.Status.Valid() {
		return BulkResult{}, invalid("status is not valid")
	}
	ids := NormalizeIdentifiers(req.Identifiers)
	if len(ids) == 0 {
		return BulkResult{}, ErrEmptyIdentifiers
	}
	if len(ids) > s.maxIdentifiers {
		return BulkResult{}, ErrTooManyIdentifiers
	}

	if _, _, err := s.registry.Lookup(ctx, sessionID); err != nil {
		return BulkResult{}, err
	}

	students, err := s.store.StudentsByNIM(ctx, ids)
	if err != nil {
		return BulkResult{}, fmt.Errorf("resolve identifiers: %w", err)
	}
	if len(students) == 0 {
		return BulkResult{}, ErrNoMatchingUsers
	}

	found := make(map[string]struct{}, len(students))
	for _, st := range students {
		found[st.NIM] = struct{}{}
	}
	missing := []string{}
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}

	now := s.clock.Now()
	for start := 0; start < len(students); start += s.batchSize {
		end := min(start+s.batchSize, len(students))
		g, gctx := errgroup.WithContext(ctx)
		for _, st := range students[start:end] {
			st := st
			g.Go(func() error {
				return s.store.Upsert(gctx, Record{
					UserID:     st.UserID,
					SessionID:  sessionID,
					Status:     req.Status,
					AttendedAt: &now,
				})
			})
		}
		if err := g.Wait(); err != nil {
			return BulkResult{}, fmt.Errorf("upsert attendance batch at %d: %w", start, err)
		}
	}

	s.metrics.BulkWritten(req.Status.String(), len(students))
	s.emit(ctx, audit.NewEvent(audit.ActionBulk, who.UserID, sessionID, map[string]any{
		"status":  req.Status.String(),
		"updated": len(students),
		"missing": len(missing),
	}, now))
	return BulkResult{Updated: len(students), Missing: missing}, nil
}
