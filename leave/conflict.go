package leave

import (
	"context"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
)

// Scope selects which colleagues are compared against a request.
type Scope string

const (
	ScopeAll     Scope = "all"
	ScopeManager Scope = "manager"
	ScopeOrgUnit Scope = "org_unit"
	ScopeTeam    Scope = "team"
)

func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case "":
		return ScopeAll, nil
	case ScopeAll, ScopeManager, ScopeOrgUnit, ScopeTeam:
		return Scope(s), nil
	}
	return "", errors.Newf("unknown conflict scope %q", s)
}

// Overlaps reports whether two requests share a day. Two half-days on the
// same single day only overlap when they take the same half.
func Overlaps(a, b Request) bool {
	if !a.Period().Overlaps(b.Period()) {
		return false
	}
	if a.IsHalfDay() && b.IsHalfDay() && a.DateFrom.Equal(a.DateTo) && b.DateFrom.Equal(b.DateTo) {
		return a.Label == b.Label
	}
	return true
}

// Conflict is a colleague's active request overlapping the one inspected.
type Conflict struct {
	Request Request
	User    User
}

type ConflictDetector struct {
	repo Repository
}

func NewConflictDetector(repo Repository) *ConflictDetector {
	return &ConflictDetector{repo: repo}
}

// Conflicts returns overlapping active requests of colleagues in scope,
// ordered by start date.
func (d *ConflictDetector) Conflicts(ctx context.Context, id RequestID, scope Scope) ([]Conflict, error) {
	req, _, colleagues, err := d.load(ctx, id, scope)
	if err != nil {
		return nil, err
	}
	return d.overlapping(ctx, req, colleagues)
}

// ByTeam groups conflicts by each of the owner's teams.
func (d *ConflictDetector) ByTeam(ctx context.Context, id RequestID) (map[string][]Conflict, error) {
	req, owner, colleagues, err := d.load(ctx, id, ScopeTeam)
	if err != nil {
		return nil, err
	}
	all, err := d.overlapping(ctx, req, colleagues)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]Conflict, len(owner.Teams))
	for _, team := range owner.Teams {
		out[team] = []Conflict{}
		for _, c := range all {
			if slices.Contains(c.User.Teams, team) {
				out[team] = append(out[team], c)
			}
		}
	}
	return out, nil
}

func (d *ConflictDetector) load(ctx context.Context, id RequestID, scope Scope) (Request, User, map[UserID]User, error) {
	req, err := d.repo.GetRequest(ctx, id)
	if err != nil {
		return Request{}, User{}, nil, err
	}
	owner, err := d.repo.GetUser(ctx, req.UserID)
	if err != nil {
		return Request{}, User{}, nil, err
	}
	users, err := d.repo.ListUsers(ctx)
	if err != nil {
		return Request{}, User{}, nil, err
	}
	colleagues := make(map[UserID]User)
	for _, u := range users {
		if u.ID != owner.ID && inScope(owner, u, scope) {
			colleagues[u.ID] = u
		}
	}
	return req, owner, colleagues, nil
}

func (d *ConflictDetector) overlapping(ctx context.Context, req Request, colleagues map[UserID]User) ([]Conflict, error) {
	if len(colleagues) == 0 {
		return nil, nil
	}
	ids := make([]UserID, 0, len(colleagues))
	for id := range colleagues {
		ids = append(ids, id)
	}
	period := req.Period()
	others, err := d.repo.ListRequests(ctx, RequestFilter{UserIDs: ids, Statuses: ActiveStatuses, Overlapping: &period})
	if err != nil {
		return nil, err
	}

	var out []Conflict
	for _, r := range others {
		if Overlaps(req, r) {
			out = append(out, Conflict{Request: r, User: colleagues[r.UserID]})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].Request, out[j].Request
		if !a.DateFrom.Equal(b.DateFrom) {
			return a.DateFrom.Before(b.DateFrom)
		}
		return a.UserID < b.UserID
	})
	return out, nil
}

func inScope(owner, other User, scope Scope) bool {
	switch scope {
	case ScopeManager:
		return owner.ManagerID != "" && other.ManagerID == owner.ManagerID
	case ScopeOrgUnit:
		return owner.OrgUnit != "" && other.OrgUnit == owner.OrgUnit
	case ScopeTeam:
		for _, t := range owner.Teams {
			if slices.Contains(other.Teams, t) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
