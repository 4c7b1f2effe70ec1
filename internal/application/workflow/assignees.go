package workflow

import (
	"context"
	"fmt"
	"sort"

	"github.com/smartdocs/smart-docs/internal/application/port"
	"github.com/smartdocs/smart-docs/internal/domain/entity"
	domainwf "github.com/smartdocs/smart-docs/internal/domain/workflow"
)

// AssigneeResolver expands a step's assignee rules to a concrete set of
// active user ids. Resolution reads the directory fresh on every call so
// role and department membership changes take effect at the next
// instantiation, never retroactively.
type AssigneeResolver struct {
	users port.UserDirectory
}

// NewAssigneeResolver creates a new AssigneeResolver
func NewAssigneeResolver(users port.UserDirectory) *AssigneeResolver {
	return &AssigneeResolver{users: users}
}

// Resolve returns the deduplicated, sorted user ids matching the rules.
// An empty result is valid: the engine auto-skips unassignable steps.
func (r *AssigneeResolver) Resolve(ctx context.Context, rules []entity.AssigneeRule) ([]int64, error) {
	seen := make(map[int64]bool)

	for _, rule := range rules {
		switch rule.AssigneeType {
		case entity.AssigneeTypeUser:
			if rule.UserID == nil {
				return nil, fmt.Errorf("%w: user assignee rule %d missing user_id", domainwf.ErrValidation, rule.ID)
			}
			user, err := r.users.GetByID(ctx, *rule.UserID)
			if err != nil {
				return nil, fmt.Errorf("resolve user %d: %w", *rule.UserID, err)
			}
			if user != nil && user.IsActive {
				seen[user.ID] = true
			}

		case entity.AssigneeTypeRole:
			if rule.AssigneeValue == nil {
				return nil, fmt.Errorf("%w: role assignee rule %d missing assignee_value", domainwf.ErrValidation, rule.ID)
			}
			users, err := r.users.ListByRole(ctx, *rule.AssigneeValue)
			if err != nil {
				return nil, fmt.Errorf("resolve role %q: %w", *rule.AssigneeValue, err)
			}
			for _, u := range users {
				if u.IsActive {
					seen[u.ID] = true
				}
			}

		case entity.AssigneeTypeDepartment:
			if rule.AssigneeValue == nil {
				return nil, fmt.Errorf("%w: department assignee rule %d missing assignee_value", domainwf.ErrValidation, rule.ID)
			}
			users, err := r.users.ListByDepartment(ctx, *rule.AssigneeValue)
			if err != nil {
				return nil, fmt.Errorf("resolve department %q: %w", *rule.AssigneeValue, err)
			}
			for _, u := range users {
				if u.IsActive {
					seen[u.ID] = true
				}
			}

		default:
			return nil, fmt.Errorf("%w: unknown assignee type %q", domainwf.ErrValidation, rule.AssigneeType)
		}
	}

	ids := make([]int64, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids, nil
}
