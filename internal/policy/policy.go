// Package policy decides whether an actor may perform an action on a
// project or file. Rules live in an embedded Casbin model and policy; the
// caller only supplies the actor, the action and the target's owners and
// moderation status.
package policy

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"fieldwork-backend-go/internal/models"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

type Action string

const (
	ActionView        Action = "view"
	ActionCreate      Action = "create"
	ActionListOwn     Action = "list_own"
	ActionListAll     Action = "list_all"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionUpload      Action = "upload"
	ActionComment     Action = "comment"
	ActionLike        Action = "like"
	ActionModerate    Action = "moderate"
	ActionManageUsers Action = "manage_users"
	ActionViewMetrics Action = "view_metrics"
)

const (
	relAny      = "any"
	relOwner    = "owner"
	relApproved = "approved"

	subAnonymous = "anonymous"
)

// Target describes the object of an action. OwnerIDs holds every user that
// counts as an owner: the project owner, and for files also the uploader.
type Target struct {
	OwnerIDs []string
	Status   models.Status
}

func ProjectTarget(p models.Project) Target {
	return Target{OwnerIDs: []string{p.OwnerID}, Status: p.Status}
}

func FileTarget(f models.File) Target {
	return Target{OwnerIDs: []string{f.UploadedBy, f.ProjectOwnerID}, Status: f.Status}
}

type Policy struct {
	enforcer *casbin.SyncedEnforcer
}

func New() (*Policy, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}
	if err := loadPolicy(enforcer, embeddedPolicy); err != nil {
		return nil, err
	}
	return &Policy{enforcer: enforcer}, nil
}

// MustNew is New for wiring code and tests where the embedded policy is
// known to be valid.
func MustNew() *Policy {
	p, err := New()
	if err != nil {
		panic(err)
	}
	return p
}

func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		switch {
		case parts[0] == "p" && len(parts) == 4:
			if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
				return fmt.Errorf("add policy %v: %w", parts[1:], err)
			}
		case parts[0] == "g" && len(parts) == 3:
			if _, err := enforcer.AddGroupingPolicy(parts[1], parts[2]); err != nil {
				return fmt.Errorf("add grouping policy %v: %w", parts[1:], err)
			}
		default:
			return fmt.Errorf("malformed policy line %q", line)
		}
	}
	return nil
}

// Can reports whether actor may perform action on target. Enforcement errors
// deny.
func (p *Policy) Can(actor models.Actor, action Action, target Target) bool {
	sub := subject(actor)
	for _, rel := range relations(actor, target) {
		allowed, err := p.enforcer.Enforce(sub, string(action), rel)
		if err != nil {
			return false
		}
		if allowed {
			return true
		}
	}
	return false
}

// CanGlobal checks actions that have no particular target, such as creating a
// project or listing every submission.
func (p *Policy) CanGlobal(actor models.Actor, action Action) bool {
	return p.Can(actor, action, Target{})
}

func subject(actor models.Actor) string {
	if !actor.Authenticated() {
		return subAnonymous
	}
	if actor.Role == models.RoleAdmin {
		return string(models.RoleAdmin)
	}
	return string(models.RoleUser)
}

func relations(actor models.Actor, target Target) []string {
	rels := []string{relAny}
	if actor.Authenticated() {
		for _, owner := range target.OwnerIDs {
			if owner != "" && owner == actor.ID {
				rels = append(rels, relOwner)
				break
			}
		}
	}
	if target.Status == models.StatusApproved {
		rels = append(rels, relApproved)
	}
	return rels
}
