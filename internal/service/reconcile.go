package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"chat-gateway/internal/chain"
	"chat-gateway/internal/models"
	"chat-gateway/internal/repository"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type Action int

const (
	NoChange Action = iota
	Assign
	DemoteAndAssign
)

func (a Action) String() string {
	switch a {
	case Assign:
		return "assign"
	case DemoteAndAssign:
		return "demote_and_assign"
	}
	return "no_change"
}

// Plan is the outcome of comparing a cached identity with the authority's
// answer. Applying it is a single storage transaction.
type Plan struct {
	Action   Action
	UserID   int64
	Username string
	// Demoted is the other holder of Username, renamed to DemotedTo first.
	Demoted   *models.User
	DemotedTo string
}

// PlanReconciliation decides what to do with local given the authority's
// username remote and the user currently holding that name locally, if any.
func PlanReconciliation(local *models.User, remote string, holder *models.User) Plan {
	remote = strings.TrimSpace(remote)
	if local == nil || remote == "" || remote == local.Username {
		return Plan{Action: NoChange}
	}
	p := Plan{Action: Assign, UserID: local.ID, Username: remote}
	if holder != nil && holder.ID != local.ID {
		p.Action = DemoteAndAssign
		p.Demoted = holder
		p.DemotedTo = models.PlaceholderUsername(holder.Address)
	}
	return p
}

// DemotionTarget picks the name a demoted holder moves to. Its placeholder
// is used unless placeholderHolder, another user, already has it; two
// addresses can share a placeholder prefix, so the full address is the
// fallback, as for new users.
func DemotionTarget(holder, placeholderHolder *models.User) string {
	if placeholderHolder != nil && placeholderHolder.ID != holder.ID {
		return holder.Address
	}
	return models.PlaceholderUsername(holder.Address)
}

func (p Plan) Changes() []repository.UsernameChange {
	switch p.Action {
	case Assign:
		return []repository.UsernameChange{{UserID: p.UserID, Username: p.Username}}
	case DemoteAndAssign:
		return []repository.UsernameChange{
			{UserID: p.Demoted.ID, Username: p.DemotedTo},
			{UserID: p.UserID, Username: p.Username},
		}
	}
	return nil
}

// NeedsReconciliation is true while a username still looks derived from
// its address.
func NeedsReconciliation(u *models.User) bool {
	return u != nil && !u.IsSystemActor && models.AddressShaped(u.Username, u.Address)
}

// Reconciler corrects cached usernames against the identity authority.
// Every failure is logged and the cached user is returned unchanged.
type Reconciler struct {
	users     repository.UserRepository
	authority chain.Authority
	timeout   time.Duration
	ledger    *LedgerService
	group     singleflight.Group
}

func NewReconciler(users repository.UserRepository, authority chain.Authority, timeout time.Duration, ledger *LedgerService) *Reconciler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Reconciler{
		users:     users,
		authority: authority,
		timeout:   timeout,
		ledger:    ledger,
	}
}

func (r *Reconciler) Reconcile(ctx context.Context, u *models.User) *models.User {
	if r == nil || r.authority == nil || !NeedsReconciliation(u) {
		return u
	}
	v, _, _ := r.group.Do(u.Address, func() (any, error) {
		return r.reconcile(ctx, u), nil
	})
	if updated, ok := v.(*models.User); ok && updated != nil {
		return updated
	}
	return u
}

func (r *Reconciler) reconcile(ctx context.Context, u *models.User) *models.User {
	logCtx := logrus.WithFields(logrus.Fields{"component": "reconciler", "address": u.Address, "user_id": u.ID})

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	remote, err := r.authority.ResolveUsername(callCtx, u.Address)
	cancel()
	if err != nil {
		logCtx.WithError(err).Warn("Identity authority lookup failed, keeping cached username")
		return u
	}
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return u
	}

	local, err := r.users.GetUserByAddress(ctx, u.Address)
	if err != nil {
		logCtx.WithError(err).Warn("Reconciliation could not reload user")
		return u
	}
	var holder *models.User
	h, err := r.users.GetUserByUsername(ctx, remote)
	switch {
	case err == nil:
		holder = h
	case !errors.Is(err, repository.ErrNotFound):
		logCtx.WithError(err).Warn("Reconciliation could not check username holder")
		return local
	}

	plan := PlanReconciliation(local, remote, holder)
	if plan.Action == NoChange {
		return local
	}
	if plan.Action == DemoteAndAssign {
		taken, err := r.users.GetUserByUsername(ctx, plan.DemotedTo)
		switch {
		case err == nil:
			plan.DemotedTo = DemotionTarget(plan.Demoted, taken)
		case !errors.Is(err, repository.ErrNotFound):
			logCtx.WithError(err).Warn("Reconciliation could not check placeholder holder")
			return local
		}
	}
	if err := r.users.ApplyUsernameChanges(ctx, plan.Changes()); err != nil {
		logCtx.WithError(err).WithField("plan", plan.Action.String()).Warn("Failed to apply reconciliation plan")
		return local
	}

	meta := map[string]any{
		"address":  local.Address,
		"previous": local.Username,
		"username": plan.Username,
		"action":   plan.Action.String(),
	}
	if plan.Demoted != nil {
		meta["demotedAddress"] = plan.Demoted.Address
		meta["demotedTo"] = plan.DemotedTo
		logCtx.WithFields(logrus.Fields{"username": remote, "demoted": plan.Demoted.Address}).Info("Username conflict resolved by demoting previous holder")
	} else {
		logCtx.WithField("username", remote).Info("Username reconciled")
	}
	r.ledger.note(ctx, EventInput{
		Type:        models.EventIdentity,
		Source:      "reconciler",
		Title:       "Username reconciled",
		Description: local.Username + " -> " + plan.Username,
		Metadata:    meta,
	})

	updated := *local
	updated.Username = plan.Username
	return &updated
}
