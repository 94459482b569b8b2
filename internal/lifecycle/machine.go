// Package lifecycle holds the escrow transaction state machine: which action may move
// a transaction from which status, and who may trigger it.
package lifecycle

import (
	"fmt"

	"github.com/honeynil/LandEscrowService/internal/models"
	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
)

type Action string

const (
	ActionFund              Action = "fund"
	ActionConfirmFunding    Action = "confirm-funding"
	ActionApproveMilestone  Action = "approve-milestone"
	ActionDispute           Action = "dispute"
	ActionRelease           Action = "release"
	ActionRefund            Action = "refund"
	ActionClose             Action = "close"
	ActionReinstate         Action = "reinstate"
	ActionStartVerification Action = "start-verification"
	ActionPromote           Action = "promote"
)

type rule struct {
	from   []models.Status
	to     models.Status
	actors []models.Role
}

var nonTerminal = []models.Status{
	models.StatusCreated,
	models.StatusEscrowRequested,
	models.StatusFunded,
	models.StatusVerificationPeriod,
	models.StatusDisputed,
	models.StatusReadyToRelease,
}

var rules = map[Action][]rule{
	ActionFund: {
		{from: []models.Status{models.StatusCreated}, to: models.StatusEscrowRequested, actors: []models.Role{models.RoleBuyer}},
	},
	ActionConfirmFunding: {
		{from: []models.Status{models.StatusCreated, models.StatusEscrowRequested}, to: models.StatusFunded, actors: []models.Role{models.RoleSystem}},
	},
	ActionStartVerification: {
		{from: []models.Status{models.StatusFunded}, to: models.StatusVerificationPeriod, actors: []models.Role{models.RoleSystem}},
	},
	ActionDispute: {
		{from: []models.Status{models.StatusVerificationPeriod}, to: models.StatusDisputed, actors: []models.Role{models.RoleBuyer}},
	},
	ActionPromote: {
		{from: []models.Status{models.StatusVerificationPeriod}, to: models.StatusReadyToRelease, actors: []models.Role{models.RoleSystem}},
	},
	ActionRelease: {
		{from: []models.Status{models.StatusReadyToRelease}, to: models.StatusReleased, actors: []models.Role{models.RoleSeller, models.RoleAdmin}},
		{from: []models.Status{models.StatusFunded, models.StatusDisputed}, to: models.StatusReleased, actors: []models.Role{models.RoleAdmin}},
	},
	ActionRefund: {
		{from: []models.Status{models.StatusFunded, models.StatusDisputed}, to: models.StatusRefunded, actors: []models.Role{models.RoleAdmin}},
	},
	ActionClose: {
		{from: nonTerminal, to: models.StatusClosed, actors: []models.Role{models.RoleAdmin}},
	},
	ActionReinstate: {
		{from: []models.Status{models.StatusDisputed}, to: models.StatusVerificationPeriod, actors: []models.Role{models.RoleAdmin}},
	},
}

// userActions are the tokens accepted from API callers, in display order.
var userActions = []Action{
	ActionFund,
	ActionApproveMilestone,
	ActionDispute,
	ActionRelease,
	ActionRefund,
	ActionClose,
	ActionReinstate,
}

func ParseAction(token string) (Action, error) {
	for _, a := range userActions {
		if string(a) == token {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", pkgerrors.ErrUnknownAction, token)
}

// Plan resolves the status an action leads to. An action that no role may take from
// the current status is an illegal transition; one that exists for the status but not
// for this role is a permission failure.
func Plan(from models.Status, action Action, role models.Role) (models.Status, error) {
	candidates, ok := rules[action]
	if !ok {
		return "", fmt.Errorf("%w: %q", pkgerrors.ErrUnknownAction, action)
	}

	matched := false
	for _, r := range candidates {
		if !contains(r.from, from) {
			continue
		}
		matched = true
		if containsRole(r.actors, role) {
			return r.to, nil
		}
	}
	if !matched {
		return "", &pkgerrors.TransitionError{Action: string(action), Current: string(from), Err: pkgerrors.ErrIllegalTransition}
	}
	return "", fmt.Errorf("%w: %s may not %s a transaction in %s", pkgerrors.ErrPermissionDenied, roleName(role), action, from)
}

// Next returns the automatic transition that applies to the transaction as it stands,
// if any. Callers apply it and ask again until nothing is left.
func Next(t *models.Transaction) (Action, models.Status, bool) {
	switch t.Status {
	case models.StatusFunded:
		return ActionStartVerification, models.StatusVerificationPeriod, true
	case models.StatusVerificationPeriod:
		if t.AllMilestonesCompleted() && len(t.OpenDisputes()) == 0 {
			return ActionPromote, models.StatusReadyToRelease, true
		}
	}
	return "", "", false
}

// Settles reports whether entering the status moves escrowed funds and therefore needs a
// confirmed settlement from the payment gateway first.
func Settles(to models.Status) bool {
	return to == models.StatusReleased || to == models.StatusRefunded
}

// Available lists the user actions the role could take right now. A buyer whose funding
// payment was declined may fund again from ESCROW_REQUESTED.
func Available(t *models.Transaction, role models.Role) []Action {
	var out []Action
	for _, a := range userActions {
		if a == ActionFund && t.Status == models.StatusEscrowRequested {
			if role == models.RoleBuyer && t.PendingFunding() == nil {
				out = append(out, a)
			}
			continue
		}
		if a == ActionApproveMilestone {
			if t.Status == models.StatusVerificationPeriod && (role == models.RoleBuyer || role == models.RoleSeller) && hasPendingApproval(t, role) {
				out = append(out, a)
			}
			continue
		}
		if _, err := Plan(t.Status, a, role); err == nil {
			out = append(out, a)
		}
	}
	return out
}

// ActionForStatus maps a requested target status onto the action that reaches it.
func ActionForStatus(target models.Status) (Action, bool) {
	switch target {
	case models.StatusEscrowRequested, models.StatusFunded:
		return ActionFund, true
	case models.StatusDisputed:
		return ActionDispute, true
	case models.StatusReleased:
		return ActionRelease, true
	case models.StatusRefunded:
		return ActionRefund, true
	case models.StatusClosed:
		return ActionClose, true
	case models.StatusVerificationPeriod:
		return ActionReinstate, true
	default:
		return "", false
	}
}

func hasPendingApproval(t *models.Transaction, role models.Role) bool {
	for i := range t.Milestones {
		m := &t.Milestones[i]
		if m.CompletedAt == nil && !m.ApprovedBy(role) {
			return true
		}
	}
	return false
}

func contains(list []models.Status, s models.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsRole(list []models.Role, r models.Role) bool {
	for _, v := range list {
		if v == r {
			return true
		}
	}
	return false
}

func roleName(r models.Role) string {
	if r == models.RoleNone {
		return "non-party"
	}
	return string(r)
}
