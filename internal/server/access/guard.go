// Package access decides which actor may perform which action on payments,
// accounts and verification tokens.
package access

import (
	"context"

	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
)

// Actor is the authenticated caller.
type Actor struct {
	ID   string
	Role models.Role
}

func (a Actor) IsAdministrator() bool {
	return a.Role.IsAdministrator()
}

type ResourceKind string

const (
	KindPayment ResourceKind = "payment"
	KindAccount ResourceKind = "account"
	KindToken   ResourceKind = "token"
)

type Action string

const (
	ActionRead       Action = "read"
	ActionCreate     Action = "create"
	ActionSubmit     Action = "submit"
	ActionVerify     Action = "verify"
	ActionReject     Action = "reject"
	ActionResend     Action = "resend"
	ActionReactivate Action = "reactivate"
	ActionDeactivate Action = "deactivate"
)

// Resource identifies what is being acted on. OwnerID is empty for
// resources that do not exist yet (payment creation).
type Resource struct {
	Kind    ResourceKind
	OwnerID string
}

func Payment(ownerID string) Resource { return Resource{Kind: KindPayment, OwnerID: ownerID} }
func Account(id string) Resource      { return Resource{Kind: KindAccount, OwnerID: id} }
func Token(accountID string) Resource { return Resource{Kind: KindToken, OwnerID: accountID} }

type rule struct {
	owner bool
	admin bool
}

var rules = map[ResourceKind]map[Action]rule{
	KindPayment: {
		ActionRead:   {owner: true, admin: true},
		ActionSubmit: {owner: true, admin: true},
		ActionCreate: {admin: true},
		ActionVerify: {admin: true},
		ActionReject: {admin: true},
	},
	KindAccount: {
		ActionRead:       {owner: true, admin: true},
		ActionResend:     {owner: true},
		ActionReactivate: {admin: true},
		ActionDeactivate: {admin: true},
	},
	KindToken: {
		ActionRead:   {admin: true},
		ActionResend: {owner: true},
	},
}

// Authorize returns common.ErrForbidden unless actor may perform action on res.
func Authorize(actor Actor, res Resource, action Action) error {
	if actor.ID == "" || !actor.Role.Valid() {
		return common.ErrForbidden
	}

	r, ok := rules[res.Kind][action]
	if !ok {
		return common.ErrForbidden
	}

	if r.admin && actor.IsAdministrator() {
		return nil
	}
	if r.owner && res.OwnerID != "" && res.OwnerID == actor.ID {
		return nil
	}
	return common.ErrForbidden
}

type actorKey struct{}

// WithActor stores the actor in ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the actor stored by WithActor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(Actor)
	return a, ok
}
