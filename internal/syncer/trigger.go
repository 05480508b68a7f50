package syncer

import (
	"isp-saas.com/routersync/internal/models"
	"isp-saas.com/routersync/pkg/logger"
)

// Health reports whether the shared router session answers a probe.
type Health interface {
	IsHealthy() bool
}

// ActiveLookup resolves the single active connection profile.
type ActiveLookup interface {
	ActiveConnectionProfile() (*models.ConnectionProfile, error)
}

// Pusher is the push surface the trigger drives. Satisfied by *Orchestrator.
type Pusher interface {
	PushProfile(p *models.ServiceProfile) error
	DeleteProfileRemote(p *models.ServiceProfile) error
	PushSecret(sec *models.Secret) error
}

// Outcome is the explicit result of one trigger firing. The local write that
// caused it has already committed, so callers log the outcome and move on;
// an Err here never unwinds anything.
type Outcome struct {
	Attempted  bool   `json:"attempted"`
	SkipReason string `json:"skip_reason,omitempty"`
	Err        error  `json:"-"`
}

func (o Outcome) Synced() bool {
	return o.Attempted && o.Err == nil
}

func skipped(reason string) Outcome {
	return Outcome{SkipReason: reason}
}

// Trigger fires an opportunistic push after a local create/update/delete.
// Preconditions gate the attempt: the entity opted in, an active connection
// profile exists and the session answers a health probe. Anything that then
// fails is logged with enough context to reproduce and absorbed.
//
// Secret deletion has no trigger on purpose: removing the device-side secret
// is a precondition of the local delete, so that path calls the orchestrator
// directly and surfaces failures instead of absorbing them.
type Trigger struct {
	pusher Pusher
	conn   Health
	store  ActiveLookup
	log    *logger.Logger
}

func NewTrigger(pusher Pusher, conn Health, store ActiveLookup, log *logger.Logger) *Trigger {
	return &Trigger{pusher: pusher, conn: conn, store: store, log: log}
}

func (t *Trigger) ready(autoSync bool) (Outcome, bool) {
	if !autoSync {
		return skipped("auto-sync disabled for entity"), false
	}
	if _, err := t.store.ActiveConnectionProfile(); err != nil {
		return skipped("no active connection profile"), false
	}
	if !t.conn.IsHealthy() {
		return skipped("router session not healthy"), false
	}
	return Outcome{}, true
}

func (t *Trigger) fire(kind, op string, id int, push func() error) Outcome {
	err := push()
	if err != nil {
		t.log.Error("Auto-sync push failed",
			"kind", kind, "op", op, "id", id, "error", err.Error())
		return Outcome{Attempted: true, Err: err}
	}
	t.log.Info("Auto-sync push succeeded", "kind", kind, "op", op, "id", id)
	return Outcome{Attempted: true}
}

func (t *Trigger) ProfileSaved(p *models.ServiceProfile) Outcome {
	if out, ok := t.ready(p.AutoSync); !ok {
		return out
	}
	return t.fire("profile", "save", p.ID, func() error { return t.pusher.PushProfile(p) })
}

func (t *Trigger) ProfileDeleted(p *models.ServiceProfile) Outcome {
	if out, ok := t.ready(p.AutoSync); !ok {
		return out
	}
	return t.fire("profile", "delete", p.ID, func() error { return t.pusher.DeleteProfileRemote(p) })
}

func (t *Trigger) SecretSaved(sec *models.Secret) Outcome {
	if out, ok := t.ready(sec.AutoSync); !ok {
		return out
	}
	return t.fire("secret", "save", sec.ID, func() error { return t.pusher.PushSecret(sec) })
}
