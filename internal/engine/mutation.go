package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/roach88/reqsync/internal/access"
	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/numbering"
)

// ApplyCreateOrUpdate inserts rec locally ahead of any server confirmation.
// A record with the same id is replaced in place; otherwise rec is prepended.
// The baseline moves to the new length and the cache is written before this
// returns, so the next poll does not report the caller's own record.
func (e *Engine) ApplyCreateOrUpdate(ctx context.Context, rec model.Requisition) (model.Snapshot, error) {
	if rec.ID == "" {
		return nil, fmt.Errorf("apply requisition: missing id")
	}
	r, err := e.submit(ctx, event{kind: eventUpsert, record: rec})
	if err != nil {
		return nil, err
	}
	return r.snapshot, nil
}

// ApplyDelete removes the record locally, then asks the remote to delete it
// in the background. A remote failure is logged; the local removal stands.
// Only roles that may delete can call this.
func (e *Engine) ApplyDelete(ctx context.Context, id string) (model.Snapshot, error) {
	r, err := e.submit(ctx, event{kind: eventDelete, id: id})
	if err != nil {
		return nil, err
	}
	return r.snapshot, nil
}

// SaveOutcome describes a Save. Record is what was applied locally; the
// remote fields report the best-effort server write.
type SaveOutcome struct {
	Record     model.Requisition
	Created    bool
	RemoteErr  error
	DriveError string
	EmailError string
}

// Save applies rec locally and then writes it to the remote. Missing id,
// number and creation fields are filled in first. A remote failure is
// reported in the outcome but does not undo the local change. When the
// server assigns a different final number, the local record is updated to
// match.
func (e *Engine) Save(ctx context.Context, rec model.Requisition) (SaveOutcome, error) {
	created := rec.ID == ""
	r, err := e.submit(ctx, event{kind: eventUpsert, record: rec, assign: true})
	if err != nil {
		return SaveOutcome{}, err
	}
	out := SaveOutcome{Record: r.record, Created: created}

	res, err := e.remote.SaveRequisition(ctx, out.Record)
	e.metrics.RemoteWrites.WithLabelValues("save", result(err)).Inc()
	if err != nil {
		e.logger.Warn("remote save failed, keeping local copy", "id", out.Record.ID, "error", err)
		out.RemoteErr = err
		return out, nil
	}
	out.DriveError = res.DriveError
	out.EmailError = res.EmailError

	if res.FinalNumber != "" && res.FinalNumber != out.Record.RequisitionNumber {
		e.logger.Info("server renumbered requisition",
			"id", out.Record.ID,
			"local", out.Record.RequisitionNumber,
			"final", res.FinalNumber,
		)
		out.Record.RequisitionNumber = res.FinalNumber
		if _, err := e.ApplyCreateOrUpdate(ctx, out.Record); err != nil {
			return out, err
		}
	}
	return out, nil
}

func (e *Engine) applyUpsert(ev event) {
	if !e.view.State.Active() {
		send(ev.reply, reply{err: ErrNoSession})
		return
	}
	rec := ev.record
	if ev.assign {
		e.fill(&rec)
		if err := rec.Validate(); err != nil {
			send(ev.reply, reply{err: fmt.Errorf("invalid requisition: %w", err)})
			return
		}
	}

	next := upsert(e.view.Snapshot, rec)
	e.commit(next)
	e.logger.Debug("requisition applied locally", "id", rec.ID, "number", rec.RequisitionNumber, "count", len(next))
	send(ev.reply, reply{snapshot: next, record: rec})
}

// fill assigns the fields a new or edited record gets from the engine.
func (e *Engine) fill(rec *model.Requisition) {
	now := e.now().UTC().Format(time.RFC3339)
	if rec.ID == "" {
		rec.ID = e.ids.Generate()
	}
	if rec.RequisitionNumber == "" {
		rec.RequisitionNumber = numbering.Next(e.view.Snapshot)
	}
	if rec.CreatedAt == "" {
		rec.CreatedAt = now
	}
	if rec.CreatedBy == "" {
		rec.CreatedBy = e.view.Session.Username
	}
	rec.UpdatedAt = now
}

func (e *Engine) applyDelete(ev event) {
	if !e.view.State.Active() {
		send(ev.reply, reply{err: ErrNoSession})
		return
	}
	if !access.CanDelete(e.view.Session) {
		send(ev.reply, reply{err: ErrForbidden})
		return
	}
	i := e.view.Snapshot.IndexOf(ev.id)
	if i < 0 {
		send(ev.reply, reply{err: fmt.Errorf("delete %s: %w", ev.id, ErrNotFound)})
		return
	}

	cur := e.view.Snapshot
	next := make(model.Snapshot, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	e.commit(next)
	e.logger.Debug("requisition removed locally", "id", ev.id, "count", len(next))

	e.deleteRemote(ev.id)
	send(ev.reply, reply{snapshot: next})
}

// commit installs next as the snapshot, moves the baseline and mirrors the
// result to the cache.
func (e *Engine) commit(next model.Snapshot) {
	e.store.WriteSnapshot(e.runCtx, next)
	e.view.Snapshot = next
	e.view.Baseline = len(next)
	e.publish()
}

func (e *Engine) deleteRemote(id string) {
	ctx := e.runCtx
	e.workers.Add(1)
	e.writes.add()
	go func() {
		defer e.workers.Done()
		defer e.writes.done()
		err := e.remote.DeleteRequisition(ctx, id)
		e.metrics.RemoteWrites.WithLabelValues("delete", result(err)).Inc()
		if err != nil {
			e.logger.Error("remote delete failed, local removal kept", "id", id, "error", err)
			return
		}
		e.logger.Debug("remote delete confirmed", "id", id)
	}()
}

// upsert returns a new snapshot with rec replacing the record of the same
// id, or prepended when there is none. s is not modified.
func upsert(s model.Snapshot, rec model.Requisition) model.Snapshot {
	if i := s.IndexOf(rec.ID); i >= 0 {
		next := s.Clone()
		next[i] = rec
		return next
	}
	next := make(model.Snapshot, 0, len(s)+1)
	next = append(next, rec)
	return append(next, s...)
}

// pendingWrites counts background remote writes. add may be called while
// another goroutine waits on idle.
type pendingWrites struct {
	mu   sync.Mutex
	n    int
	zero chan struct{}
}

func (p *pendingWrites) add() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n == 0 {
		p.zero = make(chan struct{})
	}
	p.n++
}

func (p *pendingWrites) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.n--
	if p.n == 0 {
		close(p.zero)
	}
}

// idle returns a channel closed once no writes are pending.
func (p *pendingWrites) idle() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n == 0 {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return p.zero
}
