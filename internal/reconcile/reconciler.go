// Package reconcile mirrors local task mutations to the remote store and
// merges remote state back into the local one.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	appLog "chorecal/internal/log"
	"chorecal/internal/model"
	"chorecal/internal/remote"
	"chorecal/internal/store"
)

const (
	defaultTimeout = 15 * time.Second
	tracerName     = "chorecal/reconcile"
)

// Target is the local side of the merge. *store.TaskStore implements it.
type Target interface {
	MergeRemote(tasks []model.Task, persons []model.Person, skip func(id string) bool) store.Change
	Seed(tasks []model.Task, persons []model.Person) store.Change
}

type Options struct {
	// Account scopes fetches from the remote store.
	Account string
	// Timeout bounds every remote call. Defaults to 15s.
	Timeout time.Duration
	// SnapshotPath, if set, is where the last pulled remote state is kept
	// for offline start-up.
	SnapshotPath string
	// Location, if set, is the zone offset-less remote dates are read in and
	// decoded dates are converted to, so that recurrence stepping follows
	// local wall-clock time.
	Location *time.Location

	Tracer trace.Tracer
	Now    func() time.Time
}

// Status is the sync state callers can poll.
type Status struct {
	LastError  error
	LastPullAt time.Time
	Pending    int
}

type opKind string

const (
	opUpsertTask   opKind = "upsert_task"
	opDeleteTask   opKind = "delete_task"
	opUpsertPerson opKind = "upsert_person"
)

type op struct {
	kind   opKind
	id     string
	task   remote.TaskRecord
	person remote.PersonRecord
}

// Reconciler implements store.Syncer. Outward writes are queued and applied
// in order by a single worker; their outcome is only visible through Status.
type Reconciler struct {
	client remote.Client
	target Target
	opts   Options
	tracer trace.Tracer

	mu         sync.Mutex
	queue      []op
	pending    map[string]int
	dirty      map[string]struct{}
	inflight   int
	waiters    []chan struct{}
	started    bool
	lastErr    error
	lastPullAt time.Time

	wake   chan struct{}
	pullMu sync.Mutex
}

func New(client remote.Client, target Target, opts Options) *Reconciler {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Reconciler{
		client:  client,
		target:  target,
		opts:    opts,
		tracer:  tracer,
		pending: make(map[string]int),
		wake:    make(chan struct{}, 1),
	}
}

func (r *Reconciler) PersistTask(t model.Task) {
	r.enqueue(op{kind: opUpsertTask, id: t.ID, task: remote.FromTask(t)})
}

func (r *Reconciler) PersistDelete(id string) {
	r.enqueue(op{kind: opDeleteTask, id: id})
}

func (r *Reconciler) PersistPerson(p model.Person) {
	r.enqueue(op{kind: opUpsertPerson, id: p.ID, person: remote.FromPerson(p)})
}

func (r *Reconciler) enqueue(o op) {
	r.mu.Lock()
	r.queue = append(r.queue, o)
	r.pending[o.id]++
	if r.dirty != nil {
		r.dirty[o.id] = struct{}{}
	}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Start launches the write worker. It stops when ctx is done; queued writes
// that were not applied by then are dropped.
func (r *Reconciler) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.mu.Unlock()

	go r.run(ctx)
}

func (r *Reconciler) run(ctx context.Context) {
	for {
		o, ok := r.next()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-r.wake:
				continue
			}
		}
		r.apply(ctx, o)
		r.done(o)
	}
}

func (r *Reconciler) next() (op, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.queue) == 0 {
		return op{}, false
	}
	o := r.queue[0]
	r.queue[0] = op{}
	r.queue = r.queue[1:]
	r.inflight++
	return o, true
}

func (r *Reconciler) done(o op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inflight--
	if r.pending[o.id]--; r.pending[o.id] <= 0 {
		delete(r.pending, o.id)
	}
	if len(r.queue) == 0 && r.inflight == 0 {
		for _, ch := range r.waiters {
			close(ch)
		}
		r.waiters = nil
	}
}

func (r *Reconciler) apply(ctx context.Context, o op) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "reconcile."+string(o.kind),
		trace.WithAttributes(attribute.String("chorecal.id", o.id)))
	defer span.End()

	var err error
	switch o.kind {
	case opUpsertTask:
		err = r.client.UpsertTask(ctx, o.task)
	case opDeleteTask:
		err = r.client.DeleteTask(ctx, o.id)
	case opUpsertPerson:
		err = r.client.UpsertPerson(ctx, o.person)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		appLog.Error("remote write failed", err, "op", string(o.kind), "id", o.id)
		r.setError(fmt.Errorf("%s %s: %w", o.kind, o.id, err))
		return
	}
	appLog.Debug("remote write applied", "op", string(o.kind), "id", o.id)
}

// Flush blocks until every queued write has been attempted or ctx is done.
// It needs a started worker to make progress.
func (r *Reconciler) Flush(ctx context.Context) error {
	r.mu.Lock()
	if len(r.queue) == 0 && r.inflight == 0 {
		r.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	r.waiters = append(r.waiters, ch)
	r.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// isPending reports whether a write for id is queued or in flight, or was
// enqueued after the running pull started fetching.
func (r *Reconciler) isPending(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pending[id] > 0 {
		return true
	}
	_, ok := r.dirty[id]
	return ok
}

// PullAndMerge fetches the account's tasks and persons and merges them into
// the target, remote winning for every id without a pending local write.
// Remote failures leave local state untouched and are returned.
func (r *Reconciler) PullAndMerge(ctx context.Context) error {
	r.pullMu.Lock()
	defer r.pullMu.Unlock()

	// Writes in flight now may land after the fetch read the old row.
	r.mu.Lock()
	r.dirty = make(map[string]struct{}, len(r.pending))
	for id := range r.pending {
		r.dirty[id] = struct{}{}
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.dirty = nil
		r.mu.Unlock()
	}()

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, "reconcile.pull",
		trace.WithAttributes(attribute.String("chorecal.account", r.opts.Account)))
	defer span.End()

	fail := func(what string, err error) error {
		err = fmt.Errorf("%s: %w", what, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		appLog.Error("remote pull failed", err, "account", r.opts.Account)
		r.setError(err)
		return err
	}

	taskRecs, err := r.client.FetchTasks(ctx, r.opts.Account)
	if err != nil {
		return fail("fetch tasks", err)
	}
	personRecs, err := r.client.FetchPersons(ctx, r.opts.Account)
	if err != nil {
		return fail("fetch persons", err)
	}

	tasks, persons, decodeErr := r.decode(taskRecs, personRecs)
	change := r.target.MergeRemote(tasks, persons, r.isPending)

	span.SetAttributes(
		attribute.Int("chorecal.tasks", len(tasks)),
		attribute.Int("chorecal.persons", len(persons)),
		attribute.Int("chorecal.created", len(change.Created)),
		attribute.Int("chorecal.updated", len(change.Updated)),
	)

	if r.opts.SnapshotPath != "" {
		snap := snapshot{
			Account: r.opts.Account,
			SavedAt: r.opts.Now().UTC(),
			Tasks:   taskRecs,
			Persons: personRecs,
		}
		if err := writeSnapshot(r.opts.SnapshotPath, snap); err != nil {
			appLog.Error("snapshot save failed", err, "path", r.opts.SnapshotPath)
		}
	}

	r.mu.Lock()
	r.lastErr = decodeErr
	r.lastPullAt = r.opts.Now()
	r.mu.Unlock()

	appLog.Info("remote pull merged",
		"account", r.opts.Account,
		"tasks", len(tasks),
		"persons", len(persons),
		"created", len(change.Created),
		"updated", len(change.Updated),
	)
	return nil
}

// decode converts records, skipping and logging the ones that fail. The
// returned error summarizes the skipped records.
func (r *Reconciler) decode(taskRecs []remote.TaskRecord, personRecs []remote.PersonRecord) ([]model.Task, []model.Person, error) {
	var errs []error

	tasks := make([]model.Task, 0, len(taskRecs))
	for _, rec := range taskRecs {
		t, err := rec.TaskIn(r.opts.Location)
		if err != nil {
			appLog.Warn("skipping undecodable task record", "id", rec.ID, "error", err.Error())
			errs = append(errs, err)
			continue
		}
		tasks = append(tasks, t)
	}

	persons := make([]model.Person, 0, len(personRecs))
	for _, rec := range personRecs {
		p, err := rec.Person()
		if err != nil {
			appLog.Warn("skipping undecodable person record", "id", rec.ID, "error", err.Error())
			errs = append(errs, err)
			continue
		}
		persons = append(persons, p)
	}

	if len(errs) > 0 {
		return tasks, persons, fmt.Errorf("decode: %d record(s) skipped: %w", len(errs), errors.Join(errs...))
	}
	return tasks, persons, nil
}

// Hydrate seeds the target from the saved snapshot, if there is one for
// this account. Ids already present locally are left alone.
func (r *Reconciler) Hydrate() error {
	if r.opts.SnapshotPath == "" {
		return nil
	}
	snap, err := readSnapshot(r.opts.SnapshotPath)
	if err != nil {
		if errors.Is(err, errNoSnapshot) {
			return nil
		}
		return err
	}
	if snap.Account != r.opts.Account {
		appLog.Warn("ignoring snapshot of another account", "path", r.opts.SnapshotPath, "account", snap.Account)
		return nil
	}

	tasks, persons, decodeErr := r.decode(snap.Tasks, snap.Persons)
	change := r.target.Seed(tasks, persons)
	appLog.Info("hydrated from snapshot",
		"path", r.opts.SnapshotPath,
		"saved_at", snap.SavedAt.Format(time.RFC3339),
		"tasks", len(change.Created),
		"persons", len(change.Persons),
	)
	return decodeErr
}

func (r *Reconciler) setError(err error) {
	r.mu.Lock()
	r.lastErr = err
	r.mu.Unlock()
}

// LastSyncError returns the most recent remote failure, or nil if the last
// pull succeeded and no write has failed since.
func (r *Reconciler) LastSyncError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastErr
}

func (r *Reconciler) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		LastError:  r.lastErr,
		LastPullAt: r.lastPullAt,
		Pending:    len(r.queue) + r.inflight,
	}
}

var _ store.Syncer = (*Reconciler)(nil)
