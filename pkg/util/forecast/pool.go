package forecast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// JobState is the lifecycle stage of a simulation job
type JobState string

const (
	JobQueued    JobState = "queued"
	JobRunning   JobState = "running"
	JobDone      JobState = "done"
	JobFailed    JobState = "failed"
	JobCancelled JobState = "cancelled"
)

// Terminal reports whether the job will not change state again
func (s JobState) Terminal() bool {
	return s == JobDone || s == JobFailed || s == JobCancelled
}

var (
	ErrPoolClosed  = errors.New("simulation pool is closed")
	ErrQueueFull   = errors.New("simulation queue is full")
	ErrJobNotFound = errors.New("simulation job not found")
)

// JobKind says which simulator runs a job
type JobKind string

const (
	KindBracket JobKind = "bracket"
	KindLeague  JobKind = "league"
)

// JobStatus is a snapshot of a job. Once the job is done Report holds a
// bracket job's result and LeagueReport a league job's. Entrants counts the
// teams either way.
type JobStatus struct {
	ID           string            `json:"job_id"`
	Kind         JobKind           `json:"kind"`
	State        JobState          `json:"state"`
	NSimulations int               `json:"n_simulations"`
	Entrants     int               `json:"entrants"`
	SubmittedAt  time.Time         `json:"submitted_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
	Report       *SimulationReport `json:"report,omitempty"`
	LeagueReport *LeagueReport     `json:"league_report,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// PoolHooks observe the pool, usually to feed metrics. Calls are made
// outside the pool's lock. Jobs that reached a worker always finish with a
// positive elapsed time; jobs cancelled in the queue report zero.
type PoolHooks interface {
	JobQueued()
	JobStarted()
	JobFinished(state JobState, elapsed time.Duration, trials int)
}

type noopHooks struct{}

func (noopHooks) JobQueued()                               {}
func (noopHooks) JobStarted()                              {}
func (noopHooks) JobFinished(JobState, time.Duration, int) {}

// jobResult carries whichever report a job produced
type jobResult struct {
	bracket *SimulationReport
	league  *LeagueReport
}

type job struct {
	run    func(ctx context.Context) (jobResult, error)
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	done   chan struct{}
	err    error
	status JobStatus
}

// SimulationPool runs bracket and league simulations on a fixed set of
// workers fed by a bounded queue, so callers never burn CPU on their own
// goroutine.
type SimulationPool struct {
	sim       *BracketSimulator
	league    *LeagueSimulator
	hooks     PoolHooks
	queue     chan *job
	retention int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	jobs     map[string]*job
	finished []string
	closed   bool
}

// NewSimulationPool starts cfg.SimulationWorkers workers. League jobs run on a
// simulator built from cfg. hooks may be nil.
func NewSimulationPool(sim *BracketSimulator, cfg *ForecastConfig, hooks PoolHooks) *SimulationPool {
	if hooks == nil {
		hooks = noopHooks{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &SimulationPool{
		sim:       sim,
		league:    NewLeagueSimulator(cfg),
		hooks:     hooks,
		queue:     make(chan *job, cfg.SimulationQueue),
		retention: cfg.JobRetention,
		ctx:       ctx,
		cancel:    cancel,
		jobs:      make(map[string]*job),
	}
	for i := 0; i < cfg.SimulationWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues a bracket simulation and returns its job id. Invalid
// requests are rejected here rather than surfacing later as a failed job.
func (p *SimulationPool) Submit(entrants []Entrant, nSimulations int, opts SimulationOptions) (string, error) {
	j, err := p.enqueueBracket(p.ctx, entrants, nSimulations, opts)
	if err != nil {
		return "", err
	}
	return j.status.ID, nil
}

// Run queues a bracket simulation and waits for it. Cancelling ctx cancels
// the job.
func (p *SimulationPool) Run(ctx context.Context, entrants []Entrant, nSimulations int, opts SimulationOptions) (*SimulationReport, error) {
	j, err := p.enqueueBracket(ctx, entrants, nSimulations, opts)
	if err != nil {
		return nil, err
	}
	res, err := p.await(ctx, j)
	if err != nil {
		return nil, err
	}
	return res.bracket, nil
}

// SubmitLeague queues a league simulation and returns its job id
func (p *SimulationPool) SubmitLeague(req LeagueRequest) (string, error) {
	j, err := p.enqueueLeague(p.ctx, req)
	if err != nil {
		return "", err
	}
	return j.status.ID, nil
}

// RunLeague queues a league simulation and waits for it. Cancelling ctx
// cancels the job.
func (p *SimulationPool) RunLeague(ctx context.Context, req LeagueRequest) (*LeagueReport, error) {
	j, err := p.enqueueLeague(ctx, req)
	if err != nil {
		return nil, err
	}
	res, err := p.await(ctx, j)
	if err != nil {
		return nil, err
	}
	return res.league, nil
}

// await waits for a job started by Run or RunLeague, which are not kept for
// status queries
func (p *SimulationPool) await(ctx context.Context, j *job) (jobResult, error) {
	id := j.status.ID
	defer p.forget(id)

	select {
	case <-j.done:
	case <-ctx.Done():
		_ = p.Cancel(id)
		<-j.done
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if j.err != nil {
		return jobResult{}, j.err
	}
	return jobResult{bracket: j.status.Report, league: j.status.LeagueReport}, nil
}

func (p *SimulationPool) enqueueBracket(parent context.Context, entrants []Entrant, nSimulations int, opts SimulationOptions) (*job, error) {
	if err := p.sim.Validate(entrants, nSimulations); err != nil {
		return nil, err
	}
	entrants = append([]Entrant(nil), entrants...)
	run := func(ctx context.Context) (jobResult, error) {
		report, err := p.sim.Simulate(ctx, entrants, nSimulations, opts)
		return jobResult{bracket: report}, err
	}
	return p.enqueue(parent, KindBracket, len(entrants), nSimulations, run)
}

func (p *SimulationPool) enqueueLeague(parent context.Context, req LeagueRequest) (*job, error) {
	if err := p.league.Validate(req); err != nil {
		return nil, err
	}
	req.Teams = append([]LeagueTeam(nil), req.Teams...)
	req.Fixtures = append([]Fixture(nil), req.Fixtures...)
	run := func(ctx context.Context) (jobResult, error) {
		report, err := p.league.Simulate(ctx, req)
		return jobResult{league: report}, err
	}
	return p.enqueue(parent, KindLeague, len(req.Teams), req.NSimulations, run)
}

func (p *SimulationPool) enqueue(parent context.Context, kind JobKind, teams, nSimulations int, run func(context.Context) (jobResult, error)) (*job, error) {
	ctx, cancel := context.WithCancel(parent)
	// jobs started from a caller's context must still stop when the pool does
	stop := func() bool { return false }
	if parent != p.ctx {
		stop = context.AfterFunc(p.ctx, cancel)
	}
	j := &job{
		run:    run,
		ctx:    ctx,
		cancel: cancel,
		stop:   stop,
		done:   make(chan struct{}),
		status: JobStatus{
			ID:           uuid.NewString(),
			Kind:         kind,
			State:        JobQueued,
			NSimulations: nSimulations,
			Entrants:     teams,
			SubmittedAt:  time.Now().UTC(),
		},
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		j.release()
		return nil, ErrPoolClosed
	}
	select {
	case p.queue <- j:
	default:
		p.mu.Unlock()
		j.release()
		return nil, fmt.Errorf("%w (%d pending)", ErrQueueFull, cap(p.queue))
	}
	p.jobs[j.status.ID] = j
	p.mu.Unlock()

	p.hooks.JobQueued()
	return j, nil
}

func (j *job) release() {
	j.stop()
	j.cancel()
}

func (p *SimulationPool) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.mu.Lock()
		if j.status.State != JobQueued {
			// cancelled while waiting
			p.mu.Unlock()
			continue
		}
		if err := j.ctx.Err(); err != nil {
			p.finishLocked(j, jobResult{}, err)
			p.mu.Unlock()
			p.hooks.JobFinished(JobCancelled, 0, 0)
			continue
		}
		started := time.Now().UTC()
		j.status.State = JobRunning
		j.status.StartedAt = &started
		p.mu.Unlock()

		p.hooks.JobStarted()
		res, err := j.run(j.ctx)

		p.mu.Lock()
		state := p.finishLocked(j, res, err)
		p.mu.Unlock()

		trials := 0
		if state == JobDone {
			trials = j.status.NSimulations
		}
		p.hooks.JobFinished(state, max(time.Since(started), time.Nanosecond), trials)
	}
}

// finishLocked moves a job to its terminal state. p.mu must be held.
func (p *SimulationPool) finishLocked(j *job, res jobResult, err error) JobState {
	finished := time.Now().UTC()
	j.status.FinishedAt = &finished
	switch {
	case err == nil:
		j.status.State = JobDone
		j.status.Report = res.bracket
		j.status.LeagueReport = res.league
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		j.status.State = JobCancelled
		j.status.Error = err.Error()
		j.err = err
	default:
		j.status.State = JobFailed
		j.status.Error = err.Error()
		j.err = err
	}
	j.release()
	close(j.done)

	p.finished = append(p.finished, j.status.ID)
	for len(p.finished) > p.retention {
		delete(p.jobs, p.finished[0])
		p.finished = p.finished[1:]
	}
	return j.status.State
}

// Status returns a snapshot of the job
func (p *SimulationPool) Status(id string) (JobStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	j, ok := p.jobs[id]
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return j.status, nil
}

// Cancel stops a queued or running job. Cancelling a finished job is a no-op.
func (p *SimulationPool) Cancel(id string) error {
	p.mu.Lock()
	j, ok := p.jobs[id]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if j.status.State == JobQueued {
		p.finishLocked(j, jobResult{}, context.Canceled)
		p.mu.Unlock()
		p.hooks.JobFinished(JobCancelled, 0, 0)
		return nil
	}
	p.mu.Unlock()
	j.cancel()
	return nil
}

// Wait blocks until the job finishes or ctx is done
func (p *SimulationPool) Wait(ctx context.Context, id string) (JobStatus, error) {
	p.mu.Lock()
	j, ok := p.jobs[id]
	p.mu.Unlock()
	if !ok {
		return JobStatus{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return JobStatus{}, ctx.Err()
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return j.status, nil
}

// QueueDepth is the number of jobs waiting for a worker
func (p *SimulationPool) QueueDepth() int {
	return len(p.queue)
}

func (p *SimulationPool) forget(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.jobs, id)
	for i, f := range p.finished {
		if f == id {
			p.finished = append(p.finished[:i], p.finished[i+1:]...)
			break
		}
	}
}

// Close stops accepting jobs, cancels everything outstanding and waits for
// the workers to exit
func (p *SimulationPool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.cancel()
	p.wg.Wait()
}
