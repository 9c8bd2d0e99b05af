package pipeline

import (
	"fmt"
	"time"

	"putscreener/internal/progress"
)

type state struct {
	active    bool
	operation Operation
	stage     Operation
	runID     string
	current   int
	total     int
	ticker    string
	status    string
	message   string
	startedAt time.Time
	stageAt   time.Time
	updatedAt time.Time
	endedAt   time.Time
}

// Snapshot is the externally visible progress of the current or last run.
type Snapshot struct {
	Active      bool       `json:"active"`
	Operation   Operation  `json:"operation"`
	Stage       Operation  `json:"stage,omitempty"`
	RunID       string     `json:"run_id"`
	Current     int        `json:"current"`
	Total       int        `json:"total"`
	Ticker      string     `json:"ticker"`
	Status      string     `json:"status"`
	Message     string     `json:"message"`
	LastUpdated *time.Time `json:"last_updated"`
	// TimeElapsed is in seconds.
	TimeElapsed float64  `json:"time_elapsed"`
	ETASeconds  *float64 `json:"eta_seconds"`
}

// Run is the handle of the active run. It observes stage progress.
type Run struct {
	c  *Coordinator
	id string
	op Operation
}

func (r *Run) ID() string { return r.id }

func (r *Run) OnProgress(e progress.Event) {
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.runID != r.id {
		return
	}
	c.state.current = e.Index
	c.state.total = e.Total
	c.state.ticker = e.Symbol
	c.state.status = string(e.Status)
	c.state.message = fmt.Sprintf("%s %d/%d %s", c.state.stage, e.Index, e.Total, e.Symbol)
	if e.Detail != "" {
		c.state.message += " (" + e.Detail + ")"
	}
	c.state.updatedAt = c.now()
}

func (r *Run) stage(op Operation) {
	c := r.c
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.stage = op
	c.state.current = 0
	c.state.total = 0
	c.state.ticker = ""
	c.state.status = "starting"
	c.state.message = string(op) + " starting"
	c.state.updatedAt = c.now()
	c.state.stageAt = c.state.updatedAt
}

// End records the final status and releases the busy flag.
func (r *Run) End(err error) {
	c := r.c
	c.mu.Lock()
	if c.state.runID == r.id {
		now := c.now()
		c.state.active = false
		c.state.endedAt = now
		c.state.updatedAt = now
		if err != nil {
			c.state.status = string(progress.StatusError)
			c.state.message = err.Error()
		} else {
			c.state.status = "complete"
			c.state.message = string(r.op) + " complete"
		}
	}
	c.mu.Unlock()
	c.busy.Store(false)
}

// Snapshot returns the progress of the active run, or the final state of
// the last one. ETA extrapolates the mean time per item of the current stage.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	s := c.state
	c.mu.Unlock()

	out := Snapshot{
		Active:    s.active,
		Operation: s.operation,
		Stage:     s.stage,
		RunID:     s.runID,
		Current:   s.current,
		Total:     s.total,
		Ticker:    s.ticker,
		Status:    s.status,
		Message:   s.message,
	}
	if s.startedAt.IsZero() {
		return out
	}
	updated := s.updatedAt
	out.LastUpdated = &updated

	end := c.now()
	if !s.active && !s.endedAt.IsZero() {
		end = s.endedAt
	}
	out.TimeElapsed = end.Sub(s.startedAt).Seconds()
	if s.active && s.current > 0 && s.total >= s.current {
		stageStart := s.startedAt
		if !s.stageAt.IsZero() {
			stageStart = s.stageAt
		}
		elapsed := end.Sub(stageStart).Seconds()
		eta := elapsed / float64(s.current) * float64(s.total-s.current)
		out.ETASeconds = &eta
	}
	return out
}
