// Package health derives the bridge health from the age of the last
// successful snapshot. Nothing here is stored; status is computed on read.
package health

import "time"

type Status string

const (
	Initializing Status = "initializing"
	OK           Status = "ok"
	Stale        Status = "stale"
)

// Derive returns Initializing when no snapshot was ever received, OK while
// the last one is at most ttl old and Stale after that.
func Derive(lastUpdate time.Time, ttl time.Duration, now time.Time) Status {
	if lastUpdate.IsZero() {
		return Initializing
	}
	if now.Sub(lastUpdate) > ttl {
		return Stale
	}
	return OK
}

// Ready collapses initializing and ok into ready.
func (s Status) Ready() bool {
	return s == Initializing || s == OK
}

type Report struct {
	Status     Status     `json:"status"`
	LastUpdate *time.Time `json:"last_update"`
	LastPush   *time.Time `json:"last_push"`
	Error      *string    `json:"error"`
}

type Readiness struct {
	Status     Status     `json:"status"`
	LastUpdate *time.Time `json:"last_update"`
}

func NewReport(lastUpdate, lastPush time.Time, lastErr string, ttl time.Duration, now time.Time) Report {
	r := Report{
		Status:     Derive(lastUpdate, ttl, now),
		LastUpdate: timeP(lastUpdate),
		LastPush:   timeP(lastPush),
	}
	if lastErr != "" {
		r.Error = &lastErr
	}
	return r
}

func (r Report) Readiness() Readiness {
	status := OK
	if !r.Status.Ready() {
		status = Stale
	}
	return Readiness{Status: status, LastUpdate: r.LastUpdate}
}

func timeP(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
