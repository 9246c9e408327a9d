// Package health serves the daemon's liveness and readiness probes.
//
// /healthz answers 200 whenever the process can serve HTTP at all. /readyz
// runs every registered [Checker] and answers 200 only when all of them
// pass; the body is a JSON object with an overall "status" plus a "checks"
// map naming each verdict. The app wires checkers that watch the provider
// fallback chains, so a dead transcription backend flips /readyz before the
// first utterance is lost.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/MrWong99/auricle/internal/resilience"
)

// checkTimeout bounds one /readyz evaluation across all checkers.
const checkTimeout = 5 * time.Second

// Checker probes one dependency. Check returns nil while the dependency can
// serve and an error describing the problem otherwise; it must honour ctx.
type Checker struct {
	// Name keys this check's verdict in the /readyz response, e.g. "stt".
	Name string

	Check func(ctx context.Context) error
}

// ChainStatus reports the circuit breaker state of a provider fallback
// chain. The resilience fallback groups implement it.
type ChainStatus interface {
	Status() []resilience.EntryStatus
}

// BreakerCheck builds a [Checker] over a fallback chain that fails only
// when every backend's breaker is open. A degraded chain with one live
// backend still counts as ready, and a half-open breaker is about to probe,
// so it counts as live too.
func BreakerCheck(name string, chain ChainStatus) Checker {
	return Checker{
		Name: name,
		Check: func(context.Context) error {
			entries := chain.Status()
			if len(entries) == 0 {
				return nil
			}
			for _, e := range entries {
				if e.State != "open" {
					return nil
				}
			}
			return fmt.Errorf("all %d backends have open circuit breakers", len(entries))
		},
	}
}

// PingCheck builds a [Checker] that GETs url and fails on transport errors
// and 5xx answers. Local speech servers expose liveness routes of their
// own; this points /readyz at them. A nil client means
// [http.DefaultClient].
func PingCheck(name, url string, client *http.Client) Checker {
	if client == nil {
		client = http.DefaultClient
	}
	return Checker{
		Name: name,
		Check: func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return fmt.Errorf("build request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			resp.Body.Close()
			if resp.StatusCode >= 500 {
				return fmt.Errorf("unexpected status %d", resp.StatusCode)
			}
			return nil
		},
	}
}

// report is the body of both probe responses.
type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler answers the probe routes. The checker list is fixed at
// construction; Handler is safe for concurrent use.
type Handler struct {
	checkers []Checker
}

// New builds a [Handler] evaluating checkers on every /readyz request.
func New(checkers ...Checker) *Handler {
	return &Handler{checkers: append([]Checker(nil), checkers...)}
}

// Healthz answers 200 unconditionally.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, report{Status: "ok"})
}

// Readyz runs all checkers concurrently under one [checkTimeout] deadline
// and answers 503 when any of them fails. A single hung backend therefore
// cannot stall the probe past the deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	type verdict struct {
		name string
		err  error
	}
	verdicts := make(chan verdict, len(h.checkers))
	for _, c := range h.checkers {
		go func() {
			verdicts <- verdict{name: c.Name, err: c.Check(ctx)}
		}()
	}

	rep := report{Status: "ok", Checks: make(map[string]string, len(h.checkers))}
	status := http.StatusOK
	for range h.checkers {
		v := <-verdicts
		if v.err != nil {
			rep.Checks[v.name] = "fail: " + v.err.Error()
			rep.Status = "fail"
			status = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[v.name] = "ok"
	}

	respond(w, status, rep)
}

// Register mounts the probe routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func respond(w http.ResponseWriter, status int, rep report) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
