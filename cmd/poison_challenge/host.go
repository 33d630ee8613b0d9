package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"poisonchallenge/challenge"
	"poisonchallenge/offsets"
	"poisonchallenge/process"
)

const (
	statusNotRunning   = "Game not running"
	statusNotSupported = "Version not supported"
	statusSupportedFmt = "Supported version detected: %s"
	defaultReopenDelay = time.Second
	defaultStatsPeriod = 10 * time.Second
)

// host keeps one game process attached to a Challenge: it reopens the game
// after it exits, detects the build and reports status changes on out.
type host struct {
	challenge *challenge.Challenge
	open      func() (process.Process, error)
	out       io.Writer

	proc        process.Process
	status      string
	reopenDelay time.Duration
	nextOpen    time.Time
	debug       bool
	lastStats   time.Time

	// reloads, when set, asks for the catalog to be read again through loadCatalog
	reloads     <-chan struct{}
	loadCatalog func() (*offsets.Catalog, error)
}

func newHost(c *challenge.Challenge, open func() (process.Process, error), out io.Writer) *host {
	return &host{
		challenge:   c,
		open:        open,
		out:         out,
		reopenDelay: defaultReopenDelay,
	}
}

// run ticks until ctx is cancelled. Only offset table errors stop it.
func (h *host) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer h.detach()

	for {
		select {
		case <-ctx.Done():
			log.Infoln("Stopping")
			return nil
		case <-h.reloads:
			h.reload()
		case <-ticker.C:
			if err := h.tick(time.Now()); err != nil {
				return err
			}
		}
	}
}

// reload swaps in a freshly loaded catalog. A file that fails to parse or
// holds a broken table for the running version is reported and ignored.
func (h *host) reload() {
	catalog, err := h.loadCatalog()
	if err != nil {
		log.Warn("Offsets reload failed: ", err)
		return
	}
	if err := h.challenge.SetCatalog(catalog); err != nil {
		log.Warn("Offsets reload rejected: ", err)
		return
	}
	log.Infoln("Offsets reloaded, versions:", catalog.Versions())
	h.status = ""
}

func (h *host) tick(now time.Time) error {
	if h.proc != nil && !h.proc.IsAlive() {
		log.Infoln("Game process", h.proc.GetPID(), "exited")
		h.detach()
	}

	if h.proc == nil {
		if now.Before(h.nextOpen) {
			return nil
		}
		proc, err := h.open()
		if err != nil {
			h.nextOpen = now.Add(h.reopenDelay)
			h.report(statusNotRunning)
			return nil
		}
		log.Infoln("Attached to game process", proc.GetPID())
		h.proc = proc
		h.challenge.Attach(proc)
	}

	module, err := h.proc.MainModule()
	if err != nil {
		// Still loading, or gone since the liveness check.
		log.Debugln("Main module unavailable:", err)
		return nil
	}

	version := detectVersion(module)
	if version != h.challenge.Version() {
		if err := h.challenge.SetVersion(version); err != nil {
			return err
		}
	}
	if !h.challenge.IsVersionSupported() {
		h.report(statusNotSupported)
		return nil
	}
	h.report(fmt.Sprintf(statusSupportedFmt, version))

	if err := h.challenge.Advance(); err != nil {
		return err
	}

	if h.debug && now.Sub(h.lastStats) >= defaultStatsPeriod {
		h.lastStats = now
		s := h.challenge.Stats()
		log.Infoln("Ticks", s.Ticks, "in game", s.InGameTicks, "poison writes", s.SentinelWrites,
			"reward writes", s.RewardWrites, "hits", s.Hits, "bosses", strings.Join(h.challenge.CurrentBosses(), " & "))
	}
	return nil
}

func (h *host) detach() {
	if h.proc == nil {
		return
	}
	h.challenge.Detach()
	if err := h.proc.Close(); err != nil {
		log.Warn("Close failed: ", err)
	}
	h.proc = nil
}

// report prints status when it changes.
func (h *host) report(status string) {
	if status == h.status {
		return
	}
	h.status = status
	fmt.Fprintln(h.out, status)
}
