// Package process_finder locates the game process by executable name.
package process_finder

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"poisonchallenge/process"

	ps "github.com/shirou/gopsutil/v3/process"
)

// Finder implements process.ProcessFinder on top of gopsutil, so the same
// lookup works for a native Windows process and a Wine process on Linux.
type Finder struct{}

var _ process.ProcessFinder = Finder{}

func New() Finder {
	return Finder{}
}

// FindProcessByName returns the matching process with the lowest PID, or an
// error wrapping os.ErrNotExist when nothing matches.
func (Finder) FindProcessByName(name string) (*process.ProcessInfo, error) {
	if name == "" {
		return nil, fmt.Errorf("empty process name")
	}

	procs, err := ps.Processes()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	sort.Slice(procs, func(i, j int) bool { return procs[i].Pid < procs[j].Pid })

	self := int32(os.Getpid())
	for _, p := range procs {
		if p.Pid == self {
			continue
		}

		procName, _ := p.Name()
		exe, _ := p.Exe()
		var argv0 string
		if args, err := p.CmdlineSlice(); err == nil && len(args) > 0 {
			argv0 = args[0]
		}

		if MatchesName(name, procName, exe, argv0) {
			return &process.ProcessInfo{
				PID:  process.ProcessID(p.Pid),
				Name: procName,
				Exe:  exe,
			}, nil
		}
	}

	return nil, fmt.Errorf("process not found: '%s': %w", name, os.ErrNotExist)
}

func (Finder) Exists(pid process.ProcessID) bool {
	ok, err := ps.PidExists(int32(pid))
	return err == nil && ok
}

// MatchesName reports whether any candidate (a process name, an executable
// path or argv[0]) names the executable name. Comparison ignores case, the
// directory part with either slash style, and a missing ".exe" on either
// side. Linux truncates comm to 15 bytes, so a candidate of exactly that
// length also matches a longer name it prefixes.
func MatchesName(name string, candidates ...string) bool {
	want := normalizeName(name)
	if want == "" {
		return false
	}
	for _, c := range candidates {
		got := normalizeName(c)
		if got == "" {
			continue
		}
		if got == want {
			return true
		}
		if len(c) == commLen && !strings.ContainsAny(c, `/\`) && strings.HasPrefix(strings.ToLower(name), strings.ToLower(c)) {
			return true
		}
	}
	return false
}

const commLen = 15

func normalizeName(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), `\`, "/")
	if s == "" {
		return ""
	}
	s = strings.ToLower(path.Base(s))
	return strings.TrimSuffix(s, ".exe")
}
