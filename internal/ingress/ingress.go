// Package ingress implements the file-based operator command queue
// (spec.md §4.8): RUN_DIR/cmdq/*.cmd processed in lexicographic order per
// tick, plus the legacy RUN_DIR/command one-shot file, each deleted after
// processing — the "tagged-variant stream feeding a single mailbox" pattern
// from the Design Notes.
package ingress

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"pathsteer/internal/model"
)

// Command is a parsed operator directive.
type Command struct {
	Raw  string
	Verb string
	Arg  string
}

// Queue scans a run directory for pending command files.
type Queue struct {
	runDir string
}

// NewQueue builds a Queue rooted at runDir.
func NewQueue(runDir string) *Queue {
	return &Queue{runDir: runDir}
}

// Drain returns every pending command in processing order (cmdq/*.cmd
// lexicographically, then the legacy single-shot file), deleting each file
// as it is read. Unreadable individual files are skipped, not fatal.
func (q *Queue) Drain() ([]Command, error) {
	var cmds []Command

	cmdqDir := filepath.Join(q.runDir, "cmdq")
	entries, err := os.ReadDir(cmdqDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read cmdq: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".cmd") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(cmdqDir, name)
		data, err := os.ReadFile(path)
		if err == nil {
			if c, ok := parseCommand(string(data)); ok {
				cmds = append(cmds, c)
			}
		}
		_ = os.Remove(path)
	}

	legacyPath := filepath.Join(q.runDir, "command")
	if data, err := os.ReadFile(legacyPath); err == nil {
		if c, ok := parseCommand(string(data)); ok {
			cmds = append(cmds, c)
		}
		_ = os.Remove(legacyPath)
	}

	return cmds, nil
}

func parseCommand(raw string) (Command, bool) {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Command{}, false
	}
	verb, arg, _ := strings.Cut(line, ":")
	return Command{Raw: line, Verb: verb, Arg: arg}, true
}

// Apply executes one command against st/uplinks per the table in
// spec.md §4.8, returning the ack recorded in the status snapshot.
// fire is called to synthesize a MANUAL tripwire fire for the `trigger`
// command; rearbitrate is called for `force:auto` (the engine's callback
// resets the flap counter and does not itself run an arbitration pass). requestDuplication is called for mode:mirror (true) and
// mode:training (false) so the caller can actuate the mirror rule outside
// the store lock (spec.md §5) and commit DuplicationEnabled only once the
// shell-out's outcome is known — Apply itself never flips that flag.
func Apply(cmd Command, st *model.Status, uplinks map[string]*model.Uplink, fire func(), rearbitrate func(), requestDuplication func(enable bool)) model.CommandAck {
	switch cmd.Verb {
	case "mode":
		switch cmd.Arg {
		case "training":
			st.Mode = model.ModeTraining
			if requestDuplication != nil {
				requestDuplication(false)
			}
		case "tripwire":
			st.Mode = model.ModeTripwire
		case "mirror":
			st.Mode = model.ModeMirror
			if requestDuplication != nil {
				requestDuplication(true)
			}
		default:
			return fail(cmd, "unknown_mode")
		}
		return ok(cmd, "mode="+cmd.Arg)

	case "force":
		if cmd.Arg == "auto" {
			st.OperatorForceLocked = false
			st.SwitchesInWindow = 0
			if rearbitrate != nil {
				rearbitrate()
			}
			return ok(cmd, "force=auto")
		}
		u, exists := uplinks[cmd.Arg]
		if !exists {
			return fail(cmd, "unknown_uplink")
		}
		st.ActiveUplink = u.Name
		st.OperatorForceLocked = true
		return ok(cmd, "force="+cmd.Arg)

	case "trigger":
		if fire != nil {
			fire()
		}
		return ok(cmd, "manual_trigger")

	case "enable", "disable":
		u, exists := uplinks[cmd.Arg]
		if !exists {
			return fail(cmd, "unknown_uplink")
		}
		u.Enabled = cmd.Verb == "enable"
		return ok(cmd, cmd.Verb+"="+cmd.Arg)

	case "fail", "unfail":
		u, exists := uplinks[cmd.Arg]
		if !exists {
			return fail(cmd, "unknown_uplink")
		}
		u.OperatorForceFail = cmd.Verb == "fail"
		if u.OperatorForceFail {
			u.Reachable = false
		}
		return ok(cmd, cmd.Verb+"="+cmd.Arg)

	case "c8000":
		switch cmd.Arg {
		case "0":
			st.ActiveController = 0
		case "1":
			st.ActiveController = 1
		default:
			return fail(cmd, "unknown_cmd")
		}
		return ok(cmd, "c8000="+cmd.Arg)

	default:
		return fail(cmd, "unknown_cmd")
	}
}

func ok(cmd Command, detail string) model.CommandAck {
	return model.CommandAck{LastCmdID: cmd.Raw, Result: "exec", Detail: detail}
}

func fail(cmd Command, detail string) model.CommandAck {
	return model.CommandAck{LastCmdID: cmd.Raw, Result: "fail", Detail: detail}
}
