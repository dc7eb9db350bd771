// Package logging implements the five append/snapshot log writer
// contracts of spec §4.3: binary dump, weak-IV subset, network snapshot
// (plain/CSV/XML), CDP log, and GPS trail. Each writer type has its own
// file, write-through semantics, and participates in the empty-file
// unlink policy the shutdown coordinator drives (§4.6).
package logging

import (
	"fmt"
	"os"
	"strings"
)

// ExpandLogPath substitutes %n (log name/title), %t (log type) and %N
// (run_num) into template, matching the reference implementation's
// ExpandLogPath (kismet_server.cc) naming convention referenced by
// spec §4.3 "Logfile naming at startup".
func ExpandLogPath(template, title, logType string, runNum int) string {
	out := strings.ReplaceAll(template, "%n", title)
	out = strings.ReplaceAll(out, "%t", logType)
	out = strings.ReplaceAll(out, "%N", fmt.Sprintf("%d", runNum))
	return out
}

// FindSlot searches run_num 1..99 for a slot where every enabled log
// type's expanded path does not already exist, returning the first such
// slot (§4.3: "searches run_num 1..99 for a slot where ALL enabled log
// types' expanded paths are available; fail if none found").
func FindSlot(template, title string, logTypes []string) (int, error) {
	for n := 1; n <= 99; n++ {
		allFree := true
		for _, t := range logTypes {
			path := ExpandLogPath(template, title, t, n)
			if _, err := os.Stat(path); err == nil {
				allFree = false
				break
			}
		}
		if allFree {
			return n, nil
		}
	}
	return 0, fmt.Errorf("no free log slot (run_num 1..99) for types %v with template %q", logTypes, template)
}
