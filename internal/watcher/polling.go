package watcher

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

type snapshot struct {
	modTime time.Time
	size    int64
	isDir   bool
}

// poller detects changes by comparing successive directory listings.
type poller struct {
	root    string
	ignored func(rel string) bool
	state   map[string]snapshot
}

func newPoller(root string, ignored func(rel string) bool) *poller {
	return &poller{root: root, ignored: ignored, state: make(map[string]snapshot)}
}

// baseline records the current state as the baseline.
func (p *poller) baseline() error {
	current, err := p.scan()
	if err != nil {
		return err
	}
	p.state = current
	return nil
}

// diff scans again and returns the changes since the previous scan,
// ordered by path.
func (p *poller) diff() ([]Event, error) {
	current, err := p.scan()
	if err != nil {
		return nil, fmt.Errorf("walk directory for changes: %w", err)
	}

	now := time.Now()
	var events []Event
	for rel, snap := range current {
		prev, ok := p.state[rel]
		switch {
		case !ok:
			events = append(events, Event{Path: rel, Op: OpCreate, IsDir: snap.isDir, Time: now})
		case !snap.isDir && (!prev.modTime.Equal(snap.modTime) || prev.size != snap.size):
			events = append(events, Event{Path: rel, Op: OpModify, Time: now})
		}
	}
	for rel, snap := range p.state {
		if _, ok := current[rel]; !ok {
			events = append(events, Event{Path: rel, Op: OpDelete, IsDir: snap.isDir, Time: now})
		}
	}
	p.state = current

	slices.SortFunc(events, func(a, b Event) int { return strings.Compare(a.Path, b.Path) })
	return events, nil
}

func (p *poller) scan() (map[string]snapshot, error) {
	current := make(map[string]snapshot)
	err := filepath.WalkDir(p.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == p.root {
				return err
			}
			// vanished or unreadable: report what is visible
			return nil
		}
		rel, err := filepath.Rel(p.root, path)
		if err != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if p.ignored(rel) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}
		current[rel] = snapshot{modTime: info.ModTime(), size: info.Size(), isDir: d.IsDir()}
		return nil
	})
	return current, err
}
