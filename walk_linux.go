//go:build linux

package fstrace

import (
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// markDir installs a fanotify mark on dir (FAN_MARK_ADD | markMask).
func markDir(fanotifyFd int, dir string) error {
	if err := unix.FanotifyMark(fanotifyFd, unix.FAN_MARK_ADD, markMask, unix.AT_FDCWD, dir); err != nil {
		return fsErr("fanotify_mark", dir, err)
	}
	return nil
}

// walkAndMark breadth-first traverses root, marking every directory it
// discovers (root included) and skipping symlinks, matching the component
// design's choice of BFS over filepath.WalkDir's depth-first order so that
// a rename racing the traversal can't orphan an entire untraversed subtree
// behind a moved ancestor.
//
// visited is keyed by inode number; root's own inode is deliberately never
// recorded; only its descendants are, so that a bind-mounted or otherwise
// re-entrant root does not short-circuit the very first directory.
func walkAndMark(fanotifyFd int, root string) error {
	if err := markDir(fanotifyFd, root); err != nil {
		return err
	}

	visited := make(map[uint64]struct{})
	queue := []string{root}

	for len(queue) > 0 {
		dir := queue[0]
		queue = queue[1:]

		entries, err := os.ReadDir(dir)
		if err != nil {
			if debug {
				logf("walk: readdir %s: %v", dir, err)
			}
			continue
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			child := filepath.Join(dir, entry.Name())

			info, err := os.Lstat(child)
			if err != nil {
				continue
			}
			if info.Mode()&os.ModeSymlink != 0 {
				continue
			}

			stat, ok := info.Sys().(*syscall.Stat_t)
			if ok {
				if _, seen := visited[stat.Ino]; seen {
					continue
				}
				visited[stat.Ino] = struct{}{}
			}

			if err := markDir(fanotifyFd, child); err != nil {
				if debug {
					logf("walk: mark %s: %v", child, err)
				}
				continue
			}
			queue = append(queue, child)
		}
	}

	return nil
}
