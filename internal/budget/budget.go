// Package budget parses the daemon's -s size-budget flag (spec.md §6):
// either an absolute byte count with an optional k/M/G suffix, or
// "<path>-<reserve>" meaning "however much free space path's filesystem
// currently has, minus reserve bytes". It is the one place dagd reaches
// below the fs.FS abstraction to the real filesystem, since free-space
// accounting is inherently OS-specific (golang.org/x/sys/unix.Statfs
// rather than a Go-portable stat call).
package budget

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrBadSpec is returned (wrapped) by Parse for an empty or malformed spec,
// or when the free space of a "<path>-<reserve>" path cannot be queried.
// Parse has no "no budget" result; an unlimited budget is
// control.InfiniteCache.
var ErrBadSpec = errors.New("budget: invalid size spec")

var suffixMultiplier = map[byte]int64{
	'k': 1 << 10, 'K': 1 << 10,
	'm': 1 << 20, 'M': 1 << 20,
	'g': 1 << 30, 'G': 1 << 30,
}

// Parse interprets spec as either:
//   - a plain byte count, optionally suffixed with k/K, m/M, or g/G
//     (base-1024 multipliers), e.g. "500M", "2G", "1048576"; or
//   - "<path>-<reserve>", meaning the free space currently available on
//     the filesystem containing path, minus reserve bytes (itself
//     optionally k/M/G-suffixed), e.g. "/var/cache/dagd-10G".
//
// An empty spec is invalid; callers that want "no budget" should not call
// Parse at all and use control.InfiniteCache directly.
func Parse(spec string) (int64, error) {
	if spec == "" {
		return 0, fmt.Errorf("%w: empty", ErrBadSpec)
	}

	if n, ok, err := parsePlain(spec); ok {
		return n, err
	}

	return parsePathReserve(spec)
}

// parsePlain attempts to parse spec as a bare byte count with an optional
// suffix. ok is false when spec does not look like this form at all (no
// leading digit), so the caller falls through to the path-reserve form.
func parsePlain(spec string) (n int64, ok bool, err error) {
	if len(spec) == 0 || (spec[0] < '0' || spec[0] > '9') {
		return 0, false, nil
	}

	numPart := spec
	mult := int64(1)

	if last := spec[len(spec)-1]; !(last >= '0' && last <= '9') {
		m, known := suffixMultiplier[last]
		if !known {
			return 0, true, fmt.Errorf("%w: unknown suffix %q", ErrBadSpec, spec)
		}

		numPart = spec[:len(spec)-1]
		mult = m
	}

	val, err := strconv.ParseInt(numPart, 10, 64)
	if err != nil {
		return 0, true, fmt.Errorf("%w: %q: %w", ErrBadSpec, spec, err)
	}

	return val * mult, true, nil
}

// parsePathReserve parses "<path>-<reserve>": the rightmost '-' splits a
// filesystem path from a reserve amount in the same suffix syntax
// parsePlain accepts.
func parsePathReserve(spec string) (int64, error) {
	i := strings.LastIndexByte(spec, '-')
	if i < 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadSpec, spec)
	}

	path, reserveSpec := spec[:i], spec[i+1:]

	reserve, ok, err := parsePlain(reserveSpec)
	if !ok || err != nil {
		return 0, fmt.Errorf("%w: %q: bad reserve %q", ErrBadSpec, spec, reserveSpec)
	}

	free, err := freeBytes(path)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrBadSpec, spec, err)
	}

	budget := free - reserve
	if budget < 0 {
		budget = 0
	}

	return budget, nil
}

// freeBytes returns the number of bytes free on the filesystem containing
// path, via statfs(2).
func freeBytes(path string) (int64, error) {
	var st unix.Statfs_t

	if err := unix.Statfs(path, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", path, err)
	}

	return int64(st.Bavail) * int64(st.Bsize), nil //nolint:gosec // filesystem-reported sizes fit comfortably in int64
}
