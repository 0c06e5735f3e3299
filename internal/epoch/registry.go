package epoch

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dagforge/dagd/internal/dagio"
	"github.com/dagforge/dagd/internal/diag"
	"github.com/dagforge/dagd/internal/kernel"
	"github.com/dagforge/dagd/pkg/fs"
)

// EpochMin and EpochMax bound the epoch numbers Registry.Scan considers.
// EpochMin excludes epoch 0, reserved for algorithms (ZIL) dagd does not
// special-case; EpochMax is comfortably above any network's current epoch.
const (
	EpochMin = 8
	EpochMax = 1000
)

// ErrBadPathTemplate is returned when a path template does not accept
// exactly one algorithm-name and one epoch-number substitution.
var ErrBadPathTemplate = errors.New("epoch: path template must contain exactly one %s and one %d verb")

// ValidatePathTemplate reports whether tmpl can be used as a dag or
// checksum path template.
func ValidatePathTemplate(tmpl string) error {
	rendered := fmt.Sprintf(tmpl, "x", 0)
	if strings.Contains(rendered, "%!") {
		return fmt.Errorf("%w: %q", ErrBadPathTemplate, tmpl)
	}

	return nil
}

func renderPath(tmpl string, algo kernel.Algorithm, num uint32) string {
	return fmt.Sprintf(tmpl, algo.Name(), num)
}

// KernelsFor resolves the Kernels implementation for an algorithm.
type KernelsFor func(kernel.Algorithm) (kernel.Kernels, error)

// Registry holds every epoch currently represented on disk, kept sorted in
// ascending epoch-number order (mirroring the original daemon's singly
// linked list, which append_epoch kept sorted the same way). It also owns
// admission and eviction against a byte budget.
type Registry struct {
	records []*Record

	store            *dagio.Store
	fsys             fs.FS
	kernelsFor       KernelsFor
	dagPathTemplate  string
	csumPathTemplate string // empty if no checksum verification is configured
	blockSize        int64
	maxCache         int64
	log              *diag.Logger
}

// Config bundles everything Registry needs to open, create, and size
// dataset files.
type Config struct {
	Store            *dagio.Store
	FS               fs.FS
	KernelsFor       KernelsFor
	DagPathTemplate  string
	CsumPathTemplate string
	BlockSize        int64
	MaxCache         int64
	Log              *diag.Logger
}

// New returns an empty Registry.
func New(cfg Config) *Registry {
	log := cfg.Log
	if log == nil {
		log = diag.Nop()
	}

	return &Registry{
		store:            cfg.Store,
		fsys:             cfg.FS,
		kernelsFor:       cfg.KernelsFor,
		dagPathTemplate:  cfg.DagPathTemplate,
		csumPathTemplate: cfg.CsumPathTemplate,
		blockSize:        cfg.BlockSize,
		maxCache:         cfg.MaxCache,
		log:              log,
	}
}

// Records returns the live, ascending-by-epoch slice of currently tracked
// records. Callers must not reorder or resize it directly; use Registry's
// mutating methods instead.
func (r *Registry) Records() []*Record { return r.records }

// TotalSize sums Size() over every tracked record.
func (r *Registry) TotalSize() int64 {
	var sum int64
	for _, rec := range r.records {
		sum += rec.Size()
	}

	return sum
}

// Report joins every record's Report() with ';', matching the original
// daemon's status string format.
func (r *Registry) Report() string {
	parts := make([]string, len(r.records))
	for i, rec := range r.records {
		parts[i] = rec.Report()
	}

	return strings.Join(parts, ";")
}

func (r *Registry) insertSorted(rec *Record) {
	i := 0
	for i < len(r.records) && r.records[i].Num() <= rec.Num() {
		i++
	}

	r.records = append(r.records, nil)
	copy(r.records[i+1:], r.records[i:])
	r.records[i] = rec
}

// Scan opens every epoch (for every known algorithm) within
// [EpochMin, EpochMax] whose dataset file already exists, populating the
// registry from on-disk state. It never creates files. An epoch whose file
// exists but cannot be opened or sized is logged and skipped.
func (r *Registry) Scan() error {
	for _, algo := range kernel.All() {
		kern, err := r.kernelsFor(algo)
		if err != nil {
			return err
		}

		for n := uint32(EpochMin); n <= EpochMax; n++ {
			rec, err := r.open(kern, algo, n)
			if err != nil {
				r.log.Printf(1, "epoch: skipping %s %d: %v", algo.Name(), n, err)

				continue
			}

			if rec == nil {
				continue
			}

			r.insertSorted(rec)
		}
	}

	return nil
}

// open tries to open an existing dataset file for (algo, n). It returns
// (nil, nil) if no file exists for that epoch, matching the original
// daemon's epoch_open returning NULL without treating a missing file as an
// error.
func (r *Registry) open(kern kernel.Kernels, algo kernel.Algorithm, n uint32) (*Record, error) {
	path := renderPath(r.dagPathTemplate, algo, n)

	rec := newRecord(kern, algo, n, path, r.blockSize)

	f, err := r.store.TryOpen(path)
	if err != nil {
		if errors.Is(err, dagio.ErrNotExist) {
			return nil, nil //nolint:nilnil // "not present" is a valid, non-error scan outcome
		}

		return nil, err
	}

	bytes, err := f.Bytes()
	if err != nil {
		return nil, err
	}

	rec.file = f
	rec.nominal = uint32(bytes / kernel.LineBytes)
	rec.size = RoundToBlock(bytes, r.blockSize)

	r.openChecksum(rec)

	return rec, nil
}

func (r *Registry) openChecksum(rec *Record) {
	if r.csumPathTemplate == "" {
		return
	}

	path := renderPath(r.csumPathTemplate, rec.algo, rec.num)

	csum, err := dagio.OpenChecksumFile(r.fsys, path)
	if err != nil {
		r.log.Printf(1, "epoch: no checksum file for %s %d: %v", rec.algo.Name(), rec.num, err)

		return
	}

	rec.csum = csum
}

// Remove closes and deletes rec's dataset file and drops it from the
// registry.
func (r *Registry) Remove(rec *Record) {
	r.log.Printf(1, "remove epoch %s %d", rec.algo.Name(), rec.num)

	for i, cand := range r.records {
		if cand == rec {
			r.records = append(r.records[:i], r.records[i+1:]...)

			break
		}
	}

	if rec.file != nil {
		_ = rec.file.CloseAndDelete()
		rec.file = nil
	}

	if rec.csum != nil {
		_ = rec.csum.Close()
	}

	rec.releaseCache()
	rec.releaseChunkBuf()
}

// free drops rec from the registry without deleting its on-disk file
// (maybeWipe's sibling operation: forget about an epoch that fell behind
// the current one, but leave any partial file for a future rescan to
// reconsider -- matching free_epoch, used where the original frees without
// wiping, versus remove_epoch's wipe-then-free).
func (r *Registry) free(rec *Record) {
	for i, cand := range r.records {
		if cand == rec {
			r.records = append(r.records[:i], r.records[i+1:]...)

			break
		}
	}

	if rec.file != nil {
		_ = rec.file.Close()
		rec.file = nil
	}

	if rec.csum != nil {
		_ = rec.csum.Close()
	}

	rec.releaseCache()
	rec.releaseChunkBuf()
}

// BlockSize returns the filesystem block size records round their byte
// accounting to.
func (r *Registry) BlockSize() int64 { return r.blockSize }

// Shutdown closes every tracked record's open handles without deleting
// anything, matching spec.md §1's "does not guarantee that partially-built
// artifacts survive a process crash" Non-goal the other way around: a
// clean shutdown leaves whatever valid prefix exists on disk for the next
// Scan to pick back up, instead of wiping in-progress work.
func (r *Registry) Shutdown() {
	for _, rec := range r.records {
		if rec.file != nil {
			_ = rec.file.Close()
		}

		if rec.csum != nil {
			_ = rec.csum.Close()
		}

		rec.releaseCache()
		rec.releaseChunkBuf()
	}
}

// KernelFor resolves the Kernels implementation for algo, for callers (the
// scheduler) that need one without going through Scan or NewEpoch.
func (r *Registry) KernelFor(algo kernel.Algorithm) (kernel.Kernels, error) {
	return r.kernelsFor(algo)
}

// Successor returns the tracked record immediately after rec in ascending
// epoch order, or nil if rec is last (or not tracked).
func (r *Registry) Successor(rec *Record) *Record {
	for i, cand := range r.records {
		if cand == rec {
			if i+1 < len(r.records) {
				return r.records[i+1]
			}

			return nil
		}
	}

	return nil
}

// ReleaseCache frees rec's intermediate-cache buffers, matching cache_free
// being invoked as soon as an epoch needs no further construction work.
func (r *Registry) ReleaseCache(rec *Record) {
	rec.releaseCache()
}

// CreateFile opens rec's dataset file for writing, truncating any existing
// content, for a record the scheduler is about to write its first chunk
// into (the original's create_dag).
func (r *Registry) CreateFile(rec *Record) error {
	f, err := r.store.Create(rec.path)
	if err != nil {
		return err
	}

	rec.file = f

	return nil
}

// MayAdd reports whether a new dataset for (algo, n) can be admitted,
// evicting lower-priority epochs (preferring a different algorithm's
// oldest epoch, and never evicting a same-algorithm epoch that is older
// than n) until there is room, or returning false if no more room can be
// made.
func (r *Registry) MayAdd(algo kernel.Algorithm, n uint32, kern kernel.Kernels) bool {
	size := RoundToBlock(int64(kern.DatasetLines(n))*kernel.LineBytes, r.blockSize)

	for {
		sum := r.TotalSize()
		if sum < r.maxCache && sum+size < r.maxCache {
			return true
		}

		if len(r.records) == 0 {
			return false
		}

		victim := r.victimFor(algo)
		if victim.Algorithm() == algo && victim.Num() <= n {
			return false
		}

		r.Remove(victim)
	}
}

// victimFor picks the eviction candidate: the lowest-epoch tracked record
// belonging to a different algorithm, if one exists; otherwise the
// highest-epoch tracked record overall (which then necessarily belongs to
// algo). Records are kept sorted ascending by epoch, so the first foreign
// match found while scanning is the lowest (spec.md §8 scenario 3: a
// foreign-algorithm epoch is evicted lower-epoch-first, biasing retention
// toward the current algorithm's higher epochs).
func (r *Registry) victimFor(algo kernel.Algorithm) *Record {
	for _, rec := range r.records {
		if rec.Algorithm() != algo {
			return rec
		}
	}

	return r.records[len(r.records)-1]
}

// NewEpoch creates and tracks a brand-new (algo, n) dataset file.
func (r *Registry) NewEpoch(algo kernel.Algorithm, n uint32) (*Record, error) {
	kern, err := r.kernelsFor(algo)
	if err != nil {
		return nil, err
	}

	path := renderPath(r.dagPathTemplate, algo, n)
	rec := newRecord(kern, algo, n, path, r.blockSize)

	f, err := r.store.Create(path)
	if err != nil {
		return nil, err
	}

	rec.file = f
	r.openChecksum(rec)
	r.insertSorted(rec)

	return rec, nil
}

// MaybePrepend inserts a not-yet-tracked record for (currAlgo, currEpoch) at
// the front of the registry if the earliest tracked record for currAlgo is
// for a later epoch. It returns true if it added anything.
func (r *Registry) MaybePrepend(currAlgo kernel.Algorithm, currEpoch uint32) (bool, error) {
	var first *Record

	for _, rec := range r.records {
		if rec.Algorithm() == currAlgo {
			first = rec

			break
		}
	}

	if first == nil || first.Num() <= currEpoch {
		return false, nil
	}

	kern, err := r.kernelsFor(currAlgo)
	if err != nil {
		return false, err
	}

	path := renderPath(r.dagPathTemplate, currAlgo, currEpoch)
	rec := newRecord(kern, currAlgo, currEpoch, path, r.blockSize)
	r.insertSorted(rec)

	return true, nil
}

// MaybeWipe drops the oldest tracked record for currAlgo if it is older
// than currEpoch, deleting its partial file. It returns true if it removed
// anything.
func (r *Registry) MaybeWipe(currAlgo kernel.Algorithm, currEpoch uint32) bool {
	var victim *Record

	for _, rec := range r.records {
		if rec.Algorithm() == currAlgo {
			victim = rec

			break
		}
	}

	if victim == nil || victim.Num() >= currEpoch {
		return false
	}

	if victim.HasFile() {
		r.Remove(victim)
	} else {
		r.free(victim)
	}

	return true
}
