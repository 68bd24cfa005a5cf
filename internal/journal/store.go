package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/uswork-ny/godzilla-community/internal/location"
	"github.com/uswork-ny/godzilla-community/internal/nanotime"
	"github.com/uswork-ny/godzilla-community/internal/obs"
	"github.com/uswork-ny/godzilla-community/pkg/exception"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const pageSuffix = ".journal"

// OpenOptions selects how a page is opened. Writer is the identity of the
// writer and is required with ForWrite.
type OpenOptions struct {
	ForWrite bool
	Lazy     bool
	Writer   string
}

// Store owns the page files under one journal root.
type Store struct {
	cfg     Config
	clock   nanotime.Clock
	metrics *obs.Metrics
}

// NewStore validates cfg and creates the root directory.
func NewStore(cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.Root, 0o755); err != nil {
		return nil, errors.Wrap(exception.ErrIO, err.Error()).With("root", cfg.Root)
	}
	return &Store{cfg: cfg, clock: nanotime.SystemClock{}}, nil
}

// WithClock swaps the clock used to stamp gen_time.
func (s *Store) WithClock(clock nanotime.Clock) *Store {
	if clock != nil {
		s.clock = clock
	}
	return s
}

// WithMetrics attaches a metrics sink.
func (s *Store) WithMetrics(m *obs.Metrics) *Store {
	s.metrics = m
	return s
}

func (s *Store) Config() Config        { return s.cfg }
func (s *Store) Clock() nanotime.Clock { return s.clock }

// Dir is the journal directory of a location.
func (s *Store) Dir(loc *location.Location) string {
	return filepath.Join(s.cfg.Root, loc.Mode.String(), loc.Category.String(), loc.Group, loc.Name, "journal")
}

// PagePath is the file of one page.
func (s *Store) PagePath(loc *location.Location, dest, pageID uint32) string {
	return filepath.Join(s.Dir(loc), fmt.Sprintf("%08x.%d%s", dest, pageID, pageSuffix))
}

func (s *Store) lockPath(loc *location.Location, dest uint32) string {
	return filepath.Join(s.Dir(loc), fmt.Sprintf("%08x.lock", dest))
}

// ParsePageName splits a page file name into dest and page id.
func ParsePageName(name string) (dest, pageID uint32, ok bool) {
	if !strings.HasSuffix(name, pageSuffix) {
		return 0, 0, false
	}
	parts := strings.Split(strings.TrimSuffix(name, pageSuffix), ".")
	if len(parts) != 2 {
		return 0, 0, false
	}
	d, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return 0, 0, false
	}
	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil || id == 0 {
		return 0, 0, false
	}
	return uint32(d), uint32(id), true
}

// PageIDs lists the page ids of a journal in ascending order.
func (s *Store) PageIDs(loc *location.Location, dest uint32) ([]uint32, error) {
	entries, err := os.ReadDir(s.Dir(loc))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(exception.ErrIO, err.Error()).With("location", loc.UName)
	}
	var ids []uint32
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		d, id, ok := ParsePageName(entry.Name())
		if !ok || d != dest {
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Open maps a page. For write the page is created when missing and the
// journal must not be held by another writer identity. For read a missing
// page returns ErrPageNotFound, which readers treat as no data yet.
func (s *Store) Open(loc *location.Location, dest, pageID uint32, opts OpenOptions) (*Page, error) {
	if pageID == 0 || pageID > maxPageID {
		return nil, errors.Wrapf(exception.ErrIO, "page id %d out of range", pageID)
	}
	var (
		page *Page
		err  error
	)
	if opts.ForWrite {
		page, err = s.openWrite(loc, dest, pageID, opts.Writer)
	} else {
		page, err = s.openRead(loc, dest, pageID)
	}
	if err != nil {
		return nil, err
	}
	if !opts.Lazy {
		if _, err := s.Sweep(loc, dest, pageID); err != nil {
			logs.Warnf("sweep %s/%08x, err: %+v", loc.UName, dest, err)
		}
	}
	return page, nil
}

func (s *Store) openWrite(loc *location.Location, dest, pageID uint32, identity string) (*Page, error) {
	if identity == "" {
		return nil, errors.Wrap(exception.ErrIO, "writer identity is empty")
	}
	if err := os.MkdirAll(s.Dir(loc), 0o755); err != nil {
		return nil, errors.Wrap(exception.ErrIO, err.Error()).With("location", loc.UName)
	}
	lockPath := s.lockPath(loc, dest)
	if err := acquireWriter(lockPath, identity); err != nil {
		return nil, err
	}
	// released when the page closes
	path := s.PagePath(loc, dest, pageID)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		releaseWriter(lockPath, identity)
		return nil, errors.Wrap(exception.ErrIO, err.Error()).With("path", path)
	}
	size := s.cfg.pageSize(loc.Category)
	page := &Page{loc: loc, dest: dest, id: pageID, size: size, path: path, file: file, writable: true, lockPath: lockPath, identity: identity}

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		releaseWriter(lockPath, identity)
		return nil, errors.Wrap(exception.ErrIO, err.Error()).With("path", path)
	}
	if info.Size() >= pageHeaderSize {
		if h, err := page.header(); err == nil {
			page.size = int(h.PageSize)
			return page, nil
		}
	}

	if err := file.Truncate(int64(size)); err != nil {
		_ = file.Close()
		releaseWriter(lockPath, identity)
		return nil, errors.Wrap(exception.ErrIO, err.Error()).With("path", path)
	}
	var buf [pageHeaderSize]byte
	encodePageHeader(buf[:], pageHeader{PageSize: uint32(size), PageID: pageID})
	if _, err := file.WriteAt(buf[:], 0); err != nil {
		_ = file.Close()
		releaseWriter(lockPath, identity)
		return nil, errors.Wrap(exception.ErrIO, err.Error()).With("path", path)
	}
	return page, nil
}

func (s *Store) openRead(loc *location.Location, dest, pageID uint32) (*Page, error) {
	path := s.PagePath(loc, dest, pageID)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrPageNotFound
		}
		return nil, errors.Wrap(exception.ErrIO, err.Error()).With("path", path)
	}
	page := &Page{loc: loc, dest: dest, id: pageID, path: path, file: file}
	h, err := page.header()
	if err != nil {
		_ = file.Close()
		// the writer has created the file but not stamped the header yet
		return nil, ErrPageNotFound
	}
	page.size = int(h.PageSize)
	return page, nil
}

// FindPageID returns the last page whose first frame is older than t, the
// earliest retained page when t precedes all of them, and 1 for an empty
// journal.
func (s *Store) FindPageID(loc *location.Location, dest uint32, t int64) (uint32, error) {
	ids, err := s.PageIDs(loc, dest)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 1, nil
	}
	found := ids[0]
	if t <= 0 {
		return found, nil
	}
	for _, id := range ids {
		page, err := s.openRead(loc, dest, id)
		if err != nil {
			if err == ErrPageNotFound {
				continue
			}
			return 0, err
		}
		begin, err := page.BeginTime()
		_ = page.Close()
		if err != nil {
			return 0, err
		}
		if begin == 0 || begin >= t {
			break
		}
		found = id
	}
	return found, nil
}

// Sweep deletes pages that fell out of the retention window behind newest.
// It returns how many pages were removed.
func (s *Store) Sweep(loc *location.Location, dest, newest uint32) (int, error) {
	keep := s.cfg.keepPages(loc, dest)
	if keep <= 0 || newest <= uint32(keep) {
		return 0, nil
	}
	ids, err := s.PageIDs(loc, dest)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		if id > newest-uint32(keep) {
			break
		}
		path := s.PagePath(loc, dest, id)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, errors.Wrap(exception.ErrIO, err.Error()).With("path", path)
		}
		removed++
		logs.Infof("journal %s/%08x retired page %d", loc.UName, dest, id)
	}
	s.metrics.AddPagesSwept(removed)
	return removed, nil
}

// NewWriter opens the tail of the journal (loc, dest) for identity, resuming
// after the last committed frame.
func (s *Store) NewWriter(loc *location.Location, dest uint32, identity string) (*Writer, error) {
	return newWriter(s, loc, dest, identity)
}

// NewReader creates a reader with no journals joined.
func (s *Store) NewReader() *Reader {
	return &Reader{store: s}
}
