// Package session holds the survey workspace: the map/street mode, the map
// center, the selected and pending locations, and the wiring between the
// record store, the map surface, the panorama viewer and the form.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/apex/log"

	"treewalk/internal/csvbridge"
	"treewalk/internal/form"
	"treewalk/internal/logging"
	"treewalk/internal/mapsurface"
	"treewalk/internal/panorama"
	"treewalk/pkg/domain"
)

// Mode is the workspace layout.
type Mode string

const (
	ModeMap    Mode = "map"
	ModeStreet Mode = "street"
)

// ParseMode validates a mode name.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(raw); m {
	case ModeMap, ModeStreet:
		return m, nil
	default:
		return "", fmt.Errorf("unknown mode %q", raw)
	}
}

// DefaultCenter is the National Mall.
var DefaultCenter = domain.LatLng{Lat: 38.8895, Lng: -77.0353}

// Store is what the session needs from the record store.
type Store interface {
	form.Sink
	mapsurface.RecordSource
	ReplaceAll(ctx context.Context, records []domain.TreeObservation) error
	Records() []domain.TreeObservation
	Get(id string) (domain.TreeObservation, bool)
	Len() int
}

// ErrInvalidCSV marks an import whose body could not be parsed.
var ErrInvalidCSV = errors.New("invalid csv")

// ImportObserver counts import attempts.
type ImportObserver interface {
	ObserveImport(success bool)
}

type noopImportObserver struct{}

func (noopImportObserver) ObserveImport(bool) {}

// Snapshot is the observable session state.
type Snapshot struct {
	Mode     Mode           `json:"mode"`
	Center   domain.LatLng  `json:"center"`
	Selected domain.LatLng  `json:"selected"`
	Pending  *domain.LatLng `json:"pending"`
	Viewer   panorama.State `json:"viewer"`
	Form     form.Snapshot  `json:"form"`
	Records  int            `json:"records"`
}

// Controller owns one survey session. It is safe for concurrent use.
type Controller struct {
	store    Store
	viewer   *panorama.Viewer
	form     *form.Form
	surface  *mapsurface.Surface
	importer *csvbridge.Importer
	logger   log.Interface
	imports  ImportObserver

	mu       sync.Mutex
	mode     Mode
	center   domain.LatLng
	selected domain.LatLng
	pending  *domain.LatLng
}

type config struct {
	center      domain.LatLng
	settleDelay time.Duration
	location    *time.Location
	logger      log.Interface
	imports     ImportObserver
	importer    *csvbridge.Importer
	formOpts    []form.Option
}

// Option configures a Controller.
type Option func(*config)

// WithCenter sets the initial map center and selection.
func WithCenter(c domain.LatLng) Option { return func(cfg *config) { cfg.center = c } }

// WithSettleDelay sets the pan debounce delay.
func WithSettleDelay(d time.Duration) Option { return func(cfg *config) { cfg.settleDelay = d } }

// WithLocation sets the time zone for marker popups.
func WithLocation(loc *time.Location) Option { return func(cfg *config) { cfg.location = loc } }

// WithLogger sets the logger.
func WithLogger(l log.Interface) Option { return func(cfg *config) { cfg.logger = l } }

// WithImportObserver sets the import counter.
func WithImportObserver(o ImportObserver) Option {
	return func(cfg *config) {
		if o != nil {
			cfg.imports = o
		}
	}
}

// WithImporter replaces the CSV importer.
func WithImporter(im *csvbridge.Importer) Option { return func(cfg *config) { cfg.importer = im } }

// WithFormOptions passes options to the observation form.
func WithFormOptions(opts ...form.Option) Option {
	return func(cfg *config) { cfg.formOpts = append(cfg.formOpts, opts...) }
}

// New wires a session over store and viewer. The session starts in map mode
// at the configured center.
func New(store Store, viewer *panorama.Viewer, opts ...Option) *Controller {
	cfg := config{center: DefaultCenter, location: time.UTC, imports: noopImportObserver{}}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.importer == nil {
		cfg.importer = csvbridge.NewImporter()
	}
	c := &Controller{
		store:    store,
		viewer:   viewer,
		form:     form.New(cfg.formOpts...),
		importer: cfg.importer,
		logger:   logging.OrDefault(cfg.logger),
		imports:  cfg.imports,
		mode:     ModeMap,
		center:   cfg.center,
		selected: cfg.center,
	}
	tracker := mapsurface.NewTracker(cfg.settleDelay, c.centerChanged, c.locationSelected)
	c.surface = mapsurface.New(store, mapsurface.WithLocation(cfg.location), mapsurface.WithTracker(tracker))
	viewer.SetLabelHandler(c.openFormAtSelection)
	return c
}

// Surface returns the map surface bound to this session.
func (c *Controller) Surface() *mapsurface.Surface { return c.surface }

// Viewer returns the panorama viewer.
func (c *Controller) Viewer() *panorama.Viewer { return c.viewer }

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	s := Snapshot{Mode: c.mode, Center: c.center, Selected: c.selected}
	if c.pending != nil {
		p := *c.pending
		s.Pending = &p
	}
	c.mu.Unlock()
	s.Viewer = c.viewer.State()
	s.Form = c.form.Snapshot()
	s.Records = c.store.Len()
	return s
}

// SetMode switches the layout without any lookup.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	c.mode = m
	c.mu.Unlock()
}

// StartExploring enters street mode and looks up the panorama at the map center.
func (c *Controller) StartExploring(ctx context.Context) panorama.State {
	c.SetMode(ModeStreet)
	st, _ := c.Refresh(ctx)
	return st
}

// Refresh looks up the panorama nearest to the map center.
func (c *Controller) Refresh(ctx context.Context) (panorama.State, bool) {
	c.mu.Lock()
	center := c.center
	c.mu.Unlock()
	return c.viewer.Refresh(ctx, center)
}

// RefreshAsync starts a lookup at the map center and returns at once. The
// result lands in the viewer state unless a newer lookup was issued first.
// Close waits for it.
func (c *Controller) RefreshAsync(ctx context.Context) {
	c.mu.Lock()
	center := c.center
	c.mu.Unlock()
	c.viewer.RefreshAsync(ctx, center, func(st panorama.State, applied bool) {
		if !applied {
			c.logger.WithField("seq", st.Seq).Debug("background panorama lookup superseded")
		}
	})
}

// Pan feeds a map movement through the settle debounce.
func (c *Controller) Pan(at domain.LatLng) { c.surface.Pan(at) }

// FlushPan applies a pending pan immediately.
func (c *Controller) FlushPan() { c.surface.Flush() }

// Select feeds a map click.
func (c *Controller) Select(at domain.LatLng) { c.surface.Click(at) }

func (c *Controller) centerChanged(at domain.LatLng) {
	c.mu.Lock()
	c.center = at
	c.mu.Unlock()
}

// locationSelected moves the selection. In street mode the click also
// becomes the pending location for the next label.
func (c *Controller) locationSelected(at domain.LatLng) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = at
	if c.mode == ModeStreet {
		p := at
		c.pending = &p
	}
}

// Label opens the form at the current selection.
func (c *Controller) Label() error {
	c.viewer.Label()
	if !c.form.IsOpen() {
		return form.ErrNoPendingLocation
	}
	return nil
}

func (c *Controller) openFormAtSelection() {
	c.mu.Lock()
	p := c.selected
	c.pending = &p
	c.mu.Unlock()
	c.form.Open(&p)
}

// UpdateForm replaces the form field values.
func (c *Controller) UpdateForm(fields form.Fields) error { return c.form.Update(fields) }

// SubmitForm saves the form as an observation tagged with the image
// currently shown in the viewer.
func (c *Controller) SubmitForm(ctx context.Context) (domain.TreeObservation, error) {
	rec, err := c.form.Submit(ctx, c.viewer.ImageID(), c.store)
	if err != nil {
		return rec, err
	}
	c.logger.WithFields(log.Fields{"id": rec.ID, "species": rec.Species}).Info("observation saved")
	return rec, nil
}

// CancelForm closes the form without saving.
func (c *Controller) CancelForm() { c.form.Cancel() }

// Import replaces the collection with the records parsed from r. On any
// failure the collection is left as it was.
func (c *Controller) Import(ctx context.Context, r io.Reader) (csvbridge.Report, error) {
	records, report, err := c.importer.Import(r)
	if err != nil {
		c.imports.ObserveImport(false)
		c.logger.WithError(err).Error("import csv")
		return report, fmt.Errorf("import csv: %w: %w", ErrInvalidCSV, err)
	}
	if err := c.store.ReplaceAll(ctx, records); err != nil {
		c.imports.ObserveImport(false)
		return report, fmt.Errorf("import csv: %w", err)
	}
	c.imports.ObserveImport(true)
	c.logger.WithFields(log.Fields{"imported": report.Imported, "dropped": report.Dropped}).Info("csv imported")
	return report, nil
}

// Records returns the collection, newest first.
func (c *Controller) Records() []domain.TreeObservation { return c.store.Records() }

// Record returns one observation by id.
func (c *Controller) Record(id string) (domain.TreeObservation, bool) { return c.store.Get(id) }

// Export writes the collection as CSV.
func (c *Controller) Export(w io.Writer) error {
	return csvbridge.Export(w, c.store.Records())
}

// Close stops the pan debounce and waits for in-flight lookups.
func (c *Controller) Close() {
	c.surface.Close()
	c.viewer.Wait()
}
