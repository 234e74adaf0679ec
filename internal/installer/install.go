package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"wrtools/internal/components"
	"wrtools/internal/platform"
)

const tracerName = "wrtools/internal/installer"

// Mode selects how an orchestration reacts to lookup failures and whether it
// needs user consent before downloading.
type Mode int

const (
	// ModeExplicit always re-queries the registry and reports every stage.
	// A missing asset is an error.
	ModeExplicit Mode = iota
	// ModeBackground swallows registry failures and missing assets, and only
	// reports progress once an update is known to be needed.
	ModeBackground
	// ModeJustInTime behaves like ModeExplicit but requires confirmation
	// before downloading.
	ModeJustInTime
)

func (m Mode) String() string {
	switch m {
	case ModeExplicit:
		return "explicit"
	case ModeBackground:
		return "background"
	case ModeJustInTime:
		return "just-in-time"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	for _, candidate := range []Mode{ModeExplicit, ModeBackground, ModeJustInTime} {
		if candidate.String() == string(text) {
			*m = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown mode %q", text)
}

// State is a step of the install state machine.
type State int

const (
	StateIdle State = iota
	StateCheckingVersion
	StateUpToDate
	StateDownloading
	StateExtracting
	StateCommitting
	StateDone
	StateFailed
	StateDeclined
)

var stateNames = map[State]string{
	StateIdle:            "idle",
	StateCheckingVersion: "checking",
	StateUpToDate:        "up-to-date",
	StateDownloading:     "downloading",
	StateExtracting:      "extracting",
	StateCommitting:      "committing",
	StateDone:            "installed",
	StateFailed:          "failed",
	StateDeclined:        "declined",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", text)
}

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	switch s {
	case StateUpToDate, StateDone, StateFailed, StateDeclined:
		return true
	}
	return false
}

// Logger is the minimal logging surface used by the installer.
type Logger interface {
	Printf(format string, v ...any)
}

type noopLogger struct{}

func (noopLogger) Printf(string, ...any) {}

// Notifier is told after a component was installed, updated or removed.
// Notifier errors are logged and never fail the operation.
type Notifier interface {
	ComponentChanged(ctx context.Context, id components.ID) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, id components.ID) error

// ComponentChanged implements Notifier.
func (f NotifierFunc) ComponentChanged(ctx context.Context, id components.ID) error {
	return f(ctx, id)
}

// Confirmer asks the user a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt string) (bool, error) {
	return f(ctx, prompt)
}

// AlwaysConfirm approves every prompt.
var AlwaysConfirm Confirmer = ConfirmFunc(func(context.Context, string) (bool, error) { return true, nil })

// ReleaseSource resolves the latest downloadable asset of a component.
type ReleaseSource interface {
	Latest(ctx context.Context, d components.Descriptor, assetName string, fresh bool) (Release, error)
}

// Options controls a single orchestration.
type Options struct {
	Mode     Mode
	Reporter Reporter
	// Confirmer is consulted in ModeJustInTime unless Confirmed is set.
	Confirmer Confirmer
	// Confirmed records consent obtained before the run started.
	Confirmed bool
}

// Result summarizes a finished orchestration.
type Result struct {
	Component components.ID     `json:"component"`
	Mode      Mode              `json:"mode"`
	State     State             `json:"state"`
	Token     string            `json:"token,omitempty"`
	Previous  string            `json:"previous_token,omitempty"`
	Path      string            `json:"path,omitempty"`
	Handle    components.Handle `json:"-"`
	OpID      string            `json:"op_id"`
	Error     string            `json:"error,omitempty"`
}

// PendingUpdate describes an install the registry says is needed.
type PendingUpdate struct {
	Layout    components.Layout `json:"-"`
	Release   Release           `json:"release"`
	Current   string            `json:"current_token,omitempty"`
	Installed bool              `json:"installed"`
}

// Config wires an Installer.
type Config struct {
	ComponentsDir string
	Host          platform.Host
	Releases      ReleaseSource
	Fetcher       Fetcher
	Notifiers     []Notifier
	Logger        Logger
	Metrics       *Metrics
	// StaleLock defaults to DefaultStaleLock.
	StaleLock time.Duration
	// TracerProvider defaults to the global provider.
	TracerProvider trace.TracerProvider
}

// Installer drives the per-component install state machine.
type Installer struct {
	componentsDir string
	host          platform.Host
	releases      ReleaseSource
	fetcher       Fetcher
	store         VersionStore
	notifiers     []Notifier
	logger        Logger
	metrics       *Metrics
	staleLock     time.Duration
	tracer        trace.Tracer
}

var (
	extractArchive = Extract
	newOpID        = uuid.NewString
	nowFunc        = time.Now
)

// New validates cfg and returns an Installer.
func New(cfg Config) (*Installer, error) {
	if strings.TrimSpace(cfg.ComponentsDir) == "" {
		return nil, errors.New("installer: components dir is required")
	}
	if cfg.Releases == nil {
		return nil, errors.New("installer: release source is required")
	}
	if cfg.Host == (platform.Host{}) {
		cfg.Host = platform.Current()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	stale := cfg.StaleLock
	if stale == 0 {
		stale = DefaultStaleLock
	}
	tp := cfg.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Installer{
		componentsDir: cfg.ComponentsDir,
		host:          cfg.Host,
		releases:      cfg.Releases,
		fetcher:       cfg.Fetcher,
		notifiers:     append([]Notifier(nil), cfg.Notifiers...),
		logger:        logger,
		metrics:       cfg.Metrics,
		staleLock:     stale,
		tracer:        tp.Tracer(tracerName),
	}, nil
}

// Host returns the platform components are resolved for.
func (i *Installer) Host() platform.Host {
	return i.host
}

// AddNotifier registers n for subsequent changes.
func (i *Installer) AddNotifier(n Notifier) {
	i.notifiers = append(i.notifiers, n)
}

// Layout resolves the on-disk layout of id for this installer's host.
func (i *Installer) Layout(id components.ID) (components.Descriptor, components.Layout, error) {
	d, ok := components.Lookup(id)
	if !ok {
		return components.Descriptor{}, components.Layout{}, fmt.Errorf("%w: %s", ErrUnknownComponent, id)
	}
	layout, err := components.Resolve(i.componentsDir, d, i.host)
	if err != nil {
		return d, components.Layout{}, err
	}
	return d, layout, nil
}

// Detect probes the install directory of id.
func (i *Installer) Detect(id components.ID) (components.Handle, error) {
	d, layout, err := i.Layout(id)
	if err != nil {
		return nil, err
	}
	h, ok := d.Detect(layout.InstallDir, i.host)
	if !ok {
		return nil, nil
	}
	return h, nil
}

// Check compares the registry's latest asset with the installed build
// without changing anything. It returns nil when no update is needed or the
// release has no asset for this platform.
func (i *Installer) Check(ctx context.Context, id components.ID) (*PendingUpdate, error) {
	d, layout, err := i.Layout(id)
	if err != nil {
		return nil, err
	}
	pending, err := i.checkForUpdate(ctx, d, layout, false)
	if errors.Is(err, ErrNoMatchingAsset) {
		i.logger.Printf("check %s: %v", id, err)
		return nil, nil
	}
	return pending, err
}

func (i *Installer) checkForUpdate(ctx context.Context, d components.Descriptor, layout components.Layout, fresh bool) (*PendingUpdate, error) {
	_, installed := d.Detect(layout.InstallDir, i.host)

	release, err := i.releases.Latest(ctx, d, layout.ArchiveName, fresh)
	if err != nil {
		return nil, err
	}

	current, _ := i.store.Read(layout.MarkerPath)
	if current == release.Token && installed {
		return nil, nil
	}
	return &PendingUpdate{
		Layout:    layout,
		Release:   release,
		Current:   current,
		Installed: installed,
	}, nil
}

// run carries the mutable state of one orchestration.
type run struct {
	inst     *Installer
	id       components.ID
	mode     Mode
	opID     string
	state    State
	started  time.Time
	span     trace.Span
	progress *tracker
	result   Result
}

func (r *run) enter(next State) {
	r.inst.logger.Printf("install %s op=%s state=%s -> %s", r.id, r.opID, r.state, next)
	r.state = next
	r.result.State = next
	r.span.AddEvent("state", trace.WithAttributes(attribute.String("state", next.String())))
	r.inst.metrics.observeTransition(string(r.id), next)
}

func (r *run) finish(state State, err error) (Result, error) {
	r.enter(state)
	if err != nil {
		r.result.Error = err.Error()
		r.span.RecordError(err)
		r.span.SetStatus(codes.Error, err.Error())
	}
	r.span.SetAttributes(attribute.String("state", state.String()))
	r.inst.metrics.observeRun(string(r.id), r.mode, state, nowFunc().Sub(r.started).Seconds())
	return r.result, err
}

// Run executes the install state machine for id:
//
//	Idle -> CheckingVersion -> UpToDate
//	                        -> Downloading -> Extracting -> Committing -> Done
//
// Failed is reachable from CheckingVersion, Downloading, Extracting and
// Committing; Declined when a just-in-time run is refused. Runs for the same
// component are serialized across goroutines and processes. The version
// marker is only written after a successful extraction; the downloaded
// archive is deleted after the marker and kept on failure.
func (i *Installer) Run(ctx context.Context, id components.ID, opts Options) (Result, error) {
	ctx, span := i.tracer.Start(ctx, "installer.Run", trace.WithAttributes(
		attribute.String("component", string(id)),
		attribute.String("mode", opts.Mode.String()),
	))
	defer span.End()

	r := &run{
		inst:     i,
		id:       id,
		mode:     opts.Mode,
		opID:     newOpID(),
		state:    StateIdle,
		started:  nowFunc(),
		span:     span,
		progress: newTracker(opts.Reporter),
	}
	r.result = Result{Component: id, Mode: opts.Mode, State: StateIdle, OpID: r.opID}

	d, layout, err := i.Layout(id)
	if err != nil {
		return r.finish(StateFailed, err)
	}

	unlock, err := acquireLock(ctx, i.componentsDir, string(id), i.staleLock)
	if err != nil {
		return r.finish(StateFailed, err)
	}
	defer unlock()

	r.enter(StateCheckingVersion)
	if opts.Mode != ModeBackground {
		r.progress.message("checking version")
	}
	pending, err := i.checkForUpdate(ctx, d, layout, opts.Mode != ModeBackground)
	if err != nil {
		reason := "registry"
		if errors.Is(err, ErrNoMatchingAsset) {
			reason = "no-asset"
		}
		i.metrics.observeLookupError(string(id), reason)

		swallow := opts.Mode == ModeBackground &&
			(errors.Is(err, ErrNoMatchingAsset) || errors.Is(err, ErrRegistryUnreachable))
		if swallow {
			i.logger.Printf("install %s op=%s: skipping background update: %v", id, r.opID, err)
			r.attachHandle(d, layout)
			return r.finish(StateUpToDate, nil)
		}
		return r.finish(StateFailed, err)
	}
	if pending == nil {
		r.attachHandle(d, layout)
		r.result.Token, _ = i.store.Read(layout.MarkerPath)
		return r.finish(StateUpToDate, nil)
	}
	r.result.Token = pending.Release.Token
	r.result.Previous = pending.Current

	if opts.Mode == ModeJustInTime && !opts.Confirmed {
		confirmer := opts.Confirmer
		if confirmer == nil {
			return r.finish(StateDeclined, nil)
		}
		ok, err := confirmer.Confirm(ctx, fmt.Sprintf("%s is not installed. Download?", d.Name))
		if err != nil {
			return r.finish(StateFailed, err)
		}
		if !ok {
			return r.finish(StateDeclined, nil)
		}
	}

	r.enter(StateDownloading)
	r.progress.to(0, "downloading archive")
	size := pending.Release.Size
	n, err := i.fetcher.Fetch(ctx, pending.Release.URL, layout.ArchivePath, func(received int64) {
		if size > 0 {
			r.progress.to(downloadPercent(received, size, layout.Format), "downloading archive")
		}
	})
	i.metrics.observeBytes(string(id), n)
	if err != nil {
		return r.finish(StateFailed, err)
	}

	r.enter(StateExtracting)
	r.progress.message("extracting archive")
	err = extractArchive(ctx, layout.Format, layout.ArchivePath, layout.ComponentsDir, func(processed, total int, name string) {
		r.progress.to(extractPercent(processed, total), "extracting "+trimTopDir(name))
	})
	if err != nil {
		return r.finish(StateFailed, err)
	}

	r.enter(StateCommitting)
	if err := i.store.Write(layout.MarkerPath, pending.Release.Token); err != nil {
		return r.finish(StateFailed, fmt.Errorf("%w: %w", ErrCommitFailed, err))
	}
	if err := os.Remove(layout.ArchivePath); err != nil && !os.IsNotExist(err) {
		i.logger.Printf("install %s op=%s: remove archive: %v", id, r.opID, err)
	}
	r.progress.to(100, "done")

	if !r.attachHandle(d, layout) {
		i.logger.Printf("install %s op=%s: %s not detected after install", id, r.opID, layout.InstallDir)
	}
	i.notify(ctx, id)
	return r.finish(StateDone, nil)
}

func (r *run) attachHandle(d components.Descriptor, layout components.Layout) bool {
	h, ok := d.Detect(layout.InstallDir, r.inst.host)
	if !ok {
		return false
	}
	r.result.Handle = h
	r.result.Path = h.Path()
	return true
}

func (i *Installer) notify(ctx context.Context, id components.ID) {
	for _, n := range i.notifiers {
		if err := n.ComponentChanged(ctx, id); err != nil {
			i.logger.Printf("notify %s: %v", id, err)
		}
	}
}

// trimTopDir drops the archive's top-level directory from an entry name.
func trimTopDir(name string) string {
	if idx := strings.Index(name, "/"); idx >= 0 {
		return name[idx+1:]
	}
	return name
}
