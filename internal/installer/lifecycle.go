package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"wrtools/internal/components"
)

// Manager exposes the component lifecycle verbs on top of an Installer.
type Manager struct {
	inst   *Installer
	logger Logger
}

// NewManager wraps inst.
func NewManager(inst *Installer) *Manager {
	return &Manager{inst: inst, logger: inst.logger}
}

// Installer returns the underlying orchestrator.
func (m *Manager) Installer() *Installer {
	return m.inst
}

// Status is the installed state of one component.
type Status struct {
	Component components.ID `json:"component"`
	Name      string        `json:"name"`
	Supported bool          `json:"supported"`
	Installed bool          `json:"installed"`
	Dir       string        `json:"dir,omitempty"`
	Path      string        `json:"path,omitempty"`
	Token     string        `json:"token,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Query probes id. A nil handle with a nil error means not installed.
func (m *Manager) Query(id components.ID) (components.Handle, error) {
	return m.inst.Detect(id)
}

// Statuses reports every known component.
func (m *Manager) Statuses() []Status {
	var out []Status
	for _, d := range components.All() {
		st := Status{Component: d.ID, Name: d.Name, Supported: d.Supports(m.inst.host)}
		_, layout, err := m.inst.Layout(d.ID)
		if err != nil {
			if !errors.Is(err, ErrUnsupportedPlatform) {
				st.Error = err.Error()
			}
			out = append(out, st)
			continue
		}
		st.Dir = layout.InstallDir
		st.Token, _ = m.inst.store.Read(layout.MarkerPath)
		if h, ok := d.Detect(layout.InstallDir, m.inst.host); ok {
			st.Installed = true
			st.Path = h.Path()
		}
		out = append(out, st)
	}
	return out
}

// Ensure returns the handle for id, asking confirmer for consent and
// installing in just-in-time mode when the component is missing. A nil handle
// with a nil error means the user declined or the install did not produce a
// detectable component. A nil confirmer declines.
func (m *Manager) Ensure(ctx context.Context, id components.ID, confirmer Confirmer, reporter Reporter) (components.Handle, error) {
	h, err := m.Query(id)
	if err != nil || h != nil {
		return h, err
	}
	if confirmer == nil {
		return nil, nil
	}
	d, _ := components.Lookup(id)
	ok, err := confirmer.Confirm(ctx, fmt.Sprintf("%s is not installed. Download?", d.Name))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	if _, err := m.inst.Run(ctx, id, Options{Mode: ModeJustInTime, Reporter: reporter, Confirmed: true}); err != nil {
		return nil, err
	}
	return m.Query(id)
}

// InstallOrUpdate runs the orchestrator for id with opts.
func (m *Manager) InstallOrUpdate(ctx context.Context, id components.ID, opts Options) (Result, error) {
	return m.inst.Run(ctx, id, opts)
}

// Check reports whether an update for id is available.
func (m *Manager) Check(ctx context.Context, id components.ID) (*PendingUpdate, error) {
	return m.inst.Check(ctx, id)
}

// Delete removes the install directory, version marker and any leftover
// archive of id. Missing files are ignored and other removal errors are
// logged. Deleting a component the host does not support is a no-op.
// Delete only fails for unknown ids or when the component lock cannot be
// taken.
func (m *Manager) Delete(ctx context.Context, id components.ID) error {
	_, layout, err := m.inst.Layout(id)
	if errors.Is(err, ErrUnsupportedPlatform) {
		m.logger.Printf("delete %s: %v, nothing to remove", id, err)
		return nil
	}
	if err != nil {
		return err
	}
	unlock, err := acquireLock(ctx, m.inst.componentsDir, string(id), m.inst.staleLock)
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.RemoveAll(layout.InstallDir); err != nil {
		m.logger.Printf("delete %s: remove %s: %v", id, layout.InstallDir, err)
	}
	if err := m.inst.store.Remove(layout.MarkerPath); err != nil {
		m.logger.Printf("delete %s: remove marker: %v", id, err)
	}
	for _, archive := range []string{layout.ArchivePath, layout.ArchivePath + PartialSuffix} {
		if err := os.Remove(archive); err != nil && !os.IsNotExist(err) {
			m.logger.Printf("delete %s: remove archive: %v", id, err)
		}
	}
	m.inst.notify(ctx, id)
	return nil
}

// UpdateAll runs a background update for every installed component, one at a
// time. Components that are missing or unsupported on this host are skipped.
// Failures are recorded on the returned results and joined into the error.
func (m *Manager) UpdateAll(ctx context.Context, reporterFor func(components.ID) Reporter) ([]Result, error) {
	var (
		results []Result
		errs    []error
	)
	for _, d := range components.All() {
		if !d.Supports(m.inst.host) {
			continue
		}
		h, err := m.Query(d.ID)
		if err != nil || h == nil {
			continue
		}
		var reporter Reporter
		if reporterFor != nil {
			reporter = reporterFor(d.ID)
		}
		res, err := m.inst.Run(ctx, d.ID, Options{Mode: ModeBackground, Reporter: reporter})
		if err != nil {
			m.logger.Printf("update %s: %v", d.ID, err)
			errs = append(errs, fmt.Errorf("%s: %w", d.ID, err))
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// ResolveCLI returns the CLI to run. A non-empty customPath wins over the
// managed install and is returned as-is; otherwise the managed CLI is
// ensured.
func (m *Manager) ResolveCLI(ctx context.Context, customPath string, confirmer Confirmer, reporter Reporter) (components.Handle, error) {
	if custom := strings.TrimSpace(customPath); custom != "" {
		abs, err := filepath.Abs(custom)
		if err != nil {
			return nil, fmt.Errorf("resolve cli path: %w", err)
		}
		return components.CLIHandle{Root: filepath.Dir(abs), Bin: abs}, nil
	}
	return m.Ensure(ctx, components.CLI, confirmer, reporter)
}
