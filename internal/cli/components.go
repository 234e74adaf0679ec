package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"wrtools/internal/components"
	"wrtools/internal/installer"
	"wrtools/internal/tui"
)

func newComponentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "components",
		Aliases: []string{"c"},
		Short:   "Install, update and inspect Webrogue components",
	}

	cmd.AddCommand(newComponentsListCmd())
	cmd.AddCommand(newComponentsCheckCmd())
	cmd.AddCommand(newComponentsInstallCmd())
	cmd.AddCommand(newComponentsUpdateCmd())
	cmd.AddCommand(newComponentsEnsureCmd())
	cmd.AddCommand(newComponentsDeleteCmd())
	cmd.AddCommand(newComponentsPathCmd())

	return cmd
}

// parseTargets resolves command arguments to component ids. No arguments or
// "all" selects every component supported by host.
func parseTargets(args []string, a *app) ([]components.ID, error) {
	if len(args) == 0 || (len(args) == 1 && strings.EqualFold(args[0], "all")) {
		var ids []components.ID
		for _, d := range components.All() {
			if d.Supports(a.host) {
				ids = append(ids, d.ID)
			}
		}
		return ids, nil
	}
	ids := make([]components.ID, 0, len(args))
	for _, arg := range args {
		id, err := components.ParseID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func newComponentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Show installed components",
		Args:  cobra.NoArgs,
		RunE:  runComponentsList,
	}
}

func runComponentsList(cmd *cobra.Command, _ []string) error {
	return withApp(func(a *app) error {
		statuses := a.mgr.Statuses()
		if outputJSON {
			return writeJSON(cmd, statuses)
		}
		printComponentStatuses(cmd, a, statuses)
		return nil
	})
}

func printComponentStatuses(cmd *cobra.Command, a *app, statuses []installer.Status) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Storage: %s (%s)\n", a.paths.Root, a.host)
	fmt.Fprintf(out, "%-9s %-12s %-22s %s\n", "COMPONENT", "STATUS", "VERSION", "PATH")
	for _, st := range statuses {
		fmt.Fprintf(out, "%-9s %-12s %-22s %s\n",
			st.Component,
			statusLabel(st),
			tui.NonEmptyOrDash(st.Token),
			tui.NonEmptyOrDash(st.Path),
		)
	}
}

func statusLabel(st installer.Status) string {
	switch {
	case st.Error != "":
		return "failed"
	case !st.Supported:
		return "unsupported"
	case st.Installed:
		return "installed"
	default:
		return "missing"
	}
}

type checkRow struct {
	Component components.ID `json:"component"`
	Current   string        `json:"current,omitempty"`
	Latest    string        `json:"latest,omitempty"`
	Update    bool          `json:"update_available"`
	Installed bool          `json:"installed"`
	Error     string        `json:"error,omitempty"`
}

func newComponentsCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [component|all]",
		Short: "Report available updates without installing",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runComponentsCheck,
	}
}

func runComponentsCheck(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		ids, err := parseTargets(args, a)
		if err != nil {
			return err
		}

		var sw *tui.StatusWriter
		if tui.DetectMode(cmd.ErrOrStderr(), noProgress, outputJSON) == tui.ModeTUI {
			sw = tui.NewStatusWriter(cmd.ErrOrStderr())
		}

		var (
			rows []checkRow
			errs []error
		)
		for _, id := range ids {
			if sw != nil {
				sw.Update("checking " + string(id))
			}
			row := checkRow{Component: id}
			if h, _ := a.mgr.Query(id); h != nil {
				row.Installed = true
			}
			pending, err := a.mgr.Check(cmd.Context(), id)
			switch {
			case err != nil:
				row.Error = err.Error()
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
			case pending != nil:
				row.Current = pending.Current
				row.Latest = pending.Release.Token
				row.Update = true
			}
			if sw != nil {
				sw.Println(checkSummary(row))
			}
			rows = append(rows, row)
		}
		if sw != nil {
			sw.Stop()
		}

		if outputJSON {
			if err := writeJSON(cmd, rows); err != nil {
				return err
			}
		} else {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%-9s %-10s %-22s %s\n", "COMPONENT", "UPDATE", "INSTALLED", "LATEST")
			for _, r := range rows {
				update := "no"
				if r.Update {
					update = "yes"
				}
				if r.Error != "" {
					update = "error"
				}
				fmt.Fprintf(out, "%-9s %-10s %-22s %s\n", r.Component, update, tui.NonEmptyOrDash(r.Current), tui.NonEmptyOrDash(r.Latest))
			}
		}
		return errors.Join(errs...)
	})
}

func checkSummary(r checkRow) string {
	switch {
	case r.Error != "":
		return fmt.Sprintf("%s: %s", r.Component, r.Error)
	case r.Update:
		return fmt.Sprintf("%s: update available (%s)", r.Component, r.Latest)
	}
	return fmt.Sprintf("%s: up to date", r.Component)
}

func newComponentsInstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "install [component|all]",
		Short: "Install or update components, querying the registry fresh",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runComponentsInstall,
	}
}

func runComponentsInstall(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		ids, err := parseTargets(args, a)
		if err != nil {
			return err
		}
		results, runErr := runInstalls(cmd, a, ids, installer.ModeExplicit)
		if err := reportResults(cmd, results); err != nil {
			return err
		}
		return runErr
	})
}

func newComponentsUpdateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Update every installed component in the background mode",
		Args:  cobra.NoArgs,
		RunE:  runComponentsUpdate,
	}
}

func runComponentsUpdate(cmd *cobra.Command, _ []string) error {
	return withApp(func(a *app) error {
		var ids []components.ID
		for _, st := range a.mgr.Statuses() {
			if st.Installed {
				ids = append(ids, st.Component)
			}
		}
		if len(ids) == 0 {
			if outputJSON {
				return writeJSON(cmd, []installer.Result{})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "No components installed.")
			return nil
		}
		results, runErr := runProgress(cmd, ids, func(ctx context.Context, reporterFor func(components.ID) installer.Reporter) ([]installer.Result, error) {
			return a.mgr.UpdateAll(ctx, reporterFor)
		})
		if err := reportResults(cmd, results); err != nil {
			return err
		}
		return runErr
	})
}

// runInstalls orchestrates ids one after another with mode.
func runInstalls(cmd *cobra.Command, a *app, ids []components.ID, mode installer.Mode) ([]installer.Result, error) {
	return runProgress(cmd, ids, func(ctx context.Context, reporterFor func(components.ID) installer.Reporter) ([]installer.Result, error) {
		var (
			results []installer.Result
			errs    []error
		)
		for _, id := range ids {
			res, err := a.mgr.InstallOrUpdate(ctx, id, installer.Options{Mode: mode, Reporter: reporterFor(id)})
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
			}
			results = append(results, res)
		}
		return results, errors.Join(errs...)
	})
}

type progressWork func(ctx context.Context, reporterFor func(components.ID) installer.Reporter) ([]installer.Result, error)

// runProgress runs work with output matched to the terminal: a live table on
// a TTY, throttled lines otherwise, nothing in JSON mode.
func runProgress(cmd *cobra.Command, ids []components.ID, work progressWork) ([]installer.Result, error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	switch tui.DetectMode(cmd.OutOrStdout(), noProgress, outputJSON) {
	case tui.ModeJSON:
		return work(ctx, func(components.ID) installer.Reporter { return installer.Discard })

	case tui.ModePlain:
		out := cmd.ErrOrStderr()
		return work(ctx, func(id components.ID) installer.Reporter {
			return tui.NewLineReporter(out, string(id))
		})
	}

	model := tui.NewProgressModel("Webrogue components", []tui.Column{
		{Header: "COMPONENT", Width: 9},
		{Header: "STATUS", Width: 11},
		{Header: "PROGRESS", Width: 28},
		{Header: "DETAIL", Width: 32},
	})
	for _, id := range ids {
		model.AddRow(string(id), []string{string(id), "pending", "", "-"})
	}

	var (
		results []installer.Result
		runErr  error
	)
	err := tui.RunWithWork(ctx, cmd.OutOrStdout(), model, func(workCtx context.Context, send func(tea.Msg)) {
		reporterFor := func(id components.ID) installer.Reporter {
			return tui.NewInstallReporter(send, string(id))
		}
		results, runErr = work(workCtx, reporterFor)
		for _, res := range results {
			send(tui.RowUpdateMsg{Key: string(res.Component), Fields: map[string]string{
				"STATUS": res.State.String(),
				"DETAIL": resultDetail(res),
			}})
			if res.State == installer.StateDone || res.State == installer.StateUpToDate {
				send(tui.PercentMsg{Key: string(res.Component), Percent: 100})
			}
		}
	})
	if errors.Is(err, tui.ErrAborted) {
		return results, fmt.Errorf("%w: %w", tui.ErrAborted, context.Canceled)
	}
	if err != nil {
		return results, err
	}
	return results, runErr
}

func resultDetail(res installer.Result) string {
	switch {
	case res.Error != "":
		return res.Error
	case res.State == installer.StateDone && res.Previous != "":
		return res.Previous + " -> " + res.Token
	default:
		return tui.NonEmptyOrDash(res.Token)
	}
}

func reportResults(cmd *cobra.Command, results []installer.Result) error {
	if outputJSON {
		if results == nil {
			results = []installer.Result{}
		}
		return writeJSON(cmd, results)
	}
	if tui.DetectMode(cmd.OutOrStdout(), noProgress, outputJSON) == tui.ModeTUI {
		return nil
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-9s %-11s %s\n", "COMPONENT", "STATUS", "DETAIL")
	for _, res := range results {
		fmt.Fprintf(out, "%-9s %-11s %s\n", res.Component, res.State, resultDetail(res))
	}
	return nil
}

func newComponentsEnsureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ensure <component>",
		Short: "Print the component path, offering to download it when missing",
		Args:  cobra.ExactArgs(1),
		RunE:  runComponentsEnsure,
	}
}

func runComponentsEnsure(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		id, err := components.ParseID(args[0])
		if err != nil {
			return err
		}
		confirmer := newConfirmer(cmd)
		reporter := plainReporter(cmd, id)

		var h components.Handle
		if id == components.CLI {
			h, err = a.mgr.ResolveCLI(cmd.Context(), a.cfg.CLIPath, confirmer, reporter)
		} else {
			h, err = a.mgr.Ensure(cmd.Context(), id, confirmer, reporter)
		}
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("%s is not installed", id)
		}
		return printHandle(cmd, h)
	})
}

// newConfirmer picks how download prompts are answered.
func newConfirmer(cmd *cobra.Command) installer.Confirmer {
	if assumeYes {
		return installer.AlwaysConfirm
	}
	if outputJSON {
		return nil
	}
	in := cmd.InOrStdin()
	if tui.IsInteractive(in) {
		return tui.PromptConfirmer{In: in, Out: cmd.ErrOrStderr()}
	}
	return tui.LineConfirmer{In: in, Out: cmd.ErrOrStderr()}
}

func plainReporter(cmd *cobra.Command, id components.ID) installer.Reporter {
	if outputJSON || noProgress {
		return installer.Discard
	}
	return tui.NewLineReporter(cmd.ErrOrStderr(), string(id))
}

type handleOutput struct {
	Component components.ID `json:"component"`
	Dir       string        `json:"dir"`
	Path      string        `json:"path"`
}

func printHandle(cmd *cobra.Command, h components.Handle) error {
	if outputJSON {
		return writeJSON(cmd, handleOutput{Component: h.Component(), Dir: h.Dir(), Path: h.Path()})
	}
	fmt.Fprintln(cmd.OutOrStdout(), h.Path())
	return nil
}

func newComponentsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <component>...",
		Short: "Remove installed components",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runComponentsDelete,
	}
}

func runComponentsDelete(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		ids, err := parseTargets(args, a)
		if err != nil {
			return err
		}
		var errs []error
		for _, id := range ids {
			if err := a.mgr.Delete(cmd.Context(), id); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
				continue
			}
			if !outputJSON {
				fmt.Fprintf(cmd.OutOrStdout(), "%s removed\n", id)
			}
		}
		if outputJSON {
			if err := writeJSON(cmd, a.mgr.Statuses()); err != nil {
				return err
			}
		}
		return errors.Join(errs...)
	})
}

func newComponentsPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path <component>",
		Short: "Print the path of an installed component",
		Args:  cobra.ExactArgs(1),
		RunE:  runComponentsPath,
	}
}

func runComponentsPath(cmd *cobra.Command, args []string) error {
	return withApp(func(a *app) error {
		id, err := components.ParseID(args[0])
		if err != nil {
			return err
		}
		var h components.Handle
		if id == components.CLI {
			h, err = a.mgr.ResolveCLI(cmd.Context(), a.cfg.CLIPath, nil, nil)
		} else {
			h, err = a.mgr.Query(id)
		}
		if err != nil {
			return err
		}
		if h == nil {
			return fmt.Errorf("%s is not installed", id)
		}
		return printHandle(cmd, h)
	})
}
