package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"wrtools/internal/components"
	"wrtools/internal/config"
	"wrtools/internal/installer"
	"wrtools/internal/paths"
	"wrtools/internal/platform"
)

var hostDetector = platform.NewDetector

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check host, configuration and component health",
		Args:  cobra.NoArgs,
		RunE:  runDoctor,
	}
}

type healthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"` // "ok", "warning", "error"
	Summary string `json:"summary"`
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	return withApp(func(a *app) error {
		var checks []healthCheck

		info, err := hostDetector().Detect(cmd.Context())
		checks = append(checks, checkPlatform(a.host, info, err))
		checks = append(checks, checkConfig(a.configFile, a.cfg))
		checks = append(checks, checkStorage(a.paths))
		for _, st := range a.mgr.Statuses() {
			checks = append(checks, checkComponent(st))
		}
		if a.cfg.CMake.Disabled {
			checks = append(checks, healthCheck{Name: "Kits", Status: "ok", Summary: "disabled in config"})
		} else {
			res, err := a.kits.Sync(cmd.Context())
			checks = append(checks, checkKits(res.Path, res.Skipped, err))
		}

		return writeDoctorResult(cmd, a.paths.Root, checks)
	})
}

func checkPlatform(host platform.Host, info *platform.Info, err error) healthCheck {
	summary := host.String()
	if err == nil && info != nil && info.Platform != "" {
		summary = fmt.Sprintf("%s (%s %s", host, info.Platform, info.Version)
		if info.KernelArch != "" {
			summary += ", kernel " + info.KernelArch
		}
		summary += ")"
	}
	for _, d := range components.All() {
		if d.Supports(host) {
			return healthCheck{Name: "Platform", Status: "ok", Summary: summary}
		}
	}
	return healthCheck{Name: "Platform", Status: "error", Summary: summary + ": no components available"}
}

func checkConfig(path string, cfg config.Config) healthCheck {
	var warnings, errs []string
	for _, f := range cfg.Findings() {
		if f.Level == "error" {
			errs = append(errs, f.Message)
		} else {
			warnings = append(warnings, f.Message)
		}
	}
	switch {
	case len(errs) > 0:
		return healthCheck{Name: "Config", Status: "error", Summary: joinComma(errs)}
	case len(warnings) > 0:
		return healthCheck{Name: "Config", Status: "warning", Summary: joinComma(warnings)}
	}
	return healthCheck{Name: "Config", Status: "ok", Summary: path}
}

func checkStorage(sp paths.StoragePaths) healthCheck {
	ok, err := paths.DirExists(sp.Root)
	if err != nil || !ok {
		return healthCheck{Name: "Storage", Status: "error", Summary: fmt.Sprintf("%s is not a directory", sp.Root)}
	}
	return healthCheck{Name: "Storage", Status: "ok", Summary: sp.Root}
}

func checkComponent(st installer.Status) healthCheck {
	name := string(st.Component)
	switch {
	case st.Error != "":
		return healthCheck{Name: name, Status: "error", Summary: st.Error}
	case !st.Supported:
		return healthCheck{Name: name, Status: "warning", Summary: "not available for this platform"}
	case !st.Installed:
		return healthCheck{Name: name, Status: "warning", Summary: "not installed"}
	}
	summary := st.Path
	if st.Token != "" {
		summary += " (" + st.Token + ")"
	}
	return healthCheck{Name: name, Status: "ok", Summary: summary}
}

func checkKits(path, skipped string, err error) healthCheck {
	switch {
	case err != nil:
		return healthCheck{Name: "Kits", Status: "error", Summary: err.Error()}
	case skipped != "":
		return healthCheck{Name: "Kits", Status: "warning", Summary: skipped}
	}
	return healthCheck{Name: "Kits", Status: "ok", Summary: path}
}

func writeDoctorResult(cmd *cobra.Command, root string, checks []healthCheck) error {
	if outputJSON {
		data, err := json.MarshalIndent(checks, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}

	bold := lipgloss.NewStyle().Bold(true).Inline(true)
	green := lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Inline(true)
	yellow := lipgloss.NewStyle().Foreground(lipgloss.Color("3")).Inline(true)
	red := lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Inline(true)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, bold.Render("WRTOOLS HEALTH:")+" "+root)

	for _, c := range checks {
		var statusStr string
		switch c.Status {
		case "ok":
			statusStr = green.Render("OK")
		case "warning":
			statusStr = yellow.Render("WARN")
		case "error":
			statusStr = red.Render("ERROR")
		}
		fmt.Fprintf(out, "  %-12s %s    %s\n", c.Name+":", statusStr, c.Summary)
	}

	return nil
}

func joinComma(items []string) string {
	return strings.Join(items, ", ")
}
