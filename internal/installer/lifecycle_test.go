package installer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"wrtools/internal/components"
	"wrtools/internal/platform"
)

func TestEnsure(t *testing.T) {
	reg := newFakeRegistry(t)
	asset, archive := cliArchive(t, testLinux, "v1")
	reg.publish(asset, archive, "T1")
	inst, _ := newTestInstaller(t, reg, testLinux)
	mgr := NewManager(inst)
	ctx := context.Background()

	h, err := mgr.Ensure(ctx, components.CLI, nil, nil)
	if err != nil || h != nil {
		t.Fatalf("nil confirmer: %v %v", h, err)
	}

	refuse := ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
	if h, err := mgr.Ensure(ctx, components.CLI, refuse, nil); err != nil || h != nil {
		t.Fatalf("declined: %v %v", h, err)
	}
	if _, assets := reg.hits(); assets != 0 {
		t.Fatal("nothing should be downloaded before consent")
	}

	h, err = mgr.Ensure(ctx, components.CLI, AlwaysConfirm, nil)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	cli, ok := h.(components.CLIHandle)
	if !ok || filepath.Base(cli.Bin) != "webrogue" {
		t.Fatalf("handle = %#v", h)
	}

	// Installed components are returned without asking or querying.
	releases, _ := reg.hits()
	asked := false
	confirm := ConfirmFunc(func(context.Context, string) (bool, error) { asked = true; return true, nil })
	if h, err := mgr.Ensure(ctx, components.CLI, confirm, nil); err != nil || h == nil {
		t.Fatalf("second Ensure: %v %v", h, err)
	}
	if asked {
		t.Error("confirmer consulted for an installed component")
	}
	if after, _ := reg.hits(); after != releases {
		t.Error("registry queried for an installed component")
	}
}

func TestEnsureConfirmerError(t *testing.T) {
	reg := newFakeRegistry(t)
	inst, _ := newTestInstaller(t, reg, testLinux)
	boom := errors.New("no tty")
	confirmer := ConfirmFunc(func(context.Context, string) (bool, error) { return false, boom })
	if _, err := NewManager(inst).Ensure(context.Background(), components.SDK, confirmer, nil); !errors.Is(err, boom) {
		t.Fatalf("expected confirmer error, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	reg := newFakeRegistry(t)
	asset, archive := cliArchive(t, testLinux, "v1")
	reg.publish(asset, archive, "T1")
	notifier := &countingNotifier{}
	inst, dir := newTestInstaller(t, reg, testLinux, notifier)
	mgr := NewManager(inst)
	ctx := context.Background()

	if _, err := mgr.InstallOrUpdate(ctx, components.CLI, Options{Mode: ModeExplicit}); err != nil {
		t.Fatal(err)
	}
	// A leftover archive from an interrupted install goes too.
	for _, name := range []string{asset, asset + PartialSuffix} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("partial"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	if err := mgr.Delete(ctx, components.CLI); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	for _, name := range []string{"webrogue-cli-linux-x86_64", "webrogue_cli_version", asset, asset + PartialSuffix} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s still present", name)
		}
	}
	if h, err := mgr.Query(components.CLI); err != nil || h != nil {
		t.Fatalf("Query after delete: %v %v", h, err)
	}

	if err := mgr.Delete(ctx, components.CLI); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if notifier.count() != 3 {
		t.Errorf("notifier calls = %d, want 3", notifier.count())
	}
}

func TestDeleteUnknownComponent(t *testing.T) {
	reg := newFakeRegistry(t)
	inst, _ := newTestInstaller(t, reg, testWindows)
	err := NewManager(inst).Delete(context.Background(), components.ID("nope"))
	if !errors.Is(err, ErrUnknownComponent) {
		t.Fatalf("expected ErrUnknownComponent, got %v", err)
	}
}

func TestDeleteUnsupportedPlatformIsNoop(t *testing.T) {
	reg := newFakeRegistry(t)
	notifier := &countingNotifier{}
	inst, _ := newTestInstaller(t, reg, platform.Host{OS: "linux", Arch: "arm64"}, notifier)
	if err := NewManager(inst).Delete(context.Background(), components.SDK); err != nil {
		t.Fatalf("Delete on unsupported host: %v", err)
	}
	if notifier.count() != 0 {
		t.Errorf("notifier calls = %d, want 0", notifier.count())
	}
}

func TestUpdateAllOnlyTouchesInstalled(t *testing.T) {
	reg := newFakeRegistry(t)
	asset, archive := cliArchive(t, testLinux, "v1")
	reg.publish(asset, archive, "T1")
	inst, _ := newTestInstaller(t, reg, testLinux)
	mgr := NewManager(inst)
	ctx := context.Background()

	if _, err := mgr.InstallOrUpdate(ctx, components.CLI, Options{Mode: ModeExplicit}); err != nil {
		t.Fatal(err)
	}
	_, archive2 := cliArchive(t, testLinux, "v2")
	reg.publish(asset, archive2, "T2")

	var reported []components.ID
	results, err := mgr.UpdateAll(ctx, func(id components.ID) Reporter {
		reported = append(reported, id)
		return Discard
	})
	if err != nil {
		t.Fatalf("UpdateAll: %v", err)
	}
	if len(results) != 1 || results[0].Component != components.CLI || results[0].State != StateDone {
		t.Fatalf("results = %+v", results)
	}
	if len(reported) != 1 || reported[0] != components.CLI {
		t.Fatalf("reporters requested for %v", reported)
	}
}

func TestUpdateAllCollectsFailures(t *testing.T) {
	reg := newFakeRegistry(t)
	asset, archive := cliArchive(t, testLinux, "v1")
	reg.publish(asset, archive, "T1")
	inst, _ := newTestInstaller(t, reg, testLinux)
	mgr := NewManager(inst)
	ctx := context.Background()
	if _, err := mgr.InstallOrUpdate(ctx, components.CLI, Options{Mode: ModeExplicit}); err != nil {
		t.Fatal(err)
	}

	reg.publish(asset, archive, "T2")
	reg.setAssetStatus(500)
	results, err := mgr.UpdateAll(ctx, nil)
	if !errors.Is(err, ErrDownloadFailed) {
		t.Fatalf("expected joined download failure, got %v", err)
	}
	if len(results) != 1 || results[0].State != StateFailed {
		t.Fatalf("results = %+v", results)
	}
}

func TestResolveCLI(t *testing.T) {
	reg := newFakeRegistry(t)
	inst, _ := newTestInstaller(t, reg, testLinux)
	mgr := NewManager(inst)

	custom := filepath.Join(t.TempDir(), "my-webrogue")
	h, err := mgr.ResolveCLI(context.Background(), custom, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if h.Path() != custom {
		t.Fatalf("Path = %q, want %q", h.Path(), custom)
	}

	h, err = mgr.ResolveCLI(context.Background(), "  ", nil, nil)
	if err != nil || h != nil {
		t.Fatalf("blank path without consent: %v %v", h, err)
	}
}

func TestStatuses(t *testing.T) {
	reg := newFakeRegistry(t)
	asset, archive := cliArchive(t, testLinux, "v1")
	reg.publish(asset, archive, "T1")
	inst, dir := newTestInstaller(t, reg, testLinux)
	mgr := NewManager(inst)
	if _, err := mgr.InstallOrUpdate(context.Background(), components.CLI, Options{Mode: ModeExplicit}); err != nil {
		t.Fatal(err)
	}

	statuses := mgr.Statuses()
	if len(statuses) != len(components.All()) {
		t.Fatalf("got %d statuses", len(statuses))
	}
	byID := map[components.ID]Status{}
	for _, st := range statuses {
		byID[st.Component] = st
	}
	cli := byID[components.CLI]
	if !cli.Installed || cli.Token != "T1" || cli.Dir != filepath.Join(dir, "webrogue-cli-linux-x86_64") {
		t.Errorf("cli status = %+v", cli)
	}
	sdk := byID[components.SDK]
	if sdk.Installed || !sdk.Supported || sdk.Token != "" {
		t.Errorf("sdk status = %+v", sdk)
	}
}
