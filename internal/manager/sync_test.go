package manager

import (
	"context"
	"slices"
	"testing"

	"github.com/flemzord/storemods/internal/manifest"
)

// A second manager over the same root stands in for the CLI changing
// state under a running server.
func TestSync(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()
	for _, n := range []string{"a_mod", "b_mod", "c_mod"} {
		e.writeModule(t, n, manifest.TypeGeneral)
		e.register(n)
	}

	server := e.manager(t)
	if _, err := server.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}
	cli := e.manager(t)
	if _, err := cli.LoadAll(ctx); err != nil {
		t.Fatal(err)
	}

	if err := cli.Disable(ctx, "b_mod"); err != nil {
		t.Fatal(err)
	}
	if _, err := cli.Uninstall(ctx, "c_mod"); err != nil {
		t.Fatal(err)
	}
	if err := cli.Settings().Save("a_mod", map[string]any{"greeting": "hello"}); err != nil {
		t.Fatal(err)
	}
	e.writeModule(t, "late", manifest.TypeGeneral)
	e.register("late")

	gen := server.Generation()
	hooks := len(e.calls.list())
	changed, err := server.Sync(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"b_mod", "c_mod", "late"}; !slices.Equal(changed, want) {
		t.Errorf("changed = %v, want %v", changed, want)
	}
	if server.Generation() == gen {
		t.Error("generation not bumped")
	}
	if got := server.Active(); !slices.Equal(got, []string{"a_mod", "late"}) {
		t.Errorf("Active = %v", got)
	}
	if got := server.Registered(); slices.Contains(got, "c_mod") {
		t.Errorf("Registered = %v, still has c_mod", got)
	}
	if got := server.Settings().Registry().Get("a_mod")["greeting"]; got != "hello" {
		t.Errorf("greeting = %v", got)
	}
	if got := e.calls.list(); len(got) != hooks {
		t.Errorf("Sync ran lifecycle hooks: %v", got[hooks:])
	}

	changed, err = server.Sync(ctx)
	if err != nil || len(changed) != 0 {
		t.Errorf("second Sync = %v, %v", changed, err)
	}

	if err := cli.Enable(ctx, "b_mod"); err != nil {
		t.Fatal(err)
	}
	if changed, _ := server.Sync(ctx); !slices.Equal(changed, []string{"b_mod"}) {
		t.Errorf("changed after enable = %v", changed)
	}
}

func TestSync_CancelledContext(t *testing.T) {
	t.Parallel()
	m := newEnv(t).manager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := m.Sync(ctx); err == nil {
		t.Error("expected error for cancelled context")
	}
}
