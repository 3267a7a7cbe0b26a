// Package actions implements the grid action registry: built-in toolbar
// operations plus caller-supplied ones, dispatched with per-action
// single-flight semantics and UUID-tagged invocation logging.
package actions

import (
	"context"

	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/state"
)

// Built-in action IDs.
const (
	ActionRefresh = "refresh"
	ActionAdd     = "add"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionSync    = "sync"
	ActionExport  = "export"
	ActionImport  = "import"
)

// Context is the grid state an action observes at invocation time.
// Export and import handlers additionally receive the active sort and
// filter so they can reproduce exactly what the user sees.
type Context struct {
	GridName     string
	SelectedRows []loader.Row
	Sort         state.SortModel
	Filter       state.FilterModel

	// Row is set for row-scoped invocations, e.g. from a context menu.
	Row loader.Row

	// Data carries free-form extras from the caller.
	Data map[string]interface{}
}

// Action describes one invocable grid operation.
type Action struct {
	ID    string
	Label string
	Icon  string

	// Enabled gates invocation. Nil means always enabled.
	Enabled func(Context) bool

	// OnInvoke performs the action.
	OnInvoke func(context.Context, Context) error

	// Destructive marks actions that need a confirmation affordance.
	Destructive bool
}

// Hooks supplies the behavior behind the built-in actions. A nil hook
// leaves its action unregistered.
type Hooks struct {
	// ClearCache runs before OnRefresh so a refresh never serves stale rows.
	ClearCache func()

	OnRefresh func(context.Context, Context) error
	OnAdd     func(context.Context, Context) error
	OnEdit    func(context.Context, Context) error
	OnDelete  func(context.Context, Context) error
	OnSync    func(context.Context, Context) error
	OnExport  func(context.Context, Context) error
	OnImport  func(context.Context, Context) error
}

// Builtins assembles the standard toolbar actions from the given hooks,
// in toolbar order.
func Builtins(h Hooks) []Action {
	var out []Action

	if h.OnRefresh != nil || h.ClearCache != nil {
		out = append(out, Action{
			ID:    ActionRefresh,
			Label: "Refresh",
			Icon:  "refresh",
			OnInvoke: func(ctx context.Context, actx Context) error {
				if h.ClearCache != nil {
					h.ClearCache()
				}
				if h.OnRefresh == nil {
					return nil
				}
				return h.OnRefresh(ctx, actx)
			},
		})
	}
	if h.OnAdd != nil {
		out = append(out, Action{
			ID:       ActionAdd,
			Label:    "Add",
			Icon:     "add",
			OnInvoke: h.OnAdd,
		})
	}
	if h.OnEdit != nil {
		out = append(out, Action{
			ID:    ActionEdit,
			Label: "Edit",
			Icon:  "edit",
			Enabled: func(actx Context) bool {
				return actx.Row != nil || len(actx.SelectedRows) == 1
			},
			OnInvoke: h.OnEdit,
		})
	}
	if h.OnDelete != nil {
		out = append(out, Action{
			ID:    ActionDelete,
			Label: "Delete",
			Icon:  "delete",
			Enabled: func(actx Context) bool {
				return len(actx.SelectedRows) > 0 || actx.Row != nil
			},
			OnInvoke:    h.OnDelete,
			Destructive: true,
		})
	}
	if h.OnSync != nil {
		out = append(out, Action{
			ID:       ActionSync,
			Label:    "Sync",
			Icon:     "sync",
			OnInvoke: h.OnSync,
		})
	}
	if h.OnExport != nil {
		out = append(out, Action{
			ID:       ActionExport,
			Label:    "Export",
			Icon:     "download",
			OnInvoke: h.OnExport,
		})
	}
	if h.OnImport != nil {
		out = append(out, Action{
			ID:       ActionImport,
			Label:    "Import",
			Icon:     "upload",
			OnInvoke: h.OnImport,
		})
	}
	return out
}
