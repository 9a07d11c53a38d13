package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/photostack/internal/engine"
	"github.com/roach88/photostack/internal/ir"
)

// StackOptions holds flags shared by the stack subcommands.
type StackOptions struct {
	*RootOptions
	User    string
	Primary string
}

// StackList is the text/JSON view of a stack search.
type StackList struct {
	Stacks []ir.Stack `json:"stacks"`
}

func (l StackList) String() string {
	if len(l.Stacks) == 0 {
		return "no stacks"
	}
	rows := make([][]string, 0, len(l.Stacks))
	for _, st := range l.Stacks {
		rows = append(rows, []string{
			st.ID,
			orDash(st.PrimaryAssetID),
			fmt.Sprintf("%d", len(st.MemberIDs)),
			strings.Join(st.MemberIDs, ","),
			st.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return renderTable(
		[]string{"STACK", "PRIMARY", "SIZE", "ASSETS", "UPDATED"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

// StackView is the text/JSON view of one stack.
type StackView struct {
	Stack ir.Stack `json:"stack"`
}

func (v StackView) String() string {
	st := v.Stack
	rows := [][]string{
		{"id", st.ID},
		{"owner", st.OwnerID},
		{"primary", orDash(st.PrimaryAssetID)},
		{"assets", strings.Join(st.MemberIDs, ",")},
		{"created", st.CreatedAt.UTC().Format(time.RFC3339)},
		{"updated", st.UpdatedAt.UTC().Format(time.RFC3339)},
	}
	return renderTable([]string{"FIELD", "VALUE"}, rows, nil)
}

// StackDeleted reports removed stacks.
type StackDeleted struct {
	StackIDs []string `json:"stackIds"`
}

func (d StackDeleted) String() string {
	if len(d.StackIDs) == 0 {
		return "nothing to delete"
	}
	return fmt.Sprintf("deleted %s", strings.Join(d.StackIDs, ", "))
}

// AssetRemoved reports a stack membership change.
type AssetRemoved struct {
	StackID string `json:"stackId"`
	AssetID string `json:"assetId"`
}

func (r AssetRemoved) String() string {
	return fmt.Sprintf("removed %s from %s", r.AssetID, r.StackID)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// NewStackCommand creates the stack command group.
func NewStackCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stack",
		Short: "List, create, update and delete stacks",
	}
	cmd.AddCommand(newStackListCommand(rootOpts))
	cmd.AddCommand(newStackCreateCommand(rootOpts))
	cmd.AddCommand(newStackGetCommand(rootOpts))
	cmd.AddCommand(newStackUpdateCommand(rootOpts))
	cmd.AddCommand(newStackDeleteCommand(rootOpts))
	cmd.AddCommand(newStackDeleteAllCommand(rootOpts))
	cmd.AddCommand(newStackRemoveAssetCommand(rootOpts))
	return cmd
}

// stackCommand builds a stack subcommand with the common --user flag.
func stackCommand(opts *StackOptions, use, short string, args cobra.PositionalArgs, run func(*StackOptions, []string, *cobra.Command) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts, args, cmd)
		},
	}
	cmd.Flags().StringVar(&opts.User, "user", "", "acting user id (required)")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

// withEngine opens the app, runs fn and closes the app.
func withEngine(opts *StackOptions, cmd *cobra.Command, fn func(a *app, f *OutputFormatter) error) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(a, formatter(opts.RootOptions, cmd))
}

func newStackListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StackOptions{RootOptions: rootOpts}
	cmd := stackCommand(opts, "list", "List a user's stacks", cobra.NoArgs, runStackList)
	cmd.Flags().StringVar(&opts.Primary, "primary", "", "only stacks with this primary asset")
	return cmd
}

func runStackList(opts *StackOptions, _ []string, cmd *cobra.Command) error {
	return withEngine(opts, cmd, func(a *app, f *OutputFormatter) error {
		stacks, err := a.engine.Search(commandContext(cmd), opts.User, engine.SearchOptions{PrimaryAssetID: opts.Primary})
		if err != nil {
			return f.EngineError(err)
		}
		return f.Success(StackList{Stacks: stacks})
	})
}

func newStackCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StackOptions{RootOptions: rootOpts}
	cmd := stackCommand(opts, "create <asset-id>...", "Stack assets together", cobra.MinimumNArgs(1), runStackCreate)
	cmd.Long = `Stack the given assets. Assets already in another stack are moved;
stacks left empty by the move are deleted. The new stack has no primary.

Example:
  stackctl stack create A1 A2 A3 --user U1`
	return cmd
}

func runStackCreate(opts *StackOptions, args []string, cmd *cobra.Command) error {
	return withEngine(opts, cmd, func(a *app, f *OutputFormatter) error {
		st, err := a.engine.Create(commandContext(cmd), ir.Actor{UserID: opts.User}, args)
		if err != nil {
			return f.EngineError(err)
		}
		return f.Success(StackView{Stack: *st})
	})
}

func newStackGetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StackOptions{RootOptions: rootOpts}
	return stackCommand(opts, "get <stack-id>", "Show one stack", cobra.ExactArgs(1), runStackGet)
}

func runStackGet(opts *StackOptions, args []string, cmd *cobra.Command) error {
	return withEngine(opts, cmd, func(a *app, f *OutputFormatter) error {
		st, err := a.engine.Get(commandContext(cmd), ir.Actor{UserID: opts.User}, args[0])
		if err != nil {
			return f.EngineError(err)
		}
		return f.Success(StackView{Stack: *st})
	})
}

func newStackUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StackOptions{RootOptions: rootOpts}
	cmd := stackCommand(opts, "update <stack-id>", "Change a stack's primary asset", cobra.ExactArgs(1), runStackUpdate)
	cmd.Long = `Change a stack's primary asset. The primary must be a member of the
stack. Pass an empty --primary to clear it.

Examples:
  stackctl stack update S1 --primary A2 --user U1
  stackctl stack update S1 --primary "" --user U1`
	cmd.Flags().StringVar(&opts.Primary, "primary", "", "new primary asset id")
	return cmd
}

func runStackUpdate(opts *StackOptions, args []string, cmd *cobra.Command) error {
	var req engine.UpdateRequest
	if cmd.Flags().Changed("primary") {
		primary := opts.Primary
		req.PrimaryAssetID = &primary
	}
	return withEngine(opts, cmd, func(a *app, f *OutputFormatter) error {
		st, err := a.engine.Update(commandContext(cmd), ir.Actor{UserID: opts.User}, args[0], req)
		if err != nil {
			return f.EngineError(err)
		}
		return f.Success(StackView{Stack: *st})
	})
}

func newStackDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StackOptions{RootOptions: rootOpts}
	return stackCommand(opts, "delete <stack-id>", "Delete a stack, unstacking its assets", cobra.ExactArgs(1), runStackDelete)
}

func runStackDelete(opts *StackOptions, args []string, cmd *cobra.Command) error {
	return withEngine(opts, cmd, func(a *app, f *OutputFormatter) error {
		if err := a.engine.Delete(commandContext(cmd), ir.Actor{UserID: opts.User}, args[0]); err != nil {
			return f.EngineError(err)
		}
		return f.Success(StackDeleted{StackIDs: []string{args[0]}})
	})
}

func newStackDeleteAllCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StackOptions{RootOptions: rootOpts}
	cmd := stackCommand(opts, "delete-all <stack-id>...", "Delete several stacks at once", cobra.ArbitraryArgs, runStackDeleteAll)
	cmd.Long = `Delete several stacks in one batch. Either all of them are deleted or
none is. With no ids nothing happens.

Example:
  stackctl stack delete-all S1 S2 --user U1`
	return cmd
}

func runStackDeleteAll(opts *StackOptions, args []string, cmd *cobra.Command) error {
	return withEngine(opts, cmd, func(a *app, f *OutputFormatter) error {
		if err := a.engine.DeleteAll(commandContext(cmd), ir.Actor{UserID: opts.User}, args); err != nil {
			return f.EngineError(err)
		}
		return f.Success(StackDeleted{StackIDs: ir.SortedIDs(args)})
	})
}

func newStackRemoveAssetCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StackOptions{RootOptions: rootOpts}
	cmd := stackCommand(opts, "remove-asset <stack-id> <asset-id>", "Take an asset out of a stack", cobra.ExactArgs(2), runStackRemoveAsset)
	cmd.Long = `Take an asset out of a stack. The primary asset cannot be removed;
reassign the primary first. Removing the last asset deletes the stack.`
	return cmd
}

func runStackRemoveAsset(opts *StackOptions, args []string, cmd *cobra.Command) error {
	return withEngine(opts, cmd, func(a *app, f *OutputFormatter) error {
		if err := a.engine.RemoveAsset(commandContext(cmd), ir.Actor{UserID: opts.User}, args[0], args[1]); err != nil {
			return f.EngineError(err)
		}
		return f.Success(AssetRemoved{StackID: args[0], AssetID: args[1]})
	})
}
