package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/photostack/internal/ir"
)

// AssetOptions holds flags for the asset subcommands.
type AssetOptions struct {
	*RootOptions
	Owner    string
	User     string
	Key      string
	Captured string
}

// AssetStatus is the output of asset subcommands.
type AssetStatus struct {
	AssetID string `json:"assetId"`
	StackID string `json:"stackId,omitempty"`
	Deleted bool   `json:"deleted,omitempty"`
}

func (s AssetStatus) String() string {
	switch {
	case s.Deleted:
		return fmt.Sprintf("asset %s deleted", s.AssetID)
	case s.StackID != "":
		return fmt.Sprintf("asset %s in stack %s", s.AssetID, s.StackID)
	default:
		return fmt.Sprintf("asset %s not stacked", s.AssetID)
	}
}

// NewAssetCommand creates the asset command group.
func NewAssetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "asset",
		Short: "Seed, extract and delete assets",
	}
	cmd.AddCommand(newAssetPutCommand(rootOpts))
	cmd.AddCommand(newAssetExtractedCommand(rootOpts))
	cmd.AddCommand(newAssetDeleteCommand(rootOpts))
	return cmd
}

func newAssetPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AssetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <asset-id>",
		Short: "Create or replace an asset record",
		Long: `Create or replace an asset record. An existing stack assignment is kept.

Examples:
  stackctl asset put A1 --owner U1 --key burst-42
  stackctl asset put A2 --owner U1 --key burst-42 --captured 2024-06-01T12:00:01Z`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssetPut(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owning user id (required)")
	_ = cmd.MarkFlagRequired("owner")
	cmd.Flags().StringVar(&opts.Key, "key", "", "grouping key (burst or series id)")
	cmd.Flags().StringVar(&opts.Captured, "captured", "", "capture time, RFC 3339 (default now)")

	return cmd
}

func runAssetPut(opts *AssetOptions, assetID string, cmd *cobra.Command) error {
	captured := time.Now().UTC()
	if opts.Captured != "" {
		t, err := time.Parse(time.RFC3339, opts.Captured)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --captured", err)
		}
		captured = t
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	if err := st.PutAsset(ctx, ir.Asset{
		ID:          assetID,
		OwnerID:     opts.Owner,
		GroupingKey: opts.Key,
		CapturedAt:  captured,
	}); err != nil {
		return WrapExitError(ExitCommandError, "failed to store asset", err)
	}

	asset, err := st.GetAsset(ctx, assetID)
	if err != nil || asset == nil {
		return WrapExitError(ExitCommandError, "failed to read asset back", err)
	}
	return formatter(opts.RootOptions, cmd).Success(AssetStatus{AssetID: assetID, StackID: asset.StackID})
}

func newAssetExtractedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AssetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "extracted <asset-id>",
		Short: "Publish AssetMetadataExtracted and wait for auto-stacking",
		Long: `Publish an AssetMetadataExtracted event for the asset and wait until
every handler has finished. Prints the asset's stack afterwards.

Example:
  stackctl asset extracted A2 --user U1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssetExtracted(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runAssetExtracted(opts *AssetOptions, assetID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.bus.Publish(ctx, ir.NewAssetMetadataExtracted(assetID, opts.User)); err != nil {
		return WrapExitError(ExitInternal, "failed to publish event", err)
	}
	if err := a.drain(ctx); err != nil {
		return WrapExitError(ExitInternal, "event handling did not finish", err)
	}

	asset, err := a.store.GetAsset(ctx, assetID)
	if err != nil {
		return WrapExitError(ExitInternal, "failed to read asset", err)
	}
	status := AssetStatus{AssetID: assetID}
	if asset != nil {
		status.StackID = asset.StackID
	}
	return formatter(opts.RootOptions, cmd).Success(status)
}

func newAssetDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AssetOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <asset-id>",
		Short: "Delete an asset and repair its stack",
		Long: `Delete an asset. If it was the last member of a stack the stack is
deleted; if it was the primary, the earliest remaining member becomes primary.

Example:
  stackctl asset delete A1 --user U1`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAssetDelete(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.User, "user", "", "user id (required)")
	_ = cmd.MarkFlagRequired("user")

	return cmd
}

func runAssetDelete(opts *AssetOptions, assetID string, cmd *cobra.Command) error {
	ctx := commandContext(cmd)
	a, err := openApp(ctx, opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	defer a.close()

	f := formatter(opts.RootOptions, cmd)
	if err := a.engine.DeleteAsset(ctx, ir.Actor{UserID: opts.User}, assetID); err != nil {
		return f.EngineError(err)
	}
	return f.Success(AssetStatus{AssetID: assetID, Deleted: true})
}
