package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/photostack/internal/store"
)

// VerifyReport is the output of the verify command.
type VerifyReport struct {
	OK         bool              `json:"ok"`
	Violations []store.Violation `json:"violations"`
}

func (r VerifyReport) String() string {
	if r.OK {
		return "OK: no invariant violations"
	}
	lines := make([]string, 0, len(r.Violations)+1)
	lines = append(lines, fmt.Sprintf("FAIL: %d invariant violation(s)", len(r.Violations)))
	for _, v := range r.Violations {
		lines = append(lines, "  "+v.String())
	}
	return strings.Join(lines, "\n")
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check the database for stacking invariant violations",
		Long: `Scan every stack and asset for broken invariants: primaries that are
not members, stacks without members, and assets pointing at missing stacks.

Exit codes:
  0 - No violations
  1 - Violations found
  2 - Database could not be read`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
	st, err := openStore(opts)
	if err != nil {
		return err
	}
	defer st.Close()

	violations, err := st.CheckInvariants(commandContext(cmd))
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to check invariants", err)
	}

	report := VerifyReport{OK: len(violations) == 0, Violations: violations}
	if err := formatter(opts, cmd).Success(report); err != nil {
		return err
	}
	if !report.OK {
		return &ExitError{
			Code:     ExitFailure,
			Message:  fmt.Sprintf("%d invariant violation(s)", len(violations)),
			Reported: true,
		}
	}
	return nil
}
