package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/photostack/internal/ir"
	"github.com/roach88/photostack/internal/store"
)

// AssertionContext provides database access for state assertions.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for i, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] step=%d %s %v\n", i+1, event.Step, event.Event, event.Payload)
		}
	}

	return buf.String()
}

func assertStackCount(ctx context.Context, st *store.Store, a Assertion) error {
	stacks, err := st.SearchStacks(ctx, ir.StackFilter{OwnerID: a.User})
	if err != nil {
		return fmt.Errorf("stack_count: %w", err)
	}
	if len(stacks) != a.Count {
		ids := make([]string, len(stacks))
		for i, s := range stacks {
			ids[i] = s.ID
		}
		return &AssertionError{
			Type:     AssertStackCount,
			Expected: fmt.Sprintf("%d stacks for %s", a.Count, a.User),
			Actual:   fmt.Sprintf("%d stacks %v", len(stacks), ids),
		}
	}
	return nil
}

func assertStackMembers(ctx context.Context, st *store.Store, a Assertion) error {
	stack, err := st.GetStack(ctx, a.Stack)
	if err != nil {
		return fmt.Errorf("stack_members: %w", err)
	}
	if stack == nil {
		return &AssertionError{
			Type:     AssertStackMembers,
			Expected: fmt.Sprintf("stack %s with members %v", a.Stack, a.Members),
			Actual:   "stack does not exist",
		}
	}
	if !slices.Equal(stack.MemberIDs, a.Members) {
		return &AssertionError{
			Type:     AssertStackMembers,
			Expected: fmt.Sprintf("stack %s with members %v", a.Stack, a.Members),
			Actual:   fmt.Sprintf("members %v", stack.MemberIDs),
		}
	}
	return nil
}

func assertStackPrimary(ctx context.Context, st *store.Store, a Assertion) error {
	stack, err := st.GetStack(ctx, a.Stack)
	if err != nil {
		return fmt.Errorf("stack_primary: %w", err)
	}
	if stack == nil {
		return &AssertionError{
			Type:     AssertStackPrimary,
			Expected: fmt.Sprintf("stack %s with primary %q", a.Stack, a.Primary),
			Actual:   "stack does not exist",
		}
	}
	if stack.PrimaryAssetID != a.Primary {
		return &AssertionError{
			Type:     AssertStackPrimary,
			Expected: fmt.Sprintf("stack %s with primary %q", a.Stack, a.Primary),
			Actual:   fmt.Sprintf("primary %q", stack.PrimaryAssetID),
		}
	}
	return nil
}

func assertAssetStack(ctx context.Context, st *store.Store, a Assertion) error {
	asset, err := st.GetAsset(ctx, a.Asset)
	if err != nil {
		return fmt.Errorf("asset_stack: %w", err)
	}
	if asset == nil {
		return &AssertionError{
			Type:     AssertAssetStack,
			Expected: fmt.Sprintf("asset %s in stack %q", a.Asset, a.Stack),
			Actual:   "asset does not exist",
		}
	}
	if asset.StackID != a.Stack {
		return &AssertionError{
			Type:     AssertAssetStack,
			Expected: fmt.Sprintf("asset %s in stack %q", a.Asset, a.Stack),
			Actual:   fmt.Sprintf("stack %q", asset.StackID),
		}
	}
	return nil
}

func assertEventCount(trace []TraceEvent, a Assertion) error {
	n := 0
	for _, ev := range trace {
		if ev.Event == a.Event {
			n++
		}
	}
	if n != a.Count {
		return &AssertionError{
			Type:     AssertEventCount,
			Expected: fmt.Sprintf("%d %s events", a.Count, a.Event),
			Actual:   fmt.Sprintf("%d events", n),
			Trace:    trace,
		}
	}
	return nil
}

func assertInvariants(ctx context.Context, st *store.Store) error {
	violations, err := st.CheckInvariants(ctx)
	if err != nil {
		return fmt.Errorf("invariants: %w", err)
	}
	if len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.String()
		}
		return &AssertionError{
			Type:     AssertInvariants,
			Expected: "no violations",
			Actual:   strings.Join(msgs, "; "),
		}
	}
	return nil
}

// EvaluateAssertions runs every assertion and returns the failure messages.
// Returns nil when all assertions pass.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		if assertion.Type != AssertEventCount && (actx == nil || actx.Store == nil) {
			errors = append(errors, fmt.Sprintf("assertion[%d]: %s requires database context", i, assertion.Type))
			continue
		}

		switch assertion.Type {
		case AssertStackCount:
			err = assertStackCount(actx.Ctx, actx.Store, assertion)
		case AssertStackMembers:
			err = assertStackMembers(actx.Ctx, actx.Store, assertion)
		case AssertStackPrimary:
			err = assertStackPrimary(actx.Ctx, actx.Store, assertion)
		case AssertAssetStack:
			err = assertAssetStack(actx.Ctx, actx.Store, assertion)
		case AssertEventCount:
			err = assertEventCount(result.Trace, assertion)
		case AssertInvariants:
			err = assertInvariants(actx.Ctx, actx.Store)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
