package harness

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/photostack/internal/engine"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Assets are written to the store before the first step.
	Assets []SeedAsset `yaml:"assets"`

	// Steps run in order; each waits for the bus to go idle.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state and trace.
	Assertions []Assertion `yaml:"assertions"`
}

// SeedAsset is an asset present before the scenario starts.
type SeedAsset struct {
	ID    string `yaml:"id"`
	Owner string `yaml:"owner"`
	Key   string `yaml:"key,omitempty"`

	// Captured is an RFC 3339 timestamp. When empty, the asset is captured
	// one second after the previous seed asset.
	Captured string `yaml:"captured,omitempty"`
}

// Step is one scenario action. Exactly one action field must be set.
type Step struct {
	Create      *CreateStep      `yaml:"create,omitempty"`
	Update      *UpdateStep      `yaml:"update,omitempty"`
	Delete      *StackRef        `yaml:"delete,omitempty"`
	DeleteAll   *DeleteAllStep   `yaml:"delete_all,omitempty"`
	RemoveAsset *RemoveAssetStep `yaml:"remove_asset,omitempty"`
	Extracted   *ExtractedStep   `yaml:"extracted,omitempty"`
	DeleteAsset *AssetRef        `yaml:"delete_asset,omitempty"`

	// ExpectError is the engine error code the step must fail with.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// CreateStep creates a stack from assets.
type CreateStep struct {
	User   string   `yaml:"user"`
	Assets []string `yaml:"assets"`
}

// UpdateStep sets or clears a stack's primary asset.
// A nil Primary leaves it untouched; an empty one clears it.
type UpdateStep struct {
	User    string  `yaml:"user"`
	Stack   string  `yaml:"stack"`
	Primary *string `yaml:"primary,omitempty"`
}

// StackRef names a stack on behalf of a user.
type StackRef struct {
	User  string `yaml:"user"`
	Stack string `yaml:"stack"`
}

// DeleteAllStep deletes several stacks at once.
type DeleteAllStep struct {
	User   string   `yaml:"user"`
	Stacks []string `yaml:"stacks"`
}

// RemoveAssetStep removes one asset from a stack.
type RemoveAssetStep struct {
	User  string `yaml:"user"`
	Stack string `yaml:"stack"`
	Asset string `yaml:"asset"`
}

// ExtractedStep publishes AssetMetadataExtracted events.
// Asset publishes a single event; Concurrent publishes all of its events
// before waiting, so their handlers run in parallel. Both may be set.
type ExtractedStep struct {
	User       string   `yaml:"user"`
	Asset      string   `yaml:"asset,omitempty"`
	Concurrent []string `yaml:"concurrent,omitempty"`
}

// AssetRef names an asset on behalf of a user.
type AssetRef struct {
	User  string `yaml:"user"`
	Asset string `yaml:"asset"`
}

// Step kinds, as written in scenario files.
const (
	StepCreate      = "create"
	StepUpdate      = "update"
	StepDelete      = "delete"
	StepDeleteAll   = "delete_all"
	StepRemoveAsset = "remove_asset"
	StepExtracted   = "extracted"
	StepDeleteAsset = "delete_asset"
)

// Kind returns the name of the step's action, or "" when none is set.
// When several are set the first in declaration order wins; validation
// rejects such steps.
func (s Step) Kind() string {
	kinds := s.kinds()
	if len(kinds) == 0 {
		return ""
	}
	return kinds[0]
}

func (s Step) kinds() []string {
	var kinds []string
	if s.Create != nil {
		kinds = append(kinds, StepCreate)
	}
	if s.Update != nil {
		kinds = append(kinds, StepUpdate)
	}
	if s.Delete != nil {
		kinds = append(kinds, StepDelete)
	}
	if s.DeleteAll != nil {
		kinds = append(kinds, StepDeleteAll)
	}
	if s.RemoveAsset != nil {
		kinds = append(kinds, StepRemoveAsset)
	}
	if s.Extracted != nil {
		kinds = append(kinds, StepExtracted)
	}
	if s.DeleteAsset != nil {
		kinds = append(kinds, StepDeleteAsset)
	}
	return kinds
}

// Assertion validates final state or the trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// User scopes stack_count.
	User string `yaml:"user,omitempty"`

	// Stack is the subject of stack_members and stack_primary, and the
	// expected value of asset_stack ("" means unstacked).
	Stack string `yaml:"stack,omitempty"`

	// Asset is the subject of asset_stack.
	Asset string `yaml:"asset,omitempty"`

	// Event is the event name counted by event_count.
	Event string `yaml:"event,omitempty"`

	// Count is the expected number for stack_count and event_count.
	Count int `yaml:"count,omitempty"`

	// Members is the expected member list for stack_members.
	Members []string `yaml:"members,omitempty"`

	// Primary is the expected primary for stack_primary ("" means none).
	Primary string `yaml:"primary,omitempty"`
}

// Assertion type constants.
const (
	AssertStackCount   = "stack_count"
	AssertStackMembers = "stack_members"
	AssertStackPrimary = "stack_primary"
	AssertAssetStack   = "asset_stack"
	AssertEventCount   = "event_count"
	AssertInvariants   = "invariants"
)

var errorCodes = map[string]bool{
	string(engine.ErrCodeForbidden):      true,
	string(engine.ErrCodeNotFound):       true,
	string(engine.ErrCodeInvalidRequest): true,
	string(engine.ErrCodeConflict):       true,
	string(engine.ErrCodeInternal):       true,
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML from memory.
func ParseScenario(data []byte) (*Scenario, error) {
	// Reject unknown fields (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	seen := make(map[string]bool)
	for i, a := range s.Assets {
		if a.ID == "" || a.Owner == "" {
			return fmt.Errorf("assets[%d]: id and owner are required", i)
		}
		if seen[a.ID] {
			return fmt.Errorf("assets[%d]: duplicate id %q", i, a.ID)
		}
		seen[a.ID] = true
		if a.Captured != "" {
			if _, err := time.Parse(time.RFC3339, a.Captured); err != nil {
				return fmt.Errorf("assets[%d]: captured: %w", i, err)
			}
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	kinds := step.kinds()
	switch len(kinds) {
	case 0:
		return fmt.Errorf("steps[%d]: no action set", index)
	case 1:
	default:
		return fmt.Errorf("steps[%d]: exactly one action allowed, got %v", index, kinds)
	}

	if step.ExpectError != "" && !errorCodes[step.ExpectError] {
		return fmt.Errorf("steps[%d]: unknown error code %q", index, step.ExpectError)
	}

	switch {
	case step.Create != nil:
		if len(step.Create.Assets) == 0 && step.ExpectError == "" {
			return fmt.Errorf("steps[%d]: create needs assets", index)
		}
	case step.Update != nil:
		if step.Update.Stack == "" {
			return fmt.Errorf("steps[%d]: update needs stack", index)
		}
	case step.Delete != nil:
		if step.Delete.Stack == "" {
			return fmt.Errorf("steps[%d]: delete needs stack", index)
		}
	case step.RemoveAsset != nil:
		if step.RemoveAsset.Stack == "" || step.RemoveAsset.Asset == "" {
			return fmt.Errorf("steps[%d]: remove_asset needs stack and asset", index)
		}
	case step.Extracted != nil:
		if step.Extracted.Asset == "" && len(step.Extracted.Concurrent) == 0 {
			return fmt.Errorf("steps[%d]: extracted needs asset or concurrent", index)
		}
		if step.ExpectError != "" {
			return fmt.Errorf("steps[%d]: extracted steps cannot expect an error", index)
		}
	case step.DeleteAsset != nil:
		if step.DeleteAsset.Asset == "" {
			return fmt.Errorf("steps[%d]: delete_asset needs asset", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertStackCount:
		if a.User == "" {
			return fmt.Errorf("assertions[%d]: user is required for stack_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertStackMembers:
		if a.Stack == "" || len(a.Members) == 0 {
			return fmt.Errorf("assertions[%d]: stack and members are required for stack_members", index)
		}
	case AssertStackPrimary:
		if a.Stack == "" {
			return fmt.Errorf("assertions[%d]: stack is required for stack_primary", index)
		}
	case AssertAssetStack:
		if a.Asset == "" {
			return fmt.Errorf("assertions[%d]: asset is required for asset_stack", index)
		}
	case AssertEventCount:
		if a.Event == "" {
			return fmt.Errorf("assertions[%d]: event is required for event_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative", index)
		}
	case AssertInvariants:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
