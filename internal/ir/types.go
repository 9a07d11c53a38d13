package ir

import "time"

// Asset is a media asset as seen by the stacking subsystem.
// Assets are owned by the asset store; the engine only assigns or clears StackID.
type Asset struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	StackID     string    `json:"stackId,omitempty"`     // Empty when not stacked
	GroupingKey string    `json:"groupingKey,omitempty"` // Burst/series id from metadata extraction
	CapturedAt  time.Time `json:"capturedAt"`
}

// Stacked reports whether the asset currently belongs to a stack.
func (a Asset) Stacked() bool {
	return a.StackID != ""
}

// Stack groups related assets under one optional primary representative.
//
// INVARIANTS:
//   - PrimaryAssetID is empty or one of MemberIDs
//   - MemberIDs is never empty while the stack exists
//   - MemberIDs are ordered by capture time, then id
type Stack struct {
	ID             string    `json:"id"`
	OwnerID        string    `json:"ownerId"`
	PrimaryAssetID string    `json:"primaryAssetId,omitempty"`
	MemberIDs      []string  `json:"assetIds"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// HasMember reports whether assetID is a member of the stack.
func (s Stack) HasMember(assetID string) bool {
	for _, id := range s.MemberIDs {
		if id == assetID {
			return true
		}
	}
	return false
}

// StackFilter narrows a stack search.
type StackFilter struct {
	OwnerID        string
	PrimaryAssetID string // Optional
}

// StackPatch is a partial stack update. Nil fields are left untouched.
type StackPatch struct {
	PrimaryAssetID *string
}

// AutoStackRequest describes a stack created by the auto-stacking algorithm.
// The (OwnerID, GroupingKey) pair is claimed atomically with the stack insert.
type AutoStackRequest struct {
	OwnerID        string
	GroupingKey    string
	AssetIDs       []string
	PrimaryAssetID string
}

// Actor identifies the caller of a direct operation.
type Actor struct {
	UserID string `json:"userId"`
}

// Permission names an access right checked by the authorizer.
type Permission string

const (
	PermAssetRead   Permission = "asset.read"
	PermAssetUpdate Permission = "asset.update"
	PermAssetDelete Permission = "asset.delete"
	PermStackRead   Permission = "stack.read"
	PermStackUpdate Permission = "stack.update"
	PermStackDelete Permission = "stack.delete"
)
