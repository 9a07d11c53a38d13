package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for content-addressed identity.
// Version suffix enables future algorithm migration.
const (
	DomainEvent = "photostack/event/v1"
	DomainGroup = "photostack/group/v1"
)

// hashWithDomain computes SHA-256 with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EventID computes the content-addressed journal id for an event.
// The seq is part of the identity: the same payload published twice yields
// two journal entries.
func EventID(ev Event) (string, error) {
	payload, err := ev.PayloadObject()
	if err != nil {
		return "", fmt.Errorf("EventID: %w", err)
	}

	canonical, err := MarshalCanonical(map[string]any{
		"name":    string(ev.Name),
		"payload": payload,
		"seq":     ev.Seq,
	})
	if err != nil {
		return "", fmt.Errorf("EventID: failed to marshal: %w", err)
	}

	return hashWithDomain(DomainEvent, canonical), nil
}

// GroupHash identifies an (owner, grouping key) pair.
// Used as the keyed-lock key and as the claim key in storage, so a key
// containing separator characters can never collide with another owner's.
func GroupHash(ownerID, groupingKey string) string {
	canonical, err := MarshalCanonical(map[string]any{
		"owner_id":     ownerID,
		"grouping_key": groupingKey,
	})
	if err != nil {
		// Both values are strings; marshal cannot fail.
		panic(fmt.Sprintf("GroupHash: %v", err))
	}
	return hashWithDomain(DomainGroup, canonical)
}
