// Package entity identifies the campaign entities tracked by the version
// store. The engine never interprets entity state beyond the generic snapshot
// map; an entity is known only by its type and id.
package entity

import (
	"strings"

	apperrors "github.com/louisbranch/timeloom/internal/platform/errors"
)

// Ref identifies one entity of one kind, such as settlement 42 or the
// character "elke". Entity types are opaque strings owned by the calling
// services.
type Ref struct {
	Type string
	ID   string
}

// String renders the reference as type:id.
func (r Ref) String() string {
	return r.Type + ":" + r.ID
}

// Validate checks that both reference fields are populated.
func (r Ref) Validate() error {
	if strings.TrimSpace(r.Type) == "" {
		return apperrors.New(apperrors.CodeEntityTypeEmpty, "entity type is required")
	}
	if strings.TrimSpace(r.ID) == "" {
		return apperrors.New(apperrors.CodeEntityIDEmpty, "entity id is required")
	}
	return nil
}
