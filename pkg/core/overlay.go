package core

import "time"

// Scope names the game and variant a set of overlays belongs to. Board
// state keys are only unique within one scope.
type Scope struct {
	Game    string `json:"game"`
	Variant string `json:"variant"`
}

func (s Scope) String() string {
	return s.Game + "_" + s.Variant
}

// OverlayRecord is a resolved overlay as persisted by a storage backend.
// Image holds the stored encoding and is empty when Failed is set.
type OverlayRecord struct {
	Key       string    `json:"key"`
	Image     []byte    `json:"image,omitempty"`
	Failed    bool      `json:"failed"`
	Reason    string    `json:"reason,omitempty"`
	FetchedAt time.Time `json:"fetchedAt"`
}
