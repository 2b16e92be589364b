package cart

import (
	"encoding/json"
	"fmt"
)

// StorageKey is the slot the cart snapshot lives under.
const StorageKey = "storefront:cart"

const snapshotVersion = 1

type snapshot struct {
	Version int    `json:"version"`
	Items   []Line `json:"items"`
}

func encodeSnapshot(lines []Line) ([]byte, error) {
	items := lines
	if items == nil {
		items = []Line{}
	}
	return json.Marshal(snapshot{Version: snapshotVersion, Items: items})
}

func decodeSnapshot(raw []byte) ([]Line, error) {
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decoding cart snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported cart snapshot version %d", snap.Version)
	}
	return snap.Items, nil
}
