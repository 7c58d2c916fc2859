package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/vibecoder-lab/gamevault/internal/catalog"
)

// decodeGamesData tolerates both the current envelope layout and a bare
// list of records, for forward/backward compatibility with older writes.
func decodeGamesData(data []byte) (catalog.Envelope, error) {
	if len(data) == 0 {
		return catalog.Envelope{Games: []catalog.GameRecord{}}, nil
	}

	var env catalog.Envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Games != nil {
		return env, nil
	}

	var bare []catalog.GameRecord
	if err := json.Unmarshal(data, &bare); err != nil {
		return catalog.Envelope{}, fmt.Errorf("persistence: decode games data: %w", err)
	}
	return catalog.Envelope{Games: bare}, nil
}

func decodeIDMap(data []byte) ([]catalog.IDMapEntry, error) {
	if len(data) == 0 {
		return []catalog.IDMapEntry{}, nil
	}
	var idMap []catalog.IDMapEntry
	if err := json.Unmarshal(data, &idMap); err != nil {
		return nil, fmt.Errorf("persistence: decode id-map: %w", err)
	}
	return idMap, nil
}
