package registry

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/Zakhele-TechWannabe/AmongEqualsRLServer/internal/agent"
)

// FormatVersion tags the snapshot exchange format. Bump only with a
// migration path for persisted envelopes.
const FormatVersion = 1

// Envelope is the persisted snapshot exchange format. It round-trips
// exactly: publish, persist, decode, restore yields identical action
// selection for identical inputs.
type Envelope struct {
	FormatVersion int             `json:"format_version"`
	AgentID       string          `json:"agent_id"`
	VersionID     int64           `json:"version_id"`
	CreatedAt     time.Time       `json:"created_at"`
	Metadata      Metadata        `json:"metadata"`
	Snapshot      *agent.Snapshot `json:"snapshot"`
}

// Encode serializes an envelope.
func Encode(env *Envelope) ([]byte, error) {
	if env.Snapshot == nil {
		return nil, fmt.Errorf("envelope for %s/%d has no snapshot", env.AgentID, env.VersionID)
	}
	if env.FormatVersion == 0 {
		env.FormatVersion = FormatVersion
	}
	return json.Marshal(env)
}

// Decode parses and validates an envelope.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	if env.FormatVersion != FormatVersion {
		return nil, fmt.Errorf("unsupported envelope format version %d", env.FormatVersion)
	}
	if env.AgentID == "" || env.Snapshot == nil {
		return nil, fmt.Errorf("envelope missing agent_id or snapshot")
	}
	return &env, nil
}
