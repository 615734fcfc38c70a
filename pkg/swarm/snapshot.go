package swarm

import (
	"github.com/agentmesh/swarmkit/pkg/agentengine"
)

const snapshotVersion = 1

// Snapshot is the versioned, opaque bytestream contract named in §6: swarm
// metadata plus one InstanceState per agent captured at snapshot time. It
// round-trips through any encoding (JSON, gob, ...) without further help
// from this package.
type Snapshot struct {
	Version int                               `json:"version"`
	SwarmID string                             `json:"swarm_id"`
	Agents  map[string]agentengine.InstanceState `json:"agents"`
}

// Snapshot captures instances (keyed by instance name, "base" or
// "base@delegator" for a delegation instance) into a restorable Snapshot.
// The lead instance should always be included by its Config.LeadAgent name.
func (s *Swarm) Snapshot(instances map[string]*agentengine.Instance) Snapshot {
	agents := make(map[string]agentengine.InstanceState, len(instances))
	for name, inst := range instances {
		agents[name] = inst.State()
	}
	return Snapshot{Version: snapshotVersion, SwarmID: s.cfg.ID, Agents: agents}
}

// Restore reinstalls a snapshot onto instances present in the *current*
// topology (§4.8 Restoration): a snapshot agent with no matching live
// instance is simply skipped rather than erroring, since "a delegation is
// valid if its base agent exists now, regardless of whether it existed at
// snapshot time" cuts both ways — an agent that existed at snapshot time but
// no longer does is just dropped. Restore returns the names it actually
// applied so callers can log what was skipped.
func Restore(snap Snapshot, instances map[string]*agentengine.Instance, preserveHistoricalPrompt bool) []string {
	applied := make([]string, 0, len(snap.Agents))
	for name, state := range snap.Agents {
		inst, ok := instances[name]
		if !ok {
			continue
		}
		inst.Restore(state, preserveHistoricalPrompt)
		applied = append(applied, name)
	}
	return applied
}
