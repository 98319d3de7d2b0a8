package orch

import (
	"encoding/json"
	"fmt"

	"github.com/dkeye/voicerelay/internal/app"
	"github.com/dkeye/voicerelay/internal/core"
	"github.com/dkeye/voicerelay/internal/protocol"
	"github.com/rs/zerolog/log"
)

// sendingSignal forwards the first half of a handshake from sender to
// target. The first signal of a pair also tells target that sender is
// available so it can answer.
func (o *Orchestrator) sendingSignal(sender, target, caller core.ConnectionID, payload json.RawMessage) error {
	if caller != "" && caller != sender {
		log.Warn().
			Str("module", "orch.signal").
			Str("sid", string(sender)).
			Str("caller_id", string(caller)).
			Msg("callerId does not match transport id, using transport id")
	}
	if err := o.checkTarget(sender, target); err != nil {
		return err
	}
	if o.markAnnounced(sender, target) {
		if err := o.send(target, app.ControlTraffic, protocol.EventUserJoinedVoice, string(sender)); err != nil {
			return err
		}
	}
	return o.relay(sender, target, payload)
}

// relay delivers payload to target once, untouched. Frames from one sender
// to one target keep their order because both the loop and the target's
// send queue are FIFO.
func (o *Orchestrator) relay(sender, target core.ConnectionID, payload json.RawMessage) error {
	if err := o.checkTarget(sender, target); err != nil {
		return err
	}
	err := o.send(target, app.ControlTraffic, protocol.EventReceivingReturnedSignal, protocol.ReturnedSignal{
		ID:     string(sender),
		Signal: payload,
	})
	if err != nil {
		return err
	}
	log.Debug().Str("module", "orch.signal").Str("sid", string(sender)).Str("target", string(target)).Int("bytes", len(payload)).Msg("signal relayed")
	return nil
}

func (o *Orchestrator) checkTarget(sender, target core.ConnectionID) error {
	if target == "" || target == sender {
		return fmt.Errorf("relay %s -> %q: %w", sender, target, core.ErrTargetUnavailable)
	}
	if _, ok := o.links[target]; !ok {
		return fmt.Errorf("relay %s -> %s: %w", sender, target, core.ErrTargetUnavailable)
	}
	return nil
}

// markAnnounced records that target was told about sender. It reports
// whether this is the first time for the pair.
func (o *Orchestrator) markAnnounced(sender, target core.ConnectionID) bool {
	targets, ok := o.announced[sender]
	if !ok {
		targets = make(map[core.ConnectionID]struct{})
		o.announced[sender] = targets
	}
	if _, seen := targets[target]; seen {
		return false
	}
	targets[target] = struct{}{}
	return true
}

// forgetPeer drops every pair involving sid so a later join announces again.
func (o *Orchestrator) forgetPeer(sid core.ConnectionID) {
	delete(o.announced, sid)
	for sender, targets := range o.announced {
		delete(targets, sid)
		if len(targets) == 0 {
			delete(o.announced, sender)
		}
	}
}
