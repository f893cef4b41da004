package messages

// LinkStats counts what the linking pass resolved and what it could not.
type LinkStats struct {
	RepliesResolved    int
	RepliesUnresolved  int
	TapbacksApplied    int
	TapbacksRemoved    int
	TapbacksUnresolved int
}

// Link resolves reply threads and applies tapbacks across an extraction.
// Events are applied in slice order, so callers sort messages
// chronologically first; the resulting Tapbacks lists then hold only the
// reactions still standing at the end of the history.
//
// Targets outside the slice are marked unresolved, never dropped: a reply to
// a purged message is still a message.
func Link(msgs []Message) LinkStats {
	var stats LinkStats

	index := make(map[string]int, len(msgs))
	for i := range msgs {
		index[msgs[i].GUID] = i
	}

	for i := range msgs {
		m := &msgs[i]

		if m.ThreadOriginatorGUID != "" && m.Variant != VariantTapback {
			if j, ok := index[m.ThreadOriginatorGUID]; ok {
				m.ReplyToID = msgs[j].ID
				stats.RepliesResolved++
			} else {
				m.ReplyUnresolved = true
				stats.RepliesUnresolved++
			}
		}

		if m.Variant != VariantTapback || m.Tapback == nil {
			continue
		}
		j, ok := index[m.Tapback.TargetGUID]
		if !ok {
			m.Tapback.TargetUnresolved = true
			stats.TapbacksUnresolved++
			continue
		}

		target := &msgs[j]
		if m.Tapback.Removal {
			if removeTapback(target, *m.Tapback) {
				stats.TapbacksRemoved++
			}
		} else {
			applyTapback(target, *m.Tapback)
			stats.TapbacksApplied++
		}
	}
	return stats
}

// sameReaction matches reactions by sender, part, and glyph. A sender
// re-sending the same reaction replaces the earlier event.
func sameReaction(a, b Tapback) bool {
	return a.FromMe == b.FromMe &&
		a.HandleID == b.HandleID &&
		a.TargetPart == b.TargetPart &&
		a.Kind == b.Kind &&
		a.Emoji == b.Emoji
}

func applyTapback(target *Message, t Tapback) {
	for i, existing := range target.Tapbacks {
		if sameReaction(existing, t) {
			target.Tapbacks[i] = t
			return
		}
	}
	target.Tapbacks = append(target.Tapbacks, t)
}

func removeTapback(target *Message, t Tapback) bool {
	kept := target.Tapbacks[:0]
	removed := false
	for _, existing := range target.Tapbacks {
		if sameReaction(existing, t) {
			removed = true
			continue
		}
		kept = append(kept, existing)
	}
	target.Tapbacks = kept
	return removed
}
