package messages

import (
	"fmt"
	"sort"
	"strconv"

	"howett.net/plist"

	"github.com/trymoose/imessage-exporter/internal/typedstream"
)

// message_summary_info is a binary property list with three sections: "otr"
// keys the parts that still carry their original text, "ec" maps edited part
// indexes to their revision arrays, and "rp" lists retracted (unsent) parts.
type editSummary struct {
	Original map[string]any         `plist:"otr"`
	Edits    map[string][]editEvent `plist:"ec"`
	Retracts []int                  `plist:"rp"`
}

type editEvent struct {
	Date float64 `plist:"d"`
	Text []byte  `plist:"t"`
	GUID string  `plist:"bcg"`
}

// ParseEditHistory decodes a message_summary_info blob into per-part edit
// state. Revision text travels as a nested typedstream archive per event.
func ParseEditHistory(data []byte) (*EditHistory, error) {
	var summary editSummary
	if _, err := plist.Unmarshal(data, &summary); err != nil {
		return nil, fmt.Errorf("failed to parse message summary: %w", err)
	}

	parts := map[int]*PartEdit{}
	at := func(idx int) *PartEdit {
		p, ok := parts[idx]
		if !ok {
			p = &PartEdit{Part: idx, Status: EditOriginal}
			parts[idx] = p
		}
		return p
	}

	for key := range summary.Original {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		at(idx)
	}

	for key, events := range summary.Edits {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		p := at(idx)
		p.Status = EditEdited
		for _, e := range events {
			p.History = append(p.History, EditEvent{
				Date: fromAppleSeconds(e.Date),
				Text: revisionText(e.Text),
				GUID: e.GUID,
			})
		}
	}

	for _, idx := range summary.Retracts {
		at(idx).Status = EditUnsent
	}

	if len(parts) == 0 {
		return nil, nil
	}

	h := &EditHistory{Parts: make([]PartEdit, 0, len(parts))}
	for _, p := range parts {
		h.Parts = append(h.Parts, *p)
	}
	sort.Slice(h.Parts, func(i, j int) bool { return h.Parts[i].Part < h.Parts[j].Part })
	return h, nil
}

// revisionText recovers the text of one revision, falling back to the legacy
// extractor when the archive does not decode. An unrecoverable revision is
// empty rather than an error; the surrounding message already exists.
func revisionText(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if components, err := typedstream.Decode(data); err == nil {
		if text, ok := bodyText(components); ok {
			return text
		}
	}
	text, err := typedstream.ExtractText(data)
	if err != nil {
		return ""
	}
	return text
}
