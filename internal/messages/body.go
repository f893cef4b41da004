package messages

import (
	"errors"
	"strconv"

	"github.com/trymoose/imessage-exporter/internal/typedstream"
)

// attachmentChar marks an attachment position inside legacy body text;
// appChar marks an app-message balloon.
const (
	attachmentChar = '￼'
	appChar        = '�'
)

// Attribute keys Messages writes on body ranges. Keys that only assist the
// renderer carry no information worth a range of their own.
const (
	keyFileTransfer     = "__kIMFileTransferGUIDAttributeName"
	keyMention          = "__kIMMentionConfirmedMention"
	keyLink             = "__kIMLinkAttributeName"
	keyTextEffect       = "__kIMTextEffectAttributeName"
	keyMessagePart      = "__kIMMessagePartAttributeName"
	keyWritingDirection = "__kIMBaseWritingDirectionAttributeName"
)

var errMalformedBody = errors.New("attributed body structure not recognized")

// animationName maps the text-effect identifier to its menu name, in menu
// order.
func animationName(id int64) string {
	switch id {
	case 5:
		return "big"
	case 11:
		return "small"
	case 9:
		return "shake"
	case 8:
		return "nod"
	case 12:
		return "explode"
	case 4:
		return "ripple"
	case 6:
		return "bloom"
	case 10:
		return "jitter"
	}
	return "effect-" + strconv.FormatInt(id, 10)
}

// bodyText returns the body string when the archive's first component is the
// expected text object.
func bodyText(components []typedstream.Component) (string, bool) {
	if len(components) == 0 {
		return "", false
	}
	return components[0].AsString()
}

// charIndexTable aligns the archive's character offsets with Go's byte
// offsets: entry i is the byte index where character i starts.
func charIndexTable(s string) []int {
	table := make([]int, 0, len(s))
	for i := range s {
		table = append(table, i)
	}
	return table
}

// byteOffset maps a character position to a byte offset, clamping past-end
// positions to the end of the text.
func byteOffset(table []int, text string, pos int) int {
	if pos < 0 {
		return 0
	}
	if pos >= len(table) {
		return len(text)
	}
	return table[pos]
}

// rangePair reads a body range record: a data component holding the run
// counter and the run length in characters.
func rangePair(c typedstream.Component) (item int64, length uint64, ok bool) {
	if c.Kind != typedstream.ComponentData || len(c.Values) != 2 {
		return 0, 0, false
	}
	if c.Values[0].Kind != typedstream.ValueSignedInt || c.Values[1].Kind != typedstream.ValueUnsignedInt {
		return 0, 0, false
	}
	return c.Values[0].Int, c.Values[1].Uint, true
}

// dictPairCount reads the entry count of a range's attribute dictionary and
// returns the number of key/value components that follow it.
func dictPairCount(c typedstream.Component) (int, bool) {
	if c.Kind != typedstream.ComponentObject || c.Class.Name != "NSDictionary" {
		return 0, false
	}
	n, ok := c.AsInt()
	if !ok || n < 0 {
		return 0, false
	}
	return int(n * 2), true
}

// buildRanges walks the components after the body text and produces the
// attribute ranges. Each run is a range record followed by its attribute
// dictionary and that dictionary's key/value objects.
//
// The run counter restarts at low values when one attribute set was split
// across consecutive records, so only counters above one advance the range
// start; this is how overlapping attribute kinds end up sharing a span.
func buildRanges(text string, components []typedstream.Component) ([]AttributeRange, error) {
	table := charIndexTable(text)

	var out []AttributeRange
	idx := 1
	currentStart, currentEnd := 0, 0

	for idx < len(components) {
		if item, length, ok := rangePair(components[idx]); ok {
			if item > 1 {
				currentStart = currentEnd
			}
			currentEnd += int(length)
		}
		idx++
		if idx >= len(components) {
			return nil, errMalformedBody
		}

		pairs, ok := dictPairCount(components[idx])
		if !ok {
			return nil, errMalformedBody
		}
		idx++
		if idx+pairs > len(components) {
			return nil, errMalformedBody
		}

		start := byteOffset(table, text, currentStart)
		end := byteOffset(table, text, currentEnd)
		out = append(out, rangesFromAttributes(components[idx:idx+pairs], start, end)...)
		idx += pairs
	}
	return out, nil
}

// rangesFromAttributes emits one range per recognized attribute key in a
// run's dictionary. Runs whose attributes are all bookkeeping produce no
// ranges at all.
func rangesFromAttributes(pairs []typedstream.Component, start, end int) []AttributeRange {
	var out []AttributeRange
	for i := 0; i+1 < len(pairs); i += 2 {
		key, ok := pairs[i].AsString()
		if !ok {
			continue
		}
		value := pairs[i+1]

		r := AttributeRange{Start: start, End: end}
		switch key {
		case keyFileTransfer:
			r.Kind = RangeAttachment
			r.Value, _ = value.FirstString()
		case keyMention:
			r.Kind = RangeMention
			r.Value, _ = value.AsString()
		case keyLink:
			r.Kind = RangeLink
			r.Value, _ = value.FirstString()
		case keyTextEffect:
			r.Kind = RangeEffect
			id, _ := value.AsInt()
			r.Value = animationName(id)
		case keyMessagePart, keyWritingDirection:
			continue
		default:
			r.Kind = RangeCustom
			r.Value = key
		}
		out = append(out, r)
	}
	return out
}

// legacyRanges recovers attachment positions from the replacement characters
// embedded in plain body text. Nothing else survives the legacy path.
func legacyRanges(text string) []AttributeRange {
	var out []AttributeRange
	for i, r := range text {
		if r == attachmentChar {
			out = append(out, AttributeRange{
				Start: i,
				End:   i + len(string(attachmentChar)),
				Kind:  RangeAttachment,
			})
		}
	}
	return out
}
