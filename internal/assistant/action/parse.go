package action

import (
	"encoding/json"
	"strings"
)

const (
	multiMarker  = "ACTIONS_JSON:"
	singleMarker = "ACTION_JSON:"
)

type ParseOutcome string

const (
	// NoActions means the reply had no marker, or an empty action list.
	NoActions ParseOutcome = "no_actions"
	Parsed    ParseOutcome = "parsed"
	// Malformed means a marker was present but its payload did not decode. Content is the raw reply.
	Malformed ParseOutcome = "malformed"
)

type ParseResult struct {
	Content string
	Actions []ProposedAction
	Outcome ParseOutcome
}

// Parse extracts proposed actions from a model reply. ACTIONS_JSON (an array) wins over
// ACTION_JSON (one object). Every occurrence of the marker is tried in order and the first
// one followed by a decodable payload is used, so prose that mentions the marker is skipped.
// Code fences around the marker or payload and text after the payload are tolerated; the
// marker span is removed from Content.
func Parse(raw string) ParseResult {
	marker, open := multiMarker, byte('[')
	if !strings.Contains(raw, multiMarker) {
		marker, open = singleMarker, '{'
	}
	found := false
	for from := 0; ; {
		i := strings.Index(raw[from:], marker)
		if i < 0 {
			break
		}
		idx := from + i
		from = idx + len(marker)
		found = true
		if res, ok := parseAt(raw, idx, marker, open); ok {
			return res
		}
	}
	if !found {
		return ParseResult{Content: raw, Outcome: NoActions}
	}
	return malformed(raw)
}

// parseAt decodes the payload after the marker at idx. ok is false when the payload
// does not start with open or does not decode.
func parseAt(raw string, idx int, marker string, open byte) (ParseResult, bool) {
	start := openingFence(raw, idx)
	fenced := start != idx
	pos := skipSpace(raw, idx+len(marker))
	if strings.HasPrefix(raw[pos:], "```") {
		fenced = true
		if nl := strings.IndexByte(raw[pos:], '\n'); nl >= 0 {
			pos += nl + 1
		} else {
			pos += 3
		}
		pos = skipSpace(raw, pos)
	}
	if pos >= len(raw) || raw[pos] != open {
		return ParseResult{}, false
	}

	dec := json.NewDecoder(strings.NewReader(raw[pos:]))
	dec.UseNumber()
	var actions []ProposedAction
	if open == '[' {
		if err := dec.Decode(&actions); err != nil {
			return ParseResult{}, false
		}
	} else {
		var a ProposedAction
		if err := dec.Decode(&a); err != nil {
			return ParseResult{}, false
		}
		actions = []ProposedAction{a}
	}
	end := pos + int(dec.InputOffset())
	// Only a fence this payload opened is closed here.
	if after := skipSpace(raw, end); fenced && strings.HasPrefix(raw[after:], "```") {
		end = after + 3
	}

	content := joinContent(raw[:start], raw[end:])
	if len(actions) == 0 {
		return ParseResult{Content: content, Outcome: NoActions}, true
	}
	return ParseResult{Content: content, Actions: actions, Outcome: Parsed}, true
}

func joinContent(before, after string) string {
	before = strings.TrimSpace(before)
	after = strings.TrimSpace(after)
	switch {
	case before == "":
		return after
	case after == "":
		return before
	}
	return before + "\n" + after
}

func malformed(raw string) ParseResult {
	return ParseResult{Content: raw, Outcome: Malformed}
}

// openingFence moves idx back over a ``` or ```json line that directly precedes the marker.
func openingFence(raw string, idx int) int {
	before := strings.TrimRight(raw[:idx], " \t\r\n")
	for _, fence := range []string{"```json", "```JSON", "```"} {
		if strings.HasSuffix(before, fence) {
			return len(before) - len(fence)
		}
	}
	return idx
}

func skipSpace(s string, i int) int {
	for i < len(s) && strings.IndexByte(" \t\r\n", s[i]) >= 0 {
		i++
	}
	return i
}
