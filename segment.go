package patchwork

import "strings"

// segment is one atomic piece of a prompt: literal text or an inline
// reference to a registered tool. Exactly one variant is set.
type segment struct {
	text          *string
	toolReference *string
}

func textSegment(text string) segment {
	return segment{text: &text}
}

func toolReferenceSegment(name string) segment {
	return segment{toolReference: &name}
}

// buildPrompt renders the segment list into a single prompt string. It is a
// pure function of its arguments: the same segments always render the same
// output.
//
// Tool references render as an inline marker appended without a separator;
// a text segment that follows one is spaced against the marker like any
// other accumulated output.
// With automatic spacing, a single space is inserted before a text segment
// unless the accumulated output already ends in whitespace or an opening
// bracket, or the segment starts with closing punctuation.
func buildPrompt(segments []segment, explicitSpacing bool) string {
	var sb strings.Builder

	for i, seg := range segments {
		if seg.toolReference != nil {
			sb.WriteString("<mcp_tool>")
			sb.WriteString(*seg.toolReference)
			sb.WriteString("</mcp_tool>")
			continue
		}

		text := *seg.text
		if !explicitSpacing && i > 0 && sb.Len() > 0 {
			if needsSpace(sb.String(), text) {
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(text)
	}

	return sb.String()
}

func needsSpace(accumulated, next string) bool {
	last := accumulated[len(accumulated)-1]
	switch last {
	case ' ', '\t', '\n', '(', '[', '{':
		return false
	}
	if next != "" {
		switch next[0] {
		case '.', ',', ':', ';', '!', '?':
			return false
		}
	}
	return true
}
