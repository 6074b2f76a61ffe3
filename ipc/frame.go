package ipc

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Frame is a repaired fragment: its objects in arrival order, keyed by field name.
// A JSON null element is kept as a nil object.
type Frame []map[string]json.RawMessage

// Normalize repairs one raw fragment into a complete JSON array and parses it.
//
// Surrounding whitespace is ignored. An empty fragment returns (nil, nil) and
// must be discarded by the caller. Otherwise one leading comma is stripped and
// the opening and closing brackets are supplied when missing. A fragment that
// still fails to parse, or contains a non-object element, yields a
// FrameErrorParse. Fragments are never buffered across calls, so an object
// torn between two fragments fails closed here.
func Normalize(fragment string) (Frame, error) {
	text := strings.TrimSpace(fragment)
	if text == "" {
		return nil, nil
	}

	if strings.HasPrefix(text, ",") {
		text = strings.TrimLeft(text[1:], " \t\r\n")
	}
	if !strings.HasPrefix(text, "[") {
		text = "[" + text
	}
	if !strings.HasSuffix(text, "]") {
		text += "]"
	}

	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(text), &elements); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorParse,
			Msg:  "fragment is not a valid JSON array after repair",
			Err:  err,
		}
	}

	frame := make(Frame, 0, len(elements))
	for i, raw := range elements {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(raw, &obj); err != nil {
			return nil, &FrameError{
				Kind: FrameErrorParse,
				Msg:  fmt.Sprintf("frame element %d is not an object", i),
				Err:  err,
			}
		}
		frame = append(frame, obj)
	}
	return frame, nil
}
