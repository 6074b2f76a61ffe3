package ipc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pithecene-io/turnstream/types"
)

// Wire keys of the recognized result shapes, in precedence order.
const (
	KeyMetadata  = "metadata"
	KeyTextChunk = "textChunk"
	KeyCodeChunk = "codeChunk"
	KeyError     = "error"
)

type textChunkPayload struct {
	Text string `json:"text"`
}

type codeChunkPayload struct {
	Code string `json:"code"`
}

type citationPayload struct {
	StartIndex int    `json:"startIndex"`
	EndIndex   int    `json:"endIndex"`
	URL        string `json:"url"`
}

type attributionPayload struct {
	Action    string            `json:"action"`
	Citations []citationPayload `json:"citations"`
}

type metadataPayload struct {
	RPCGlobalID flexInt64           `json:"rpcGlobalId"`
	Attribution *attributionPayload `json:"attribution"`
}

// flexInt64 accepts a JSON number or a decimal string, the proto3 JSON form of int64.
// An absent or null value decodes to zero.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}
	s := string(data)
	if strings.HasPrefix(s, `"`) {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("rpcGlobalId %s is not an int64", string(data))
	}
	*f = flexInt64(v)
	return nil
}

// Classify turns one parsed object into a ResultItem.
//
// Keys are checked in the order metadata, textChunk, codeChunk, error; the
// first present key decides the shape. A malformed payload under a known key
// is a FrameErrorParse. An object with none of the keys is a
// FrameErrorUnknownKind and is never skipped.
func Classify(obj map[string]json.RawMessage) (types.ResultItem, error) {
	if raw, ok := obj[KeyMetadata]; ok {
		return classifyMetadata(raw)
	}
	if raw, ok := obj[KeyTextChunk]; ok {
		var p textChunkPayload
		if err := unmarshalPayload(KeyTextChunk, raw, &p); err != nil {
			return nil, err
		}
		return types.TextChunk{Text: p.Text}, nil
	}
	if raw, ok := obj[KeyCodeChunk]; ok {
		var p codeChunkPayload
		if err := unmarshalPayload(KeyCodeChunk, raw, &p); err != nil {
			return nil, err
		}
		return types.CodeChunk{Code: p.Code}, nil
	}
	if raw, ok := obj[KeyError]; ok {
		return types.ErrorItem{Message: errorMessage(raw)}, nil
	}

	return nil, &FrameError{
		Kind: FrameErrorUnknownKind,
		Msg:  fmt.Sprintf("unrecognized result object with keys %v", sortedKeys(obj)),
	}
}

// DecodeFrame classifies every object of a frame in order, stopping at the first error.
func DecodeFrame(frame Frame) ([]types.ResultItem, error) {
	items := make([]types.ResultItem, 0, len(frame))
	for _, obj := range frame {
		item, err := Classify(obj)
		if err != nil {
			return items, err
		}
		items = append(items, item)
	}
	return items, nil
}

func classifyMetadata(raw json.RawMessage) (types.ResultItem, error) {
	var p metadataPayload
	if err := unmarshalPayload(KeyMetadata, raw, &p); err != nil {
		return nil, err
	}

	item := types.MetadataItem{RPCGlobalID: int64(p.RPCGlobalID)}
	if p.Attribution != nil {
		action, err := types.ParseAttributionAction(p.Attribution.Action)
		if err != nil {
			return nil, &FrameError{
				Kind: FrameErrorParse,
				Msg:  "malformed metadata payload",
				Err:  err,
			}
		}
		entry := &types.AttributionEntry{Action: action}
		if len(p.Attribution.Citations) > 0 {
			entry.Citations = make([]types.Citation, len(p.Attribution.Citations))
			for i, c := range p.Attribution.Citations {
				entry.Citations[i] = types.Citation{
					StartIndex: c.StartIndex,
					EndIndex:   c.EndIndex,
					URL:        c.URL,
				}
			}
		}
		item.Attribution = entry
	}
	return item, nil
}

// unmarshalPayload decodes the value of a known key. The value must be an object.
func unmarshalPayload(key string, raw json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return &FrameError{
			Kind: FrameErrorParse,
			Msg:  fmt.Sprintf("malformed %s payload: expected object, got %s", key, abbreviate(trimmed)),
		}
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return &FrameError{
			Kind: FrameErrorParse,
			Msg:  fmt.Sprintf("malformed %s payload", key),
			Err:  err,
		}
	}
	return nil
}

// errorMessage extracts a message from an error value: a string, an object's
// "message" field, or the raw JSON text.
func errorMessage(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Message *string `json:"message"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Message != nil {
		return *obj.Message
	}
	return string(bytes.TrimSpace(raw))
}

func sortedKeys(obj map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func abbreviate(b []byte) string {
	const limit = 32
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}
