package ipc

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNormalize_Repairs(t *testing.T) {
	tests := []struct {
		name      string
		fragment  string
		wantCount int
	}{
		{name: "complete array", fragment: `[{"textChunk":{"text":"a"}}]`, wantCount: 1},
		{name: "array start", fragment: `[{"textChunk":{"text":"a"}}`, wantCount: 1},
		{name: "continuation", fragment: `,{"textChunk":{"text":"b"}}]`, wantCount: 1},
		{name: "middle", fragment: `,{"textChunk":{"text":"b"}},{"codeChunk":{"code":"c"}}`, wantCount: 2},
		{name: "bare object", fragment: `{"metadata":{"rpcGlobalId":1}}`, wantCount: 1},
		{name: "closing bracket only", fragment: `]`, wantCount: 0},
		{name: "empty array", fragment: `[]`, wantCount: 0},
		{name: "surrounding whitespace", fragment: "  \n,{\"textChunk\":{\"text\":\"x\"}}]\r\n", wantCount: 1},
		{name: "comma then whitespace", fragment: ", {\"textChunk\":{\"text\":\"x\"}}", wantCount: 1},
		{name: "null element", fragment: `[null]`, wantCount: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Normalize(tt.fragment)
			if err != nil {
				t.Fatalf("Normalize(%q) error: %v", tt.fragment, err)
			}
			if frame == nil {
				t.Fatalf("Normalize(%q) returned nil frame", tt.fragment)
			}
			if len(frame) != tt.wantCount {
				t.Errorf("len(frame) = %d, want %d", len(frame), tt.wantCount)
			}
		})
	}
}

func TestNormalize_EmptyIsDiscarded(t *testing.T) {
	for _, fragment := range []string{"", " ", "\n\t "} {
		frame, err := Normalize(fragment)
		if err != nil {
			t.Errorf("Normalize(%q) error: %v", fragment, err)
		}
		if frame != nil {
			t.Errorf("Normalize(%q) = %v, want nil", fragment, frame)
		}
	}
}

func TestNormalize_PreservesOrder(t *testing.T) {
	frame, err := Normalize(`,{"textChunk":{"text":"1"}},{"textChunk":{"text":"2"}},{"textChunk":{"text":"3"}}`)
	if err != nil {
		t.Fatalf("Normalize error: %v", err)
	}

	for i, want := range []string{"1", "2", "3"} {
		var p textChunkPayload
		if err := json.Unmarshal(frame[i][KeyTextChunk], &p); err != nil {
			t.Fatalf("unmarshal element %d: %v", i, err)
		}
		if p.Text != want {
			t.Errorf("element %d text = %q, want %q", i, p.Text, want)
		}
	}
}

func TestNormalize_ParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		fragment string
	}{
		{name: "object torn at end", fragment: `[{"textChunk":{"text":"hel`},
		{name: "object torn at start", fragment: `lo"}}]`},
		{name: "double comma", fragment: `,,{"textChunk":{"text":"a"}}`},
		{name: "number element", fragment: `[1]`},
		{name: "string element", fragment: `["text"]`},
		{name: "nested array element", fragment: `[[{"textChunk":{"text":"a"}}]]`},
		{name: "garbage", fragment: `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Normalize(tt.fragment)
			if err == nil {
				t.Fatalf("Normalize(%q) = %v, want error", tt.fragment, frame)
			}

			var frameErr *FrameError
			if !errors.As(err, &frameErr) {
				t.Fatalf("expected *FrameError, got %T", err)
			}
			if frameErr.Kind != FrameErrorParse {
				t.Errorf("Kind = %v, want %v", frameErr.Kind, FrameErrorParse)
			}
			if !IsParseError(err) {
				t.Error("IsParseError should report true")
			}
			if !IsFatalFrameError(err) {
				t.Error("parse errors are fatal")
			}
		})
	}
}

func TestFrameError_ErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      *FrameError
		contains string
	}{
		{
			name:     "without underlying error",
			err:      &FrameError{Kind: FrameErrorUnknownKind, Msg: "unrecognized"},
			contains: "unrecognized",
		},
		{
			name: "with underlying error",
			err: &FrameError{
				Kind: FrameErrorParse,
				Msg:  "bad fragment",
				Err:  errors.New("unexpected end of JSON input"),
			},
			contains: "bad fragment: unexpected end of JSON input",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if msg := tt.err.Error(); !strings.Contains(msg, tt.contains) {
				t.Errorf("error message %q does not contain %q", msg, tt.contains)
			}
		})
	}
}

func TestFrameErrorKind_String(t *testing.T) {
	tests := []struct {
		kind FrameErrorKind
		want string
	}{
		{FrameErrorPartial, "partial"},
		{FrameErrorTooLarge, "too_large"},
		{FrameErrorDecode, "decode"},
		{FrameErrorParse, "parse"},
		{FrameErrorUnknownKind, "unknown_kind"},
		{FrameErrorKind(42), "FrameErrorKind(42)"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestIsFatalFrameError_NonFrameError(t *testing.T) {
	if IsFatalFrameError(errors.New("regular error")) {
		t.Error("regular errors should not be fatal frame errors")
	}
	if IsFatalFrameError(nil) {
		t.Error("nil should not be a fatal frame error")
	}
	if IsParseError(nil) || IsUnknownKindError(nil) {
		t.Error("nil should not match any frame error kind")
	}
}
