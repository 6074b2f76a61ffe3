package types

// ContractVersion is the version of the turn_completed notification contract.
const ContractVersion = Version

// ResultKind is the discriminant of a ResultItem.
type ResultKind string

// Result kinds, one per recognized wire shape.
const (
	ResultKindTextChunk ResultKind = "text_chunk"
	ResultKindCodeChunk ResultKind = "code_chunk"
	ResultKindMetadata  ResultKind = "metadata"
	ResultKindError     ResultKind = "error"
)

// IsTerminal returns true if an item of this kind ends the turn.
func (k ResultKind) IsTerminal() bool {
	return k == ResultKindError
}

// IsContent returns true if an item of this kind contributes to the explanation.
func (k ResultKind) IsContent() bool {
	return k == ResultKindTextChunk || k == ResultKindCodeChunk
}

// ResultItem is one classified object from a parsed frame.
// The set of implementations is closed: TextChunk, CodeChunk, MetadataItem, ErrorItem.
type ResultItem interface {
	Kind() ResultKind
	resultItem()
}

// TextChunk carries prose content.
type TextChunk struct {
	Text string
}

// CodeChunk carries code content. Consecutive code chunks share one fenced region.
type CodeChunk struct {
	Code string
}

// MetadataItem carries the turn correlation id and at most one attribution entry.
type MetadataItem struct {
	// RPCGlobalID is the server-assigned correlation id (last write wins).
	RPCGlobalID int64
	// Attribution is nil when the metadata object carried none.
	Attribution *AttributionEntry
}

// ErrorItem is an explicit server error. Always terminal.
type ErrorItem struct {
	Message string
}

func (TextChunk) Kind() ResultKind    { return ResultKindTextChunk }
func (CodeChunk) Kind() ResultKind    { return ResultKindCodeChunk }
func (MetadataItem) Kind() ResultKind { return ResultKindMetadata }
func (ErrorItem) Kind() ResultKind    { return ResultKindError }

func (TextChunk) resultItem()    {}
func (CodeChunk) resultItem()    {}
func (MetadataItem) resultItem() {}
func (ErrorItem) resultItem()    {}
