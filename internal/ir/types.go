package ir

import (
	"fmt"
	"strings"
)

// TypeTag is the on-chain column type code.
// The numeric values are part of the contract ABI and must not be reordered.
type TypeTag uint8

const (
	TagInteger TypeTag = iota
	TagFloat
	TagText
	TagBool
	TagAddress
	TagBlob
)

// AllTypeTags lists every tag in code order.
var AllTypeTags = []TypeTag{TagInteger, TagFloat, TagText, TagBool, TagAddress, TagBlob}

var tagNames = [...]string{"INTEGER", "FLOAT", "TEXT", "BOOL", "ADDRESS", "BLOB"}

// String returns the SQL keyword for the tag.
func (t TypeTag) String() string {
	if !t.Valid() {
		return fmt.Sprintf("TypeTag(%d)", uint8(t))
	}
	return tagNames[t]
}

// Valid reports whether t is one of the six known tags.
func (t TypeTag) Valid() bool {
	return int(t) < len(tagNames)
}

// ParseTypeTag maps a column type keyword to its tag.
// Matching is case-insensitive and accepts exactly the six domain keywords.
func ParseTypeTag(keyword string) (TypeTag, error) {
	upper := strings.ToUpper(strings.TrimSpace(keyword))
	for i, name := range tagNames {
		if name == upper {
			return TypeTag(i), nil
		}
	}
	return 0, fmt.Errorf("unknown column type %q", keyword)
}

// Bookkeeping column constants.
const (
	// BookkeepingPrefix marks identifiers owned by seiql. User SQL containing
	// it is rejected before parsing.
	BookkeepingPrefix = "sei_caret_"

	// BookkeepingColumn holds the on-chain row index of each mirror row.
	BookkeepingColumn = BookkeepingPrefix + "onchain_index"

	// PendingRowIndex is written by INSERT until the chain reports the
	// committed row index. Value row i of one statement gets
	// PendingIndex(i), so every pending row names its statement position.
	PendingRowIndex int64 = -1
)

// PendingIndex returns the sentinel for value row i of an INSERT.
func PendingIndex(i int) int64 {
	return PendingRowIndex - int64(i)
}

// IsBookkeeping reports whether name is reserved for internal use.
func IsBookkeeping(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), BookkeepingPrefix)
}

// LogicalDatabase is a named database owned by an identity and bound to an
// on-chain database contract.
type LogicalDatabase struct {
	Owner   Address `json:"owner"`
	Name    string  `json:"name"`
	Address Address `json:"address"`
}

// ColumnDefinition is a live column of an on-chain table.
// Index is the stable handle used by the table contract.
type ColumnDefinition struct {
	Name  string  `json:"name"`
	Tag   TypeTag `json:"tag"`
	Index uint64  `json:"index"`
}

// Cell is one encoded value of a row.
type Cell struct {
	ColumnIndex uint64 `json:"column_index"`
	Data        []byte `json:"data"`
}

// Row is an on-chain row. Columns without a cell read as NULL.
type Row struct {
	Index uint64 `json:"index"`
	Cells []Cell `json:"cells"`
}

// Cell returns the data stored for columnIndex.
func (r Row) Cell(columnIndex uint64) ([]byte, bool) {
	for _, c := range r.Cells {
		if c.ColumnIndex == columnIndex {
			return c.Data, true
		}
	}
	return nil, false
}

// TypeMapping records one domain type keyword substituted during augmentation.
type TypeMapping struct {
	Original     TypeTag `json:"original"`
	Canonical    string  `json:"canonical"`
	Offset       int     `json:"offset"`        // position in the substituted text
	SourceOffset int     `json:"source_offset"` // position in the caller's text
}

// CanonicalType returns the generic SQL type that stands in for a domain
// type in the mirror. Tags without a substitute map to their own keyword.
func CanonicalType(t TypeTag) string {
	switch t {
	case TagAddress:
		return "TEXT"
	case TagBool:
		return "INTEGER"
	case TagFloat:
		return "NUMERIC"
	default:
		return t.String()
	}
}
