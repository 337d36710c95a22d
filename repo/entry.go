// Package repo loads the immutable variable table that gives meaning to
// addresses observed on the bus: width, semantic kind, optional
// forward/reverse arithmetic and optional enumeration. It is the single
// source of truth the frame codec consults for every decode and encode.
package repo

import "github.com/ehsgw/gateway/expr"

// Kind is the wire width and semantic class of a variable.
type Kind uint8

const (
	_      Kind = iota
	U8          // unsigned, 1 octet
	I16         // signed, 2 octets, big-endian
	I32         // signed, 4 octets, big-endian
	STRING      // printable-text payload with an explicit length preamble
	ENUM        // same wire width as the underlying numeric kind, with a label map
)

// String names the kind, mainly for log output.
func (k Kind) String() string {
	switch k {
	case U8:
		return "U8"
	case I16:
		return "I16"
	case I32:
		return "I32"
	case STRING:
		return "STRING"
	case ENUM:
		return "ENUM"
	default:
		return "UNKNOWN"
	}
}

// Width returns the on-wire payload size in octets for U8, I16 and I32.
// It panics for STRING, whose width is carried in-band by a length
// preamble instead of being fixed, and for ENUM, whose width is per entry
// (see Entry.UnderlyingWidth).
func (k Kind) Width() int {
	switch k {
	case U8:
		return 1
	case I16:
		return 2
	case I32:
		return 4
	default:
		panic("repo: Width has no fixed size for " + k.String())
	}
}

// Entry is one row of the repository: the meaning of a single address.
// Entries are immutable once returned by Load; nothing in this package
// mutates an Entry after construction.
type Entry struct {
	Name    string
	Address uint16
	Kind    Kind
	Unit    string

	// ForwardExpr/ReverseExpr hold the original declarative text for
	// display; Forward/Reverse hold the compiled program evaluated by
	// the frame codec. Both are nil when the entry has no conversion,
	// in which case the raw integer is used directly.
	ForwardExpr string
	ReverseExpr string
	Forward     *expr.Program
	Reverse     *expr.Program

	// EnumMap holds the id -> label mapping, non-nil only for Kind ==
	// ENUM. EnumRev is its inverse, built once at load time.
	EnumMap map[int]string
	EnumRev map[string]int

	// enumWidth carries the wire width for ENUM entries, since ENUM
	// itself names no fixed size.
	enumWidth int

	Writable bool
}

// Label returns the enum label for id and whether it was found.
func (e *Entry) Label(id int) (string, bool) {
	s, ok := e.EnumMap[id]
	return s, ok
}

// ID returns the enum id for label and whether it was found.
func (e *Entry) ID(label string) (int, bool) {
	id, ok := e.EnumRev[label]
	return id, ok
}

// UnderlyingWidth returns the wire width used for an ENUM entry, which
// shares the width of an ordinary numeric kind.
func (e *Entry) UnderlyingWidth() int {
	if e.Kind == ENUM {
		return e.enumWidth
	}
	return e.Kind.Width()
}

// enumWidth is resolved at load time from the document's explicit
// "width" field for ENUM entries (see docEntry.Width in repo.go).
