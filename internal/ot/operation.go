package ot

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Kind distinguishes operation variants.
type Kind string

const (
	// KindInsert splices Content at Position.
	KindInsert Kind = "insert"
	// KindDelete removes Length characters starting at Position.
	KindDelete Kind = "delete"
	// KindRetain leaves the text unchanged.
	KindRetain Kind = "retain"
)

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindInsert, KindDelete, KindRetain:
		return true
	}
	return false
}

// Operation is the atomic unit of change. Operations are values: every
// transform returns new operations and never mutates its inputs.
type Operation struct {
	Kind     Kind
	Position int
	Content  string // insert only
	Length   int    // delete and retain

	// Deleted holds the text removed by a delete when it was captured at
	// authoring time (see CaptureDelete). It makes Invert lossless.
	Deleted string
}

// Insert returns an insert of s at pos.
func Insert(pos int, s string) Operation {
	return Operation{Kind: KindInsert, Position: pos, Content: s}
}

// Delete returns a delete of n characters at pos.
func Delete(pos, n int) Operation {
	return Operation{Kind: KindDelete, Position: pos, Length: n}
}

// Retain returns a retain of n characters.
func Retain(n int) Operation {
	return Operation{Kind: KindRetain, Length: n}
}

// Size returns the number of characters the operation inserts or covers.
func (o Operation) Size() int {
	if o.Kind == KindInsert {
		return utf8.RuneCountInString(o.Content)
	}
	return o.Length
}

// End returns the first position after the range covered by a delete or
// retain, or after the inserted content for an insert.
func (o Operation) End() int {
	return o.Position + o.Size()
}

// IsNoop reports whether applying the operation can never change a text.
func (o Operation) IsNoop() bool {
	switch o.Kind {
	case KindInsert:
		return o.Content == ""
	case KindDelete:
		return o.Length == 0
	}
	return true
}

// Validate checks the structural invariants of the operation.
func (o Operation) Validate() error {
	if !o.Kind.Valid() {
		return fmt.Errorf("unknown operation type %q", o.Kind)
	}
	if o.Position < 0 {
		return fmt.Errorf("%s: negative position %d", o.Kind, o.Position)
	}
	if o.Length < 0 {
		return fmt.Errorf("%s: negative length %d", o.Kind, o.Length)
	}
	if o.Kind != KindInsert && o.Content != "" {
		return fmt.Errorf("%s: content is only allowed on insert", o.Kind)
	}
	if o.Kind != KindDelete && o.Deleted != "" {
		return fmt.Errorf("%s: deleted text is only allowed on delete", o.Kind)
	}
	return nil
}

func (o Operation) String() string {
	switch o.Kind {
	case KindInsert:
		return fmt.Sprintf("insert(%d,%q)", o.Position, o.Content)
	case KindDelete:
		return fmt.Sprintf("delete(%d,%d)", o.Position, o.Length)
	case KindRetain:
		return fmt.Sprintf("retain(%d)", o.Length)
	}
	return fmt.Sprintf("%s(?)", o.Kind)
}

// wireOperation is the JSON form: {type, position?, content?, length?}.
type wireOperation struct {
	Type     Kind    `json:"type"`
	Position *int    `json:"position,omitempty"`
	Content  *string `json:"content,omitempty"`
	Length   *int    `json:"length,omitempty"`
	Deleted  string  `json:"deleted,omitempty"`
}

// MarshalJSON emits only the fields that belong to the operation's kind.
func (o Operation) MarshalJSON() ([]byte, error) {
	w := wireOperation{Type: o.Kind}
	switch o.Kind {
	case KindInsert:
		pos, content := o.Position, o.Content
		w.Position, w.Content = &pos, &content
	case KindDelete:
		pos, n := o.Position, o.Length
		w.Position, w.Length = &pos, &n
		w.Deleted = o.Deleted
	case KindRetain:
		n := o.Length
		w.Length = &n
	default:
		return nil, fmt.Errorf("marshal operation: unknown type %q", o.Kind)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form and rejects invalid operations.
func (o *Operation) UnmarshalJSON(data []byte) error {
	var w wireOperation
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	op := Operation{Kind: w.Type, Deleted: w.Deleted}
	if w.Position != nil {
		op.Position = *w.Position
	}
	if w.Length != nil {
		op.Length = *w.Length
	}
	if w.Content != nil {
		op.Content = *w.Content
	}
	if err := op.Validate(); err != nil {
		return fmt.Errorf("unmarshal operation: %w", err)
	}
	*o = op
	return nil
}

// Serialize encodes an operation to its JSON wire form.
func Serialize(op Operation) ([]byte, error) {
	return json.Marshal(op)
}

// Deserialize decodes an operation from its JSON wire form.
func Deserialize(data []byte) (Operation, error) {
	var op Operation
	if err := json.Unmarshal(data, &op); err != nil {
		return Operation{}, err
	}
	return op, nil
}
