package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/coedit/internal/ot"
)

// parseOps decodes an argument holding one JSON operation or a JSON array
// of operations.
func parseOps(arg string) ([]ot.Operation, error) {
	s := strings.TrimSpace(arg)
	if strings.HasPrefix(s, "[") {
		var ops []ot.Operation
		if err := json.Unmarshal([]byte(s), &ops); err != nil {
			return nil, fmt.Errorf("parse operations: %w", err)
		}
		return ops, nil
	}
	op, err := ot.Deserialize([]byte(s))
	if err != nil {
		return nil, fmt.Errorf("parse operation: %w", err)
	}
	return []ot.Operation{op}, nil
}

// parseOp decodes exactly one operation.
func parseOp(arg string) (ot.Operation, error) {
	ops, err := parseOps(arg)
	if err != nil {
		return ot.Operation{}, err
	}
	if len(ops) != 1 {
		return ot.Operation{}, fmt.Errorf("expected one operation, got %d", len(ops))
	}
	return ops[0], nil
}
