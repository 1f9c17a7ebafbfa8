// Package config loads collection parameters from CUE files.
//
// A collection file declares a single top-level collection struct:
//
//	collection: {
//		name:      "Shiden34"
//		symbol:    "SH34"
//		baseUri:   "ipfs://tokenUriPrefix/"
//		maxSupply: 888
//		price:     1
//	}
//
// The struct is unified with the embedded #Collection schema, so type and
// range violations are reported with their file position.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/shiden34/internal/ir"
)

//go:embed schema.cue
var schemaSource string

// Collection holds the parameters of the constructor call.
type Collection struct {
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	BaseURI       string `json:"baseUri"`
	MaxSupply     int64  `json:"maxSupply"`
	Price         int64  `json:"price"`
	MaxMintAmount int64  `json:"maxMintAmount,omitempty"` // 0 = no cap
}

// Args returns the collection as arguments of the "new" method.
func (c Collection) Args() ir.IRObject {
	args := ir.IRObject{
		"name":      ir.IRString(c.Name),
		"symbol":    ir.IRString(c.Symbol),
		"baseUri":   ir.IRString(c.BaseURI),
		"maxSupply": ir.IRInt(c.MaxSupply),
		"price":     ir.IRInt(c.Price),
	}
	if c.MaxMintAmount > 0 {
		args["maxMintAmount"] = ir.IRInt(c.MaxMintAmount)
	}
	return args
}

// Error is an invalid collection file.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and validates a collection file.
func Load(path string) (Collection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Collection{}, fmt.Errorf("read collection config: %w", err)
	}
	return Parse(path, data)
}

// Parse validates collection source. filename is used in positions only.
func Parse(filename string, data []byte) (Collection, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return Collection{}, fmt.Errorf("compile collection schema: %w", err)
	}

	v := ctx.CompileBytes(data, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return Collection{}, formatCUEError(err)
	}

	col := v.LookupPath(cue.ParsePath("collection"))
	if !col.Exists() {
		return Collection{}, &Error{
			Field:   "collection",
			Message: "collection is required",
			Pos:     v.Pos(),
		}
	}

	unified := schema.LookupPath(cue.ParsePath("#Collection")).Unify(col)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return Collection{}, formatCUEError(err)
	}

	var c Collection
	if err := unified.Decode(&c); err != nil {
		return Collection{}, formatCUEError(err)
	}
	return c, nil
}

// formatCUEError keeps the first error and its position.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
