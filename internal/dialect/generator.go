package dialect

import (
	"fmt"
	"io"
	"strings"

	"github.com/egoughnour/schemasync/internal/schema"
)

// Generator renders a whole schema as a CREATE TABLE script.
type Generator struct {
	b *Builder
}

// NewGenerator creates a generator for the named dialect.
func NewGenerator(name string) (*Generator, error) {
	d, err := ForName(name)
	if err != nil {
		return nil, err
	}
	return &Generator{b: NewBuilder(d)}, nil
}

// Generate returns one CREATE TABLE statement per table, in schema order.
func (g *Generator) Generate(s *schema.Schema) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "-- %s schema: %d tables\n\n", g.b.Dialect().Name(), len(s.Tables))
	for i := range s.Tables {
		stmt, err := g.b.CreateTable(&s.Tables[i], s.Tables[i].Name)
		if err != nil {
			return "", err
		}
		sb.WriteString(stmt)
		sb.WriteString(";\n\n")
	}
	return sb.String(), nil
}

// WriteSQL writes the generated script to w.
func (g *Generator) WriteSQL(w io.Writer, s *schema.Schema) error {
	out, err := g.Generate(s)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}
