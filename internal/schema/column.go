package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// Columns is an ordered column list. In documents it may be written either as
// a list of column objects or as a mapping of name to "TYPE CONSTRAINTS";
// mapping order is kept as declaration order.
type Columns []Column

type columnBody struct {
	Type        string `json:"type" yaml:"type"`
	Constraints string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// UnmarshalYAML accepts both the list and the mapping form.
func (c *Columns) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.SequenceNode:
		return value.Decode((*[]Column)(c))
	case yaml.MappingNode:
		cols := make(Columns, 0, len(value.Content)/2)
		for i := 0; i+1 < len(value.Content); i += 2 {
			name := value.Content[i].Value
			body := value.Content[i+1]
			switch body.Kind {
			case yaml.ScalarNode:
				cols = append(cols, ParseColumn(name, body.Value))
			case yaml.MappingNode:
				var b columnBody
				if err := body.Decode(&b); err != nil {
					return fmt.Errorf("column %s: %w", name, err)
				}
				cols = append(cols, Column{Name: name, Type: b.Type, Constraints: b.Constraints})
			default:
				return fmt.Errorf("column %s: expected a definition string or mapping (line %d)", name, body.Line)
			}
		}
		*c = cols
		return nil
	default:
		return fmt.Errorf("columns must be a list or a mapping (line %d)", value.Line)
	}
}

// UnmarshalJSON accepts both the list and the object form. Object member
// order is read from the token stream so declaration order survives.
func (c *Columns) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return json.Unmarshal(data, (*[]Column)(c))
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return err
	}
	var cols Columns
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected column key %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		var def string
		if err := json.Unmarshal(raw, &def); err == nil {
			cols = append(cols, ParseColumn(name, def))
			continue
		}
		var b columnBody
		if err := json.Unmarshal(raw, &b); err != nil {
			return fmt.Errorf("column %s: %w", name, err)
		}
		cols = append(cols, Column{Name: name, Type: b.Type, Constraints: b.Constraints})
	}
	*c = cols
	return nil
}

// ParseColumn splits a compact definition such as "TEXT UNIQUE NOT NULL"
// into the abstract type and the constraint string.
func ParseColumn(name, definition string) Column {
	toks := tokenize(definition)
	col := Column{Name: strings.TrimSpace(name)}
	if len(toks) == 0 {
		return col
	}
	col.Type = toks[0]
	col.Constraints = strings.Join(toks[1:], " ")
	return col
}

// Definition renders the column back to its compact form.
func (c Column) Definition() string {
	return strings.TrimSpace(c.Type + " " + c.Constraints)
}

// IsPrimaryKey reports whether the constraints declare PRIMARY KEY.
func (c Column) IsPrimaryKey() bool {
	return hasWords(tokenize(c.Constraints), "PRIMARY", "KEY")
}

// IsAutoIncrement reports whether the constraints declare AUTOINCREMENT or
// one of its spellings.
func (c Column) IsAutoIncrement() bool {
	toks := tokenize(c.Constraints)
	return hasWords(toks, "AUTOINCREMENT") || hasWords(toks, "AUTO_INCREMENT") || hasWords(toks, "AUTO")
}

// IsNotNull reports whether the constraints declare NOT NULL.
func (c Column) IsNotNull() bool {
	return hasWords(tokenize(c.Constraints), "NOT", "NULL")
}

// IsUnique reports whether the constraints declare an inline UNIQUE.
func (c Column) IsUnique() bool {
	return hasWords(tokenize(c.Constraints), "UNIQUE")
}

// Default returns the DEFAULT literal, if any, exactly as written.
func (c Column) Default() (string, bool) {
	toks := tokenize(c.Constraints)
	for i := 0; i+1 < len(toks); i++ {
		if strings.EqualFold(toks[i], "DEFAULT") {
			return toks[i+1], true
		}
	}
	return "", false
}

// RemoveWords deletes every occurrence of the given word sequence from a
// constraint string, compared case-insensitively.
func RemoveWords(constraints string, words ...string) string {
	toks := tokenize(constraints)
	out := make([]string, 0, len(toks))
	for i := 0; i < len(toks); {
		if matchAt(toks, i, words) {
			i += len(words)
			continue
		}
		out = append(out, toks[i])
		i++
	}
	return strings.Join(out, " ")
}

// ReplaceDefault rewrites the DEFAULT literal of a constraint string.
func ReplaceDefault(constraints string, fn func(literal string) string) string {
	toks := tokenize(constraints)
	for i := 0; i+1 < len(toks); i++ {
		if strings.EqualFold(toks[i], "DEFAULT") {
			toks[i+1] = fn(toks[i+1])
			break
		}
	}
	return strings.Join(toks, " ")
}

func hasWords(toks []string, words ...string) bool {
	for i := range toks {
		if matchAt(toks, i, words) {
			return true
		}
	}
	return false
}

func matchAt(toks []string, i int, words []string) bool {
	if i+len(words) > len(toks) {
		return false
	}
	for j, w := range words {
		if !strings.EqualFold(toks[i+j], w) {
			return false
		}
	}
	return true
}

// tokenize splits a constraint string on whitespace while keeping quoted
// literals and parenthesised groups whole, so "TINYINT(1)" and
// "CHECK (a IN ('x', 'y'))" never split inside their parentheses.
func tokenize(s string) []string {
	var toks []string
	var current strings.Builder
	depth := 0
	inString := false

	flush := func() {
		if current.Len() > 0 {
			toks = append(toks, current.String())
			current.Reset()
		}
	}

	for _, ch := range s {
		switch {
		case inString:
			current.WriteRune(ch)
			if ch == '\'' {
				inString = false
			}
		case ch == '\'':
			current.WriteRune(ch)
			inString = true
		case ch == '(':
			depth++
			current.WriteRune(ch)
		case ch == ')':
			depth--
			current.WriteRune(ch)
		case unicode.IsSpace(ch) && depth == 0:
			flush()
		default:
			current.WriteRune(ch)
		}
	}
	flush()

	return toks
}
