package schema

import (
	"fmt"
	"os"
	"regexp"
	"strings"
)

var (
	createTableRe = regexp.MustCompile(`(?i)^CREATE\s+TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(?:\w+\.)?["'` + "`" + `]?(\w+)["'` + "`" + `]?`)
	colsRe        = regexp.MustCompile(`\(([^)]+)\)`)
	fkLocalRe     = regexp.MustCompile(`(?i)FOREIGN\s+KEY\s*\(([^)]+)\)`)
	fkRefRe       = regexp.MustCompile(`(?i)REFERENCES\s+(?:\w+\.)?["'` + "`" + `]?(\w+)["'` + "`" + `]?\s*\(([^)]+)\)\s*(.*)$`)
	inlineRefRe   = regexp.MustCompile(`(?i)\s+REFERENCES\s+["'` + "`" + `]?(\w+)["'` + "`" + `]?\s*\(([^)]+)\)\s*((?:ON\s+(?:DELETE|UPDATE)\s+(?:SET\s+NULL|SET\s+DEFAULT|NO\s+ACTION|CASCADE|RESTRICT)\s*)*)`)
	uniqueGroupRe = regexp.MustCompile(`(?i)^UNIQUE\s*(?:KEY\s+\w*\s*)?\(`)
	constraintRe  = regexp.MustCompile(`(?i)^CONSTRAINT\s+["'` + "`" + `]?\w+["'` + "`" + `]?\s+`)
	commentLineRe = regexp.MustCompile(`--[^\n]*`)
	commentBlkRe  = regexp.MustCompile(`/\*[\s\S]*?\*/`)
	whitespaceRe  = regexp.MustCompile(`\s+`)
)

// Parser turns CREATE TABLE statements into a declarative Schema. It is
// used to bootstrap a schema document from an existing SQL dump.
type Parser struct{}

// NewParser creates a new SQL parser.
func NewParser() *Parser {
	return &Parser{}
}

// ParseSQLFile reads and parses a SQL file.
func ParseSQLFile(path string) (*Schema, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return NewParser().Parse(string(content))
}

// Parse parses SQL content and returns the tables it creates. Statements
// other than CREATE TABLE are ignored.
func (p *Parser) Parse(sql string) (*Schema, error) {
	s := &Schema{Tables: []Table{}}

	for _, stmt := range splitStatements(stripComments(sql)) {
		stmt = strings.TrimSpace(stmt)
		if !strings.HasPrefix(strings.ToUpper(stmt), "CREATE TABLE") {
			continue
		}
		table, err := p.parseCreateTable(stmt)
		if err != nil {
			return nil, err
		}
		s.Tables = append(s.Tables, *table)
	}

	return s, nil
}

func (p *Parser) parseCreateTable(stmt string) (*Table, error) {
	matches := createTableRe.FindStringSubmatch(stmt)
	if len(matches) < 2 {
		return nil, fmt.Errorf("unrecognised CREATE TABLE statement: %.40s", stmt)
	}
	table := &Table{Name: matches[1]}

	parenStart := strings.Index(stmt, "(")
	parenEnd := strings.LastIndex(stmt, ")")
	if parenStart == -1 || parenEnd <= parenStart {
		return nil, fmt.Errorf("table %s: missing column list", table.Name)
	}

	for _, def := range splitColumnDefs(stmt[parenStart+1 : parenEnd]) {
		def = strings.TrimSpace(constraintRe.ReplaceAllString(strings.TrimSpace(def), ""))
		if def == "" {
			continue
		}

		upper := strings.ToUpper(def)
		switch {
		case strings.HasPrefix(upper, "PRIMARY KEY"):
			// Composite keys are outside the model; single-column keys are
			// declared inline.
			continue
		case strings.HasPrefix(upper, "FOREIGN KEY"):
			if fk := parseForeignKey(def); fk != nil {
				table.ForeignKeys = append(table.ForeignKeys, *fk)
			}
		case uniqueGroupRe.MatchString(def):
			table.Unique = splitNames(colsRe.FindStringSubmatch(def))
		case strings.HasPrefix(upper, "CHECK"), strings.HasPrefix(upper, "KEY "), strings.HasPrefix(upper, "INDEX "):
			continue
		default:
			col, fk := parseColumnDef(def)
			table.Columns = append(table.Columns, col)
			if fk != nil {
				table.ForeignKeys = append(table.ForeignKeys, *fk)
			}
		}
	}

	return table, nil
}

// parseColumnDef reads "name TYPE constraints". An inline REFERENCES clause
// is lifted out into a foreign key.
func parseColumnDef(def string) (Column, *ForeignKey) {
	name, rest, _ := strings.Cut(def, " ")
	name = trimQuotes(name)

	var fk *ForeignKey
	if m := inlineRefRe.FindStringSubmatch(rest); len(m) >= 3 {
		fk = &ForeignKey{
			Column:       name,
			ParentTable:  m[1],
			ParentColumn: trimQuotes(strings.TrimSpace(m[2])),
			Instruction:  strings.TrimSpace(m[3]),
		}
		rest = inlineRefRe.ReplaceAllString(rest, " ")
	}

	return ParseColumn(name, rest), fk
}

func parseForeignKey(def string) *ForeignKey {
	local := fkLocalRe.FindStringSubmatch(def)
	ref := fkRefRe.FindStringSubmatch(def)
	if len(local) < 2 || len(ref) < 3 {
		return nil
	}
	return &ForeignKey{
		Column:       trimQuotes(strings.TrimSpace(local[1])),
		ParentTable:  ref[1],
		ParentColumn: trimQuotes(strings.TrimSpace(ref[2])),
		Instruction:  strings.TrimSpace(ref[3]),
	}
}

func splitNames(matches []string) []string {
	if len(matches) < 2 {
		return nil
	}
	var names []string
	for _, c := range strings.Split(matches[1], ",") {
		names = append(names, trimQuotes(strings.TrimSpace(c)))
	}
	return names
}

func trimQuotes(s string) string {
	return strings.Trim(s, `"'`+"`")
}

// Helper functions

func stripComments(sql string) string {
	sql = commentLineRe.ReplaceAllString(sql, "")
	sql = commentBlkRe.ReplaceAllString(sql, "")
	sql = whitespaceRe.ReplaceAllString(sql, " ")
	return strings.TrimSpace(sql)
}

func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	inString := false
	stringChar := rune(0)

	for _, ch := range sql {
		if !inString && (ch == '\'' || ch == '"') {
			inString = true
			stringChar = ch
		} else if inString && ch == stringChar {
			inString = false
		}

		if ch == ';' && !inString {
			statements = append(statements, current.String())
			current.Reset()
		} else {
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		statements = append(statements, current.String())
	}

	return statements
}

func splitColumnDefs(body string) []string {
	var defs []string
	var current strings.Builder
	parenDepth := 0
	inString := false

	for _, ch := range body {
		switch {
		case ch == '\'':
			inString = !inString
			current.WriteRune(ch)
		case inString:
			current.WriteRune(ch)
		case ch == '(':
			parenDepth++
			current.WriteRune(ch)
		case ch == ')':
			parenDepth--
			current.WriteRune(ch)
		case ch == ',' && parenDepth == 0:
			defs = append(defs, current.String())
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}

	if current.Len() > 0 {
		defs = append(defs, current.String())
	}

	return defs
}
