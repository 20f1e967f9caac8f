package dialect

import (
	"regexp"
	"strings"
)

// Abstract column types understood by every adapter.
const (
	TypeInteger   = "INTEGER"
	TypeText      = "TEXT"
	TypeFloat     = "FLOAT"
	TypeTimestamp = "TIMESTAMP"
	TypeBool      = "BOOL"
	TypeBlob      = "BLOB"
)

var typeMap = map[string]map[Name]string{
	TypeInteger:   {SQLite: "INTEGER", Postgres: "INTEGER", MySQL: "INT"},
	TypeText:      {SQLite: "TEXT", Postgres: "TEXT", MySQL: "TEXT"},
	TypeFloat:     {SQLite: "REAL", Postgres: "DOUBLE PRECISION", MySQL: "DOUBLE"},
	TypeTimestamp: {SQLite: "TEXT", Postgres: "TIMESTAMP", MySQL: "TIMESTAMP"},
	TypeBool:      {SQLite: "INTEGER", Postgres: "BOOLEAN", MySQL: "TINYINT(1)"},
	TypeBlob:      {SQLite: "BLOB", Postgres: "BYTEA", MySQL: "BLOB"},
}

// Aliases accepted for the abstract tags.
var typeAliases = map[string]string{
	"INT":     TypeInteger,
	"BOOLEAN": TypeBool,
	"REAL":    TypeFloat,
	"DOUBLE":  TypeFloat,
}

func mapType(d Name, abstract string) (string, bool) {
	key := canonicalType(abstract)
	if m, ok := typeMap[key]; ok {
		return m[d], true
	}
	return abstract, false
}

func canonicalType(abstract string) string {
	upper := strings.ToUpper(strings.TrimSpace(abstract))
	if alias, ok := typeAliases[upper]; ok {
		return alias
	}
	return upper
}

// KnownType reports whether the abstract tag is in the type map.
func KnownType(abstract string) bool {
	_, ok := typeMap[canonicalType(abstract)]
	return ok
}

// textLike reports whether back-fills and defaults for the type use ''.
func textLike(engineType string) bool {
	upper := strings.ToUpper(engineType)
	for _, s := range []string{"TEXT", "CHAR", "CLOB", "BLOB", "BYTEA", "BINARY"} {
		if strings.Contains(upper, s) {
			return true
		}
	}
	return false
}

var displayWidthRe = regexp.MustCompile(`^(TINYINT|SMALLINT|MEDIUMINT|INT|INTEGER|BIGINT)\((\d+)\)`)

// normalizeType folds an introspected engine type into the spelling the
// type map produces, so a round trip compares equal.
func normalizeType(d Name, engineType string) string {
	upper := strings.ToUpper(strings.TrimSpace(engineType))
	switch d {
	case Postgres:
		switch upper {
		case "TIMESTAMP WITHOUT TIME ZONE":
			return "TIMESTAMP"
		case "TIMESTAMP WITH TIME ZONE":
			return "TIMESTAMPTZ"
		case "CHARACTER VARYING":
			return "VARCHAR"
		}
	case MySQL:
		upper = strings.TrimSpace(strings.TrimSuffix(upper, " UNSIGNED"))
		if m := displayWidthRe.FindStringSubmatch(upper); m != nil && !(m[1] == "TINYINT" && m[2] == "1") {
			return m[1]
		}
	}
	return upper
}

var reservedWords = map[Name]map[string]bool{
	SQLite: words("abort", "add", "all", "alter", "and", "as", "autoincrement", "between",
		"by", "case", "check", "collate", "column", "commit", "constraint", "create",
		"default", "delete", "desc", "distinct", "drop", "else", "escape", "except",
		"exists", "foreign", "from", "group", "having", "in", "index", "insert",
		"intersect", "into", "is", "isnull", "join", "limit", "not", "notnull",
		"null", "on", "or", "order", "primary", "references", "select", "set",
		"table", "then", "to", "transaction", "union", "unique", "update", "using",
		"values", "when", "where"),
	Postgres: words("all", "analyse", "analyze", "and", "any", "array", "as", "asc",
		"asymmetric", "both", "case", "cast", "check", "collate", "column",
		"constraint", "create", "current_date", "current_role", "current_time",
		"current_timestamp", "current_user", "default", "deferrable", "desc",
		"distinct", "do", "else", "end", "except", "false", "fetch", "for",
		"foreign", "from", "grant", "group", "having", "in", "initially",
		"intersect", "into", "lateral", "leading", "limit", "localtime",
		"localtimestamp", "not", "null", "offset", "on", "only", "or", "order",
		"placing", "primary", "references", "returning", "select", "session_user",
		"some", "symmetric", "table", "then", "to", "trailing", "true", "union",
		"unique", "user", "using", "variadic", "when", "where", "window", "with"),
	MySQL: words("add", "all", "alter", "and", "as", "asc", "before", "between",
		"by", "case", "change", "check", "column", "condition", "constraint",
		"create", "cross", "current_date", "current_time", "current_timestamp",
		"current_user", "database", "default", "delete", "desc", "describe",
		"distinct", "drop", "else", "exists", "explain", "false", "for", "force",
		"foreign", "from", "group", "having", "if", "ignore", "in", "index",
		"inner", "insert", "interval", "into", "is", "join", "key", "keys", "kill",
		"left", "like", "limit", "lock", "match", "modify", "natural", "not",
		"null", "on", "option", "or", "order", "outer", "primary", "range", "read",
		"references", "rename", "replace", "require", "restrict", "right",
		"schema", "select", "set", "show", "table", "then", "to", "trigger",
		"true", "union", "unique", "update", "usage", "use", "using", "values",
		"when", "where", "with", "write"),
}

func words(ws ...string) map[string]bool {
	m := make(map[string]bool, len(ws))
	for _, w := range ws {
		m[w] = true
	}
	return m
}

// quote wraps ident in the engine's quote character when it is a reserved
// word. Other identifiers are emitted bare so generated DDL stays readable.
func quote(d Name, ident string) string {
	if !reservedWords[d][strings.ToLower(ident)] {
		return ident
	}
	if d == MySQL {
		return "`" + ident + "`"
	}
	return `"` + ident + `"`
}
