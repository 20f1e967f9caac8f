package db

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/egoughnour/schemasync/internal/dialect"
)

// ErrUnsupportedScheme is returned for connection URIs whose scheme does not
// select a supported engine.
var ErrUnsupportedScheme = errors.New("unsupported database scheme")

const (
	sqliteBusyTimeout = 30 * time.Second
	memoryPath        = ":memory:"
)

// Target is a parsed connection URI ready for sql.Open.
type Target struct {
	Dialect dialect.Name
	Driver  string
	DSN     string
	// Path is the SQLite database file, or ":memory:".
	Path string
}

// ParseURI resolves a connection URI. The scheme selects the engine:
// sqlite:///path, postgres:// or postgresql://, mysql:// or mariadb://.
// For SQLite the parent directory of the database file is created.
func ParseURI(uri string, opts Options) (*Target, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return nil, fmt.Errorf("%w: empty connection URI", ErrUnsupportedScheme)
	}
	opts = opts.withDefaults()

	scheme, _, found := strings.Cut(uri, "://")
	if !found {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedScheme, redact(uri))
	}

	switch strings.ToLower(scheme) {
	case "sqlite", "sqlite3":
		return sqliteTarget(uri)
	case "postgres", "postgresql":
		return postgresTarget(uri, opts)
	case "mysql", "mariadb":
		return mysqlTarget(uri, opts)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}
}

// sqliteTarget follows the sqlite:///relative and sqlite:////absolute
// convention; sqlite:// and sqlite:///:memory: open an in-memory database.
func sqliteTarget(uri string) (*Target, error) {
	_, rest, _ := strings.Cut(uri, "://")
	path := strings.TrimPrefix(rest, "/")
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}

	t := &Target{Dialect: dialect.SQLite, Driver: "sqlite3"}
	params := url.Values{}
	params.Set("_busy_timeout", fmt.Sprint(sqliteBusyTimeout.Milliseconds()))
	params.Set("_foreign_keys", "1")

	if path == "" || path == memoryPath {
		t.Path = memoryPath
		t.DSN = "file::memory:?" + params.Encode()
		return t, nil
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving sqlite path %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("creating sqlite directory: %w", err)
	}
	params.Set("_journal_mode", "WAL")
	t.Path = abs
	t.DSN = "file:" + abs + "?" + params.Encode()
	return t, nil
}

func postgresTarget(uri string, opts Options) (*Target, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres URI: %w", err)
	}
	q := u.Query()
	if q.Get("connect_timeout") == "" {
		q.Set("connect_timeout", fmt.Sprint(int(opts.ConnectTimeout.Seconds())))
	}
	u.RawQuery = q.Encode()
	return &Target{Dialect: dialect.Postgres, Driver: "postgres", DSN: u.String()}, nil
}

func mysqlTarget(uri string, opts Options) (*Target, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql URI: %w", err)
	}

	cfg := mysql.NewConfig()
	cfg.User = u.User.Username()
	cfg.Passwd, _ = u.User.Password()
	cfg.Net = "tcp"
	cfg.Addr = u.Host
	if u.Port() == "" {
		cfg.Addr = net.JoinHostPort(u.Hostname(), "3306")
	}
	cfg.DBName = strings.TrimPrefix(u.Path, "/")
	cfg.Timeout = opts.ConnectTimeout
	cfg.ReadTimeout = opts.ReadTimeout
	cfg.Params = map[string]string{"charset": "utf8mb4"}
	for k, v := range u.Query() {
		if len(v) > 0 {
			cfg.Params[k] = v[0]
		}
	}

	return &Target{Dialect: dialect.MySQL, Driver: "mysql", DSN: cfg.FormatDSN()}, nil
}

// redact hides the password of a URI for log and error messages.
func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}
