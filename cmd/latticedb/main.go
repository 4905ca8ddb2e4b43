// Command latticedb is the CLI front end named by section 6: it reads
// SQL statements from stdin until EOF or EXIT;, writes results to
// stdout, and exits 0 on clean termination or non-zero on an
// unrecoverable engine error. It is explicitly not core engineering
// credit (section 1) — a thin driver so the storage engine and SQL
// surface are reachable end to end.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/getsentry/sentry-go"

	"github.com/latticedb/latticedb/internal/config"
	"github.com/latticedb/latticedb/internal/engine"
	"github.com/latticedb/latticedb/internal/metrics"
	"github.com/latticedb/latticedb/internal/sqlfront"
)

func main() {
	cfg := config.FromEnv()

	var alert *engine.AlertHub
	if dsn := os.Getenv("LATTICEDB_SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			fmt.Fprintf(os.Stderr, "sentry init failed: %v\n", err)
		} else {
			alert = engine.NewAlertHub(sentry.CurrentHub())
			defer sentry.Flush(2e9)
		}
	}

	logger := engine.NewWriterLogger(os.Stderr)
	reg := metrics.NewRegistry()

	se, err := engine.Open(cfg, logger, reg, alert)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open: %v\n", err)
		os.Exit(1)
	}
	defer se.Close()

	os.Exit(repl(se, os.Stdin, os.Stdout))
}

// repl consumes semicolon-terminated statements from in, executes each
// against eng, and writes their results to out. Returns the process
// exit code.
func repl(eng sqlfront.Engine, in io.Reader, out io.Writer) int {
	sess := &sqlfront.Session{}
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var buf strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if !strings.Contains(line, ";") {
			continue
		}
		if err := runBuffered(eng, sess, &buf, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return 1
		}
		if sess.Exited {
			return 0
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return 1
	}
	// A trailing statement with no closing ';' before EOF still runs,
	// matching "reads ... until EOF or EXIT;".
	if stmt := strings.TrimSpace(buf.String()); stmt != "" {
		res, err := sqlfront.Run(eng, sess, stmt)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			return 1
		}
		printResult(out, res)
	}
	return 0
}

// runBuffered splits buf's accumulated text on ';', runs each complete
// statement in turn, and leaves any trailing partial statement in buf
// for the next line.
func runBuffered(eng sqlfront.Engine, sess *sqlfront.Session, buf *strings.Builder, out io.Writer) error {
	text := buf.String()
	buf.Reset()

	parts := strings.Split(text, ";")
	for i, part := range parts {
		if i == len(parts)-1 {
			buf.WriteString(part)
			break
		}
		stmt := strings.TrimSpace(part)
		if stmt == "" {
			continue
		}
		res, err := sqlfront.Run(eng, sess, stmt)
		if err != nil {
			return err
		}
		printResult(out, res)
		if sess.Exited {
			return nil
		}
	}
	return nil
}

func printResult(out io.Writer, res *sqlfront.Result) {
	if len(res.Headers) == 0 {
		fmt.Fprintln(out, res.Message)
		return
	}
	fmt.Fprintln(out, strings.Join(res.Headers, "\t"))
	for _, row := range res.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = v.String()
		}
		fmt.Fprintln(out, strings.Join(cells, "\t"))
	}
	fmt.Fprintf(out, "(%d rows)\n", len(res.Rows))
}
