package rules

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/c2h5oh/datasize"
	"github.com/google/renameio/v2"
)

// DefaultMaxFileSize bounds a single rule file.  Category lists ship with the
// extension and stay far below this.
const DefaultMaxFileSize = 32 * datasize.MB

// Config is the configuration for an [Assembler].
type Config struct {
	// Logger is used for per-file diagnostics.  It must not be nil.
	Logger *slog.Logger

	// Layout resolves the fallback rule file.
	Layout Layout

	// MaxFileSize is the largest rule file accepted.  Zero means
	// [DefaultMaxFileSize].
	MaxFileSize datasize.ByteSize
}

// Assembler merges named rule files into one artifact.
type Assembler struct {
	logger  *slog.Logger
	layout  Layout
	maxSize datasize.ByteSize

	// wrap, if set, wraps the artifact writer.  Tests use it to inject write
	// failures.
	wrap func(w io.Writer) io.Writer
}

// New returns a new properly initialized *Assembler.  c must not be nil.
func New(c *Config) (a *Assembler) {
	maxSize := c.MaxFileSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	return &Assembler{
		logger:  c.Logger,
		layout:  c.Layout,
		maxSize: maxSize,
	}
}

// Result describes a completed assembly.
type Result struct {
	// Dest is the artifact path.
	Dest string

	// Files are the paths of the rule files that made it into the artifact,
	// in order.
	Files []string

	// Skipped are the requested files that could not be used.
	Skipped []*AssetError

	// Rules is the number of rules written.
	Rules int

	// Bytes is the artifact size.
	Bytes int64

	// Fallback is true when the empty ruleset was materialized.
	Fallback bool
}

// source is a single rule file to resolve.
type source struct {
	name string
	path string
}

// Assemble concatenates the rule arrays of fileNames, resolved in
// sourceFolder, into a single JSON array written atomically to dest.  An empty
// fileNames materializes the empty ruleset.  Files that are missing, too large,
// or malformed are skipped and reported in the result; if none of them
// resolves, Assemble returns [ErrNoContent] and leaves dest untouched.
//
// then is invoked once, after the new artifact has replaced the old one.  It
// is not invoked on error.
func (a *Assembler) Assemble(
	ctx context.Context,
	fileNames []string,
	sourceFolder string,
	dest string,
	then func(),
) (res *Result, err error) {
	fallback := len(fileNames) == 0
	var sources []source
	if fallback {
		sources = []source{{name: EmptyRulesName, path: a.layout.EmptyRulesPath()}}
	} else {
		sources = make([]source, 0, len(fileNames))
		for _, n := range fileNames {
			sources = append(sources, source{name: n, path: a.layout.FilePath(sourceFolder, n)})
		}
	}

	// Resolve everything before touching dest so that a run with no content
	// never creates a pending file.
	res = &Result{Dest: dest, Fallback: fallback}
	var resolved [][]json.RawMessage
	for _, src := range sources {
		if err = ctx.Err(); err != nil {
			return nil, err
		}

		rules, rerr := a.readRules(src)
		if rerr != nil {
			a.logger.WarnContext(ctx, "skipping rule file", "name", src.name, slogutil.KeyError, rerr)
			res.Skipped = append(res.Skipped, rerr)

			continue
		}

		resolved = append(resolved, rules)
		res.Files = append(res.Files, src.path)
	}

	if len(resolved) == 0 {
		if !fallback {
			return nil, fmt.Errorf("assembling %d files: %w", len(fileNames), ErrNoContent)
		}

		a.logger.WarnContext(ctx, "empty rules asset unavailable, using built-in ruleset")
		resolved = [][]json.RawMessage{BuiltinEmptyRules()}
	}

	n, size, err := a.write(ctx, dest, resolved)
	if err != nil {
		return nil, err
	}

	res.Rules = n
	res.Bytes = size

	a.logger.DebugContext(
		ctx,
		"rule artifact written",
		"dest", dest,
		"files", len(res.Files),
		"skipped", len(res.Skipped),
		"rules", n,
		"bytes", datasize.ByteSize(size).HumanReadable(),
	)

	if then != nil {
		then()
	}

	return res, nil
}

// readRules loads a single rule file.  The returned error, if any, is always
// an *AssetError.
func (a *Assembler) readRules(src source) (rules []json.RawMessage, err *AssetError) {
	fail := func(e error) *AssetError {
		return &AssetError{Name: src.name, Path: src.path, Err: e}
	}

	f, oerr := os.Open(src.path)
	if oerr != nil {
		return nil, fail(oerr)
	}
	defer func() { _ = f.Close() }()

	limit := int64(a.maxSize.Bytes())
	b, rerr := io.ReadAll(io.LimitReader(f, limit+1))
	if rerr != nil {
		return nil, fail(rerr)
	}
	if int64(len(b)) > limit {
		return nil, fail(fmt.Errorf("file exceeds %s", a.maxSize.HumanReadable()))
	}

	if uerr := json.Unmarshal(b, &rules); uerr != nil {
		return nil, fail(fmt.Errorf("decode: %w", uerr))
	}

	for i, r := range rules {
		var buf bytes.Buffer
		if cerr := json.Compact(&buf, r); cerr != nil {
			return nil, fail(fmt.Errorf("rule %d: %w", i, cerr))
		}
		if buf.Len() == 0 || buf.Bytes()[0] != '{' {
			return nil, fail(fmt.Errorf("rule %d: not an object", i))
		}
		rules[i] = buf.Bytes()
	}

	return rules, nil
}

// write streams the merged array to a pending file next to dest and then
// atomically replaces dest with it.
func (a *Assembler) write(
	ctx context.Context,
	dest string,
	resolved [][]json.RawMessage,
) (n int, size int64, err error) {
	if err = os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, 0, &WriteError{Path: dest, Err: err}
	}

	unlock, err := lockFile(ctx, dest+".lock")
	if err != nil {
		return 0, 0, &WriteError{Path: dest, Err: err}
	}
	defer func() { err = errors.WithDeferred(err, unlock()) }()

	pf, err := renameio.NewPendingFile(
		dest,
		renameio.WithTempDir(filepath.Dir(dest)),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return 0, 0, &WriteError{Path: dest, Err: err}
	}
	defer func() { _ = pf.Cleanup() }()

	cw := &countingWriter{w: pf}
	bw := bufio.NewWriter(cw)
	var w io.Writer = bw
	if a.wrap != nil {
		w = a.wrap(bw)
	}

	n, err = writeArray(w, resolved)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		return 0, 0, &WriteError{Path: dest, Err: err}
	}

	if err = pf.CloseAtomicallyReplace(); err != nil {
		return 0, 0, &WriteError{Path: dest, Err: err}
	}

	return n, cw.n, nil
}

// writeArray writes resolved as one JSON array and returns the number of
// rules written.
func writeArray(w io.Writer, resolved [][]json.RawMessage) (n int, err error) {
	if _, err = io.WriteString(w, "["); err != nil {
		return 0, err
	}

	for _, rules := range resolved {
		for _, r := range rules {
			if n > 0 {
				if _, err = io.WriteString(w, ","); err != nil {
					return 0, err
				}
			}
			if _, err = w.Write(r); err != nil {
				return 0, err
			}
			n++
		}
	}

	if _, err = io.WriteString(w, "]\n"); err != nil {
		return 0, err
	}

	return n, nil
}

// countingWriter counts the bytes that reach the pending file.
type countingWriter struct {
	w io.Writer
	n int64
}

// Write implements the io.Writer interface for *countingWriter.
func (c *countingWriter) Write(p []byte) (n int, err error) {
	n, err = c.w.Write(p)
	c.n += int64(n)

	return n, err
}
