// Package publish loads a project's cleaned extractor output into the
// corpus database, one transaction per project.
package publish

import (
	"context"
	"database/sql"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/logger"
	"github.com/implicit-corpus/collector/normalize"
	"github.com/implicit-corpus/collector/project"
)

// Result summarises one publish
type Result struct {
	ProjectID    int64
	Committed    bool
	Rows         map[string]int // rows inserted per table
	Skipped      []string       // cleaned tables that were absent
	SkippedLinks int            // links naming an unknown param or fun
}

// Publisher writes projects into the corpus database
type Publisher struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// New creates a publisher over a migrated corpus database
func New(db *sql.DB, log *zap.SugaredLogger) *Publisher {
	return &Publisher{db: db, logger: logger.OrNop(log)}
}

// Publish inserts the project in dir, replacing any previous row with the
// same name. With commit false the transaction is rolled back after every
// insert succeeded, so the result reports what would have been written.
func (p *Publisher) Publish(ctx context.Context, dir string, commit bool) (Result, error) {
	res := Result{Rows: make(map[string]int)}

	meta, missing, err := project.ReadMetadata(dir)
	if err != nil {
		return res, err
	}
	if meta.Name == "" {
		meta.Name = filepath.Base(dir)
	}
	log := p.logger.With(logger.FieldProject, meta.Name)
	if err := project.MissingColumnsError(filepath.Join(dir, project.MetadataFile), missing); err != nil {
		log.Infow("Using defaults for metadata", logger.FieldError, err)
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return res, errors.Wrap(err, "begin transaction")
	}
	done := false
	defer func() {
		if !done {
			_ = tx.Rollback()
		}
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE name = ?`, meta.Name); err != nil {
		return res, errors.Wrapf(err, "remove previous %s", meta.Name)
	}

	inserted, err := tx.ExecContext(ctx,
		`INSERT INTO projects (name, version, last_commit, url, scala_loc, total_loc, reponame, gh_stars, build_systems)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.Name, meta.Version, meta.LastCommit, meta.URL, meta.SubjectLOC, meta.TotalLOC,
		meta.RepoName, meta.Stars, strings.Join(meta.BuildSystems, "|"))
	if err != nil {
		return res, errors.Wrapf(err, "insert project %s", meta.Name)
	}
	if res.ProjectID, err = inserted.LastInsertId(); err != nil {
		return res, errors.Wrap(err, "read project id")
	}

	w := &writer{tx: tx, project: res.ProjectID, dir: dir, res: &res}
	if err := w.declaredImplicits(ctx); err != nil {
		return res, err
	}
	params, err := w.params(ctx)
	if err != nil {
		return res, err
	}
	funs, err := w.funs(ctx)
	if err != nil {
		return res, err
	}
	if err := w.links(ctx, params, funs); err != nil {
		return res, err
	}

	done = true
	if !commit {
		if err := tx.Rollback(); err != nil {
			return res, errors.Wrap(err, "roll back")
		}
		log.Infow("Publish rolled back", "rows", res.Rows, "skipped_links", res.SkippedLinks)
		return res, nil
	}

	if err := tx.Commit(); err != nil {
		return res, errors.Wrap(err, "commit")
	}
	res.Committed = true
	log.Infow("Published", "project_id", res.ProjectID, "rows", res.Rows, "skipped_links", res.SkippedLinks)
	return res, nil
}

type writer struct {
	tx      *sql.Tx
	project int64
	dir     string
	res     *Result
}

func (w *writer) declaredImplicits(ctx context.Context) error {
	return w.insertRows(ctx, "declared-implicits",
		`INSERT INTO declared_implicits (project, sourcelink, path, line, col, name, fqn, class, type, kind)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt, r normalize.Row) error {
			_, err := stmt.ExecContext(ctx, w.project, r["id"], r["path"], atoi(r["line"]), atoi(r["col"]),
				r["name"], r["fqn"], r["class"], r["type"], r["kind"])
			return err
		})
}

// params returns the row id of every param keyed by fqn; a repeated fqn
// maps to its last row
func (w *writer) params(ctx context.Context) (map[string]int64, error) {
	ids := make(map[string]int64)
	err := w.insertRows(ctx, "params",
		`INSERT INTO params (project, name, fqn, type, fqtn, kind) VALUES (?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt, r normalize.Row) error {
			res, err := stmt.ExecContext(ctx, w.project, r["name"], r["fqn"], r["type"], r["fqtn"], r["kind"])
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			ids[r["fqn"]] = id
			return err
		})
	return ids, err
}

// funs returns the row id of every fun keyed by its extractor id
func (w *writer) funs(ctx context.Context) (map[string]int64, error) {
	ids := make(map[string]int64)
	err := w.insertRows(ctx, "funs",
		`INSERT INTO funs (project, sourcelink, path, line, col, code, symbol, fqfn, fqparamlist, nargs)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		func(stmt *sql.Stmt, r normalize.Row) error {
			res, err := stmt.ExecContext(ctx, w.project, r["id"], r["path"], atoi(r["line"]), atoi(r["col"]),
				r["code"], r["symbol"], r["fqfn"], r["fqparamlist"], atoi(r["nargs"]))
			if err != nil {
				return err
			}
			id, err := res.LastInsertId()
			ids[r["id"]] = id
			return err
		})
	return ids, err
}

type link struct{ param, fun int64 }

// links inserts each distinct param/fun pair once. The first column of the
// link table names a param fqn, the second a fun id.
func (w *writer) links(ctx context.Context, params, funs map[string]int64) error {
	var ordered []link
	seen := make(map[link]bool)

	header := true
	err := w.eachRecord(ctx, "params-funs", func(rec []string) error {
		if header {
			header = false
			return nil
		}
		if len(rec) < 2 {
			w.res.SkippedLinks++
			return nil
		}
		p, okP := params[rec[0]]
		f, okF := funs[rec[1]]
		if !okP || !okF {
			w.res.SkippedLinks++
			return nil
		}
		l := link{p, f}
		if !seen[l] {
			seen[l] = true
			ordered = append(ordered, l)
		}
		return nil
	})
	if err != nil || len(ordered) == 0 {
		return err
	}

	stmt, err := w.tx.PrepareContext(ctx, `INSERT INTO params_funs (param, fun) VALUES (?, ?)`)
	if err != nil {
		return errors.Wrap(err, "prepare params_funs insert")
	}
	defer stmt.Close()

	for _, l := range ordered {
		if _, err := stmt.ExecContext(ctx, l.param, l.fun); err != nil {
			return errors.Wrap(err, "insert params_funs")
		}
	}
	w.res.Rows["params-funs"] = len(ordered)
	return nil
}

// insertRows prepares query once the table is known to exist and calls fn
// for every data row of <table>.clean.csv, keyed by header
func (w *writer) insertRows(ctx context.Context, table, query string, fn func(*sql.Stmt, normalize.Row) error) error {
	var (
		header []string
		stmt   *sql.Stmt
		n      int
	)
	defer func() {
		if stmt != nil {
			stmt.Close()
		}
	}()

	err := w.eachRecord(ctx, table, func(rec []string) error {
		if header == nil {
			header = rec
			var err error
			if stmt, err = w.tx.PrepareContext(ctx, query); err != nil {
				return errors.Wrap(err, "prepare insert")
			}
			return nil
		}
		row := make(normalize.Row, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		n++
		return fn(stmt, row)
	})
	if err != nil {
		return errors.Wrapf(err, "insert %s row %d", table, n)
	}
	if header != nil {
		w.res.Rows[table] = n
	}
	return nil
}

// eachRecord streams every record of <table>.clean.csv, header first. An
// absent file is recorded in Result.Skipped and is not an error.
func (w *writer) eachRecord(ctx context.Context, table string, fn func([]string) error) error {
	path := filepath.Join(w.dir, table+normalize.CleanSuffix)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		w.res.Skipped = append(w.res.Skipped, table)
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec, err := cr.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrapf(err, "read %s", path)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
}

func atoi(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
