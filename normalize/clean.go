package normalize

import (
	"bytes"
	"encoding/csv"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/implicit-corpus/collector/errors"
	"github.com/implicit-corpus/collector/internal/fsutil"
	"github.com/implicit-corpus/collector/logger"
)

// Row is one CSV record keyed by column name
type Row map[string]string

// Table describes one extractor output and how its rows are cleaned
type Table struct {
	Name    string   // file stem: <Name>.csv is cleaned into <Name>.clean.csv
	Derived []string // columns added when the input lacks them
	Clean   func(Row)
}

// Tables are the extractor outputs, in the order they are cleaned
var Tables = []Table{
	{Name: "params", Derived: []string{"fqfn", "fqparamlist"}, Clean: cleanParam},
	{Name: "funs", Derived: []string{"fqfn", "fqparamlist"}, Clean: cleanFun},
	{Name: "params-funs", Clean: cleanLink},
	{Name: "declared-implicits", Clean: cleanDeclaredImplicit},
}

// CleanSuffix names the cleaned copy of a table
const CleanSuffix = ".clean.csv"

func cleanParam(r Row) {
	if fqn, ok := r["fqn"]; ok {
		fqn = CleanFQN(fqn)
		r["fqn"] = fqn
		r["fqfn"] = extractFunctionName(fqn)
		r["fqparamlist"] = extractParameterList(fqn)
	}
	cleanTypeAndKind(r)
}

func cleanFun(r Row) {
	if symbol, ok := r["symbol"]; ok {
		symbol = CleanFQN(symbol)
		r["symbol"] = symbol
		r["fqfn"] = extractFunctionName(symbol)
		r["fqparamlist"] = extractParameterList(symbol)
	}
}

func cleanLink(r Row) {
	if from, ok := r["from"]; ok {
		r["from"] = CleanFQN(from)
	}
}

func cleanDeclaredImplicit(r Row) {
	if fqn, ok := r["fqn"]; ok {
		r["fqn"] = CleanFQN(fqn)
	}
	cleanTypeAndKind(r)
}

func cleanTypeAndKind(r Row) {
	if fqtn, ok := r["fqtn"]; ok {
		r["fqtn"] = extractFunctionName(CleanFQN(fqtn))
	}
	if kind, ok := r["kind"]; ok {
		r["kind"] = replaceUnknownKinds(kind)
	}
}

// Summary reports what CleanProject did
type Summary struct {
	Rows    map[string]int // rows written per table
	Skipped []string       // tables whose input was absent
}

// CleanProject cleans every table present in dir. Absent inputs are
// skipped; a project with none of them is an error wrapping ErrNotFound.
func CleanProject(dir string, log *zap.SugaredLogger) (Summary, error) {
	log = logger.OrNop(log)
	summary := Summary{Rows: make(map[string]int)}

	for _, table := range Tables {
		in := filepath.Join(dir, table.Name+".csv")
		if _, err := os.Stat(in); os.IsNotExist(err) {
			log.Debugw("Table not found, skipping", logger.FieldPath, in)
			summary.Skipped = append(summary.Skipped, table.Name)
			continue
		}

		n, err := CleanFile(in, filepath.Join(dir, table.Name+CleanSuffix), table)
		if err != nil {
			return summary, err
		}
		summary.Rows[table.Name] = n
		log.Debugw("Cleaned table", "table", table.Name, logger.FieldCount, n)
	}

	if len(summary.Rows) == 0 {
		return summary, errors.Wrapf(errors.ErrNotFound, "no extractor output in %s", dir)
	}
	return summary, nil
}

// CleanFile cleans the table at in and atomically writes the result to out.
// Returns the number of data rows written.
func CleanFile(in, out string, table Table) (int, error) {
	f, err := os.Open(in)
	if err != nil {
		return 0, errors.Wrapf(err, "open %s", in)
	}
	defer f.Close()

	var buf bytes.Buffer
	n, err := cleanCSV(f, &buf, table)
	if err != nil {
		return n, errors.Wrapf(err, "clean %s", in)
	}

	if err := fsutil.WriteFileAtomic(out, buf.Bytes(), 0o644); err != nil {
		return n, err
	}
	return n, nil
}

func cleanCSV(r io.Reader, w io.Writer, table Table) (int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return 0, errors.New("empty table")
	}
	if err != nil {
		return 0, errors.Wrap(err, "read header")
	}

	columns := append([]string(nil), header...)
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}
	for _, d := range table.Derived {
		if !present[d] {
			columns = append(columns, d)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return 0, err
	}

	rows := 0
	record := make([]string, len(columns))
	for {
		values, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, errors.Wrapf(err, "read row %d", rows+1)
		}

		row := make(Row, len(columns))
		for i, h := range header {
			if i < len(values) {
				row[h] = values[i]
			} else {
				row[h] = ""
			}
		}
		table.Clean(row)

		for i, c := range columns {
			record[i] = row[c]
		}
		if err := cw.Write(record); err != nil {
			return rows, err
		}
		rows++
	}

	cw.Flush()
	return rows, cw.Error()
}
