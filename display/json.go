package display

import (
	"encoding/json"
	"io"

	"github.com/implicit-corpus/collector/errors"
)

// OutputJSON writes v as indented JSON followed by a newline
func OutputJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to marshal JSON")
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}
