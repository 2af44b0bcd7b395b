package report

import (
	"encoding/json"
	"io"
	"os"
)

// WriteJSON writes run as indented JSON
func WriteJSON(w io.Writer, run Run) error {
	e := json.NewEncoder(w)
	e.SetIndent(``, `  `) // Make output easier to read for humans
	return e.Encode(run)
}

// WriteJSONFile writes run to a new file at path
func WriteJSONFile(path string, run Run) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSON(f, run); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadJSON reads a run written by WriteJSON
func ReadJSON(r io.Reader) (Run, error) {
	var run Run
	err := json.NewDecoder(r).Decode(&run)
	return run, err
}
