package cli

import (
	"encoding/json"
	"fmt"
	"io"
)

// printer writes command results as text or JSON.
type printer struct {
	format string
	w      io.Writer
}

func newPrinter(opts *RootOptions, w io.Writer) printer {
	return printer{format: opts.Format, w: w}
}

// emit writes v as indented JSON in json mode, otherwise calls text.
func (p printer) emit(v interface{}, text func(w io.Writer)) error {
	if p.format == "json" {
		enc := json.NewEncoder(p.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(p.w)
	return nil
}

func (p printer) line(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format+"\n", args...)
}
