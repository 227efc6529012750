package sink

import (
	"bufio"
	"fmt"
	"os"

	"github.com/wegman-software/osm-gazetteer/internal/record"
)

// CSV writes records to a file, or stdout when the path is "-"
type CSV struct {
	file   *os.File
	buf    *bufio.Writer
	writer *record.CSVWriter
}

// NewCSV creates the output file
func NewCSV(path string) (*CSV, error) {
	f := os.Stdout
	if path != "-" {
		var err error
		f, err = os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", path, err)
		}
	}
	return newCSV(f), nil
}

func newCSV(f *os.File) *CSV {
	buf := bufio.NewWriterSize(f, 1<<20)
	return &CSV{file: f, buf: buf, writer: record.NewCSVWriter(buf)}
}

// Write appends one row
func (c *CSV) Write(r *record.Record) error {
	return c.writer.Write(r)
}

// Close flushes and closes the file. Stdout is flushed but left open.
func (c *CSV) Close() error {
	if err := c.writer.Flush(); err != nil {
		return err
	}
	if err := c.buf.Flush(); err != nil {
		return err
	}
	if c.file == os.Stdout {
		return nil
	}
	return c.file.Close()
}

var _ Sink = (*CSV)(nil)
