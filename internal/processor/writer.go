package processor

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/brensch/gdelthelper/internal/config"
)

// rowWriter persists the merged table. Rows always have one field per
// header column.
type rowWriter interface {
	Write(row []string) error
	Close() error
}

func newRowWriter(format, path string, header []string) (rowWriter, error) {
	switch format {
	case "", config.FormatTSV:
		return newTSVWriter(path, header)
	case config.FormatParquet:
		return newParquetWriter(path, header)
	}
	return nil, fmt.Errorf("unknown output format %q", format)
}

type tsvWriter struct {
	f  *os.File
	bw *bufio.Writer
}

func newTSVWriter(path string, header []string) (*tsvWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	w := &tsvWriter{f: f, bw: bufio.NewWriterSize(f, 256<<10)}
	if err := w.Write(header); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

func (w *tsvWriter) Write(row []string) error {
	if _, err := w.bw.WriteString(strings.Join(row, "\t")); err != nil {
		return err
	}
	return w.bw.WriteByte('\n')
}

func (w *tsvWriter) Close() error {
	return errors.Join(w.bw.Flush(), w.f.Close())
}

// parquetWriter stores every column as an optional UTF8 string, since
// fields are never interpreted on the way through.
type parquetWriter struct {
	fw source.ParquetFile
	pw *writer.CSVWriter
}

func newParquetWriter(path string, header []string) (*parquetWriter, error) {
	meta := make([]string, len(header))
	for i, h := range header {
		meta[i] = fmt.Sprintf("name=%s, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=OPTIONAL", h)
	}
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return nil, fmt.Errorf("create parquet file %s: %w", path, err)
	}
	pw, err := writer.NewCSVWriter(meta, fw, 4)
	if err != nil {
		fw.Close()
		return nil, fmt.Errorf("create parquet writer %s: %w", path, err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	return &parquetWriter{fw: fw, pw: pw}, nil
}

func (w *parquetWriter) Write(row []string) error {
	ptrs := make([]*string, len(row))
	for i := range row {
		ptrs[i] = &row[i]
	}
	return w.pw.WriteString(ptrs)
}

func (w *parquetWriter) Close() error {
	var err error
	if stopErr := w.pw.WriteStop(); stopErr != nil {
		err = fmt.Errorf("stop parquet writer: %w", stopErr)
	}
	if closeErr := w.fw.Close(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close parquet file: %w", closeErr))
	}
	return err
}
