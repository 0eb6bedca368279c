package perfcollect

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/xuri/excelize/v2"
)

// SummaryBanner precedes the tab-separated report.
const SummaryBanner = "\n\n---------- COUNTER SUMMARY accross MPI processes ----------\n"

// A MetricsWriter is an interface for writing tables.
type MetricsWriter interface {
	SetHeader(headers []string)
	Append(record []string)
	Render()
}

// A TSVWriter writes the banner followed by tab-separated lines.
type TSVWriter struct {
	w   io.Writer
	err error
}

// NewTSVWriter creates a TSVWriter that writes to w.
func NewTSVWriter(w io.Writer) *TSVWriter {
	return &TSVWriter{w: w}
}

// SetHeader writes the banner and the header line.
func (t *TSVWriter) SetHeader(headers []string) {
	if _, err := io.WriteString(t.w, SummaryBanner); err != nil && t.err == nil {
		t.err = err
	}
	t.Append(headers)
}

// Append writes one line.
func (t *TSVWriter) Append(record []string) {
	if _, err := fmt.Fprintln(t.w, strings.Join(record, "\t")); err != nil && t.err == nil {
		t.err = err
	}
}

// Render is a no-op, lines are written as they are appended.
func (t *TSVWriter) Render() {}

// Err returns the first write error.
func (t *TSVWriter) Err() error {
	return t.err
}

// A CSVWriter is a MetricsWriter that outputs the information in CSV format.
type CSVWriter struct {
	*csv.Writer
}

// NewCSVWriter creates a CSVWriter that writes to the given output writer.
func NewCSVWriter(w io.Writer) *CSVWriter {
	return &CSVWriter{
		Writer: csv.NewWriter(w),
	}
}

// SetHeader adds a table header.
func (c *CSVWriter) SetHeader(headers []string) {
	c.Writer.Write(headers)
}

// Append creates a new row in the table.
func (c *CSVWriter) Append(record []string) {
	c.Writer.Write(record)
}

// Render flushes the table content to the writer.
func (c *CSVWriter) Render() {
	c.Writer.Flush()
}

// NewTableWriter creates a MetricsWriter that writes a pretty-printed ASCII
// table.
func NewTableWriter(w io.Writer) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetAutoFormatHeaders(false)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	return t
}

// An XLSXWriter collects rows into a workbook and saves it on Render.
type XLSXWriter struct {
	path  string
	file  *excelize.File
	sheet string
	row   int
	err   error
}

// NewXLSXWriter creates an XLSXWriter that saves to path.
func NewXLSXWriter(path string) *XLSXWriter {
	f := excelize.NewFile()
	sheet := "counters"
	f.SetSheetName("Sheet1", sheet)
	return &XLSXWriter{
		path:  path,
		file:  f,
		sheet: sheet,
		row:   1,
	}
}

func cellName(col, row int) string {
	name, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return ""
	}
	return name
}

// SetHeader writes the header row in bold.
func (x *XLSXWriter) SetHeader(headers []string) {
	style, err := x.file.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
	})
	x.check(err)
	row := x.row
	x.Append(headers)
	x.check(x.file.SetCellStyle(x.sheet, cellName(1, row), cellName(len(headers), row), style))
}

func (x *XLSXWriter) check(err error) {
	if err != nil && x.err == nil {
		x.err = err
	}
}

// Append writes one row. Integer cells are stored as numbers.
func (x *XLSXWriter) Append(record []string) {
	for i, v := range record {
		var val interface{} = v
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			val = n
		}
		x.check(x.file.SetCellValue(x.sheet, cellName(i+1, x.row), val))
	}
	x.row++
}

// Render saves the workbook.
func (x *XLSXWriter) Render() {
	defer x.file.Close()
	if x.err != nil {
		return
	}
	x.err = x.file.SaveAs(x.path)
}

// Err returns the first error met while building or saving the workbook.
func (x *XLSXWriter) Err() error {
	return x.err
}
