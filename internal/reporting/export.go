package reporting

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

var humanPrinter = message.NewPrinter(language.English)

// WriteValuationCSV streams a branch valuation as CSV. Metadata comments
// carry the grand total in a human readable form.
func WriteValuationCSV(w io.Writer, report ValuationReport) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeComment("# Report: Stock Valuation"); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Branch: %d | As of: %s | Products: %d",
		report.BranchID, report.AsOf.Format("2006-01-02 15:04:05"), len(report.Rows))); err != nil {
		return err
	}
	if err := streamer.writeComment(humanPrinter.Sprintf("# Total value: %.2f", report.TotalValue)); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Product ID", "SKU", "Name", "Quantity", "Average Cost", "Value"}); err != nil {
		return err
	}
	for _, row := range report.Rows {
		if err := streamer.writeRow([]string{
			strconv.FormatInt(row.ProductID, 10),
			row.SKU,
			row.Name,
			formatDecimal(row.Qty),
			formatDecimal(row.AvgCost),
			formatDecimal(row.Value),
		}); err != nil {
			return err
		}
	}
	if err := streamer.writeRow([]string{"", "", "Totals", "", "", formatDecimal(report.TotalValue)}); err != nil {
		return err
	}
	return streamer.Close()
}

// WriteWasteCSV streams the waste-by-reason breakdown as CSV.
func WriteWasteCSV(w io.Writer, branchID int64, period Range, rows []WasteReasonRow) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeComment("# Report: Waste by Reason"); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Branch: %d | From: %s | To: %s",
		branchID, period.From.Format("2006-01-02"), period.To.Format("2006-01-02"))); err != nil {
		return err
	}
	var total float64
	for _, row := range rows {
		total += row.TotalCost
	}
	if err := streamer.writeComment(humanPrinter.Sprintf("# Total cost: %.2f", total)); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Reason", "Quantity", "Total Cost", "Records"}); err != nil {
		return err
	}
	for _, row := range rows {
		if err := streamer.writeRow([]string{
			row.Reason,
			formatDecimal(row.Qty),
			formatDecimal(row.TotalCost),
			strconv.FormatInt(row.Count, 10),
		}); err != nil {
			return err
		}
	}
	return streamer.Close()
}

func formatDecimal(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
