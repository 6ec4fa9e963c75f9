package rename

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const logTimeLayout = "20060102_150405"

var logHeaders = []string{
	"Original Filename", "New Filename", "Site Number", "Artifact Number",
	"Confidence", "Success", "Message",
}

func outcomeRow(o Outcome) []string {
	return []string{
		o.Original, o.NewName, o.SiteNumber, o.ArtifactNumber,
		strconv.FormatFloat(o.Confidence, 'f', 2, 64), strconv.FormatBool(o.Success), o.Message,
	}
}

// WriteLogs writes the batch report as labelocr_log_<timestamp>.{csv,json,xlsx}
// into dir and returns the paths written. A failed format does not stop the others.
func WriteLogs(dir string, report BatchReport) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	base := filepath.Join(dir, "labelocr_log_"+report.Started.Format(logTimeLayout))
	var (
		written  []string
		firstErr error
	)
	for _, w := range []struct {
		ext string
		fn  func(string, BatchReport) error
	}{
		{".csv", writeCSV},
		{".json", writeJSON},
		{".xlsx", writeXLSX},
	} {
		p := base + w.ext
		if err := w.fn(p, report); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("write %s: %w", p, err)
			}
			continue
		}
		written = append(written, p)
	}
	return written, firstErr
}

func writeCSV(path string, report BatchReport) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	if err := w.Write(logHeaders); err != nil {
		return err
	}
	for _, o := range report.Outcomes {
		if err := w.Write(outcomeRow(o)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Close()
}

func writeJSON(path string, report BatchReport) error {
	b, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func writeXLSX(path string, report BatchReport) error {
	f := excelize.NewFile()
	defer f.Close()
	const sheet = "Renames"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	_ = f.DeleteSheet("Sheet1")

	for i, h := range logHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, o := range report.Outcomes {
		row := r + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		write(1, o.Original)
		write(2, o.NewName)
		write(3, o.SiteNumber)
		write(4, o.ArtifactNumber)
		write(5, o.Confidence)
		write(6, o.Success)
		write(7, o.Message)
	}
	_ = f.SetColWidth(sheet, "A", "B", 28)
	_ = f.SetColWidth(sheet, "G", "G", 60)
	return f.SaveAs(path)
}
