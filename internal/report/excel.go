// Package report renders scoring rankings as spreadsheets.
package report

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/spigell/resume-matcher/internal/records"
	"github.com/spigell/resume-matcher/internal/scoring"
)

const (
	SheetSummary = "Summary"
	SheetRanked  = "Ranked"

	headerColor   = "4472C4"
	approvedColor = "C6EFCE"
	rejectedColor = "FFC7CE"
)

var rankedHeaders = []string{
	"Rank", "Candidate ID", "Name", "Email", "Job ID", "Total", "Status",
	"Primary", "Secondary", "Experience", "Location", "Education",
	"Matched Primary", "Matched Secondary",
}

// WriteXLSX writes r to path, adding the .xlsx extension when missing, and
// returns the path written.
func WriteXLSX(path string, r *scoring.Ranking) (string, error) {
	if r == nil {
		return "", errors.New("ranking is required")
	}
	if !strings.HasSuffix(strings.ToLower(path), ".xlsx") {
		path += ".xlsx"
	}
	path = filepath.Clean(path)

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return "", err
	}
	if _, err := f.NewSheet(SheetRanked); err != nil {
		return "", err
	}

	if err := writeSummary(f, r); err != nil {
		return "", fmt.Errorf("summary sheet: %w", err)
	}
	if err := writeRanked(f, r); err != nil {
		return "", fmt.Errorf("ranked sheet: %w", err)
	}

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save %s: %w", path, err)
	}
	return path, nil
}

func writeSummary(f *excelize.File, r *scoring.Ranking) error {
	label, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "A", "A", 22); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetSummary, "B", "B", 40); err != nil {
		return err
	}

	rows := [][2]any{
		{"Mode", string(r.Mode)},
		{"Subject", r.Subject},
		{"Rules version", r.RulesVersion},
		{"Approval threshold", r.Threshold},
		{"Evaluated", r.Evaluated},
		{"Approved", r.Approved},
		{"Returned", len(r.Matches)},
		{"Scored at", r.ScoredAt.Format("2006-01-02 15:04:05 MST")},
	}
	for i, kv := range rows {
		row := i + 1
		if err := setRow(f, SheetSummary, row, kv[0], kv[1]); err != nil {
			return err
		}
		if err := f.SetCellStyle(SheetSummary, cell(1, row), cell(1, row), label); err != nil {
			return err
		}
	}
	return nil
}

func writeRanked(f *excelize.File, r *scoring.Ranking) error {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}
	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{headerColor}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Border:    border,
	})
	if err != nil {
		return err
	}
	approved, err := f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{approvedColor}, Pattern: 1},
		Border: border,
	})
	if err != nil {
		return err
	}
	rejected, err := f.NewStyle(&excelize.Style{
		Fill:   excelize.Fill{Type: "pattern", Color: []string{rejectedColor}, Pattern: 1},
		Border: border,
	})
	if err != nil {
		return err
	}

	last := len(rankedHeaders)
	headers := make([]any, last)
	for i, h := range rankedHeaders {
		headers[i] = h
	}
	if err := setRow(f, SheetRanked, 1, headers...); err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetRanked, cell(1, 1), cell(last, 1), header); err != nil {
		return err
	}

	for i, m := range r.Matches {
		row := i + 2
		err := setRow(f, SheetRanked, row,
			m.Rank, m.CandidateID, m.CandidateName, m.Email, m.JobID, m.Total, string(m.Status),
			m.Primary, m.Secondary, m.Experience, m.Location, m.Education,
			strings.Join(m.MatchedPrimary, ", "), strings.Join(m.MatchedSecondary, ", "),
		)
		if err != nil {
			return err
		}
		style := rejected
		if m.Status == records.StatusApproved {
			style = approved
		}
		if err := f.SetCellStyle(SheetRanked, cell(1, row), cell(last, row), style); err != nil {
			return err
		}
	}

	if len(r.Matches) > 0 {
		ref := cell(1, 1) + ":" + cell(last, len(r.Matches)+1)
		if err := f.AutoFilter(SheetRanked, ref, nil); err != nil {
			return err
		}
	}
	return f.SetPanes(SheetRanked, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		if err := f.SetCellValue(sheet, cell(col+1, row), v); err != nil {
			return err
		}
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
