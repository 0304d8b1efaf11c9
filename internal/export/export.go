// Package export writes a topic's assembled sequence to a spreadsheet for
// pre-publish review.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-content/internal/content"
)

// Sheet names in the exported workbook.
const (
	SequenceSheet  = "sequence"
	IntegritySheet = "integrity"
)

var sequenceHeader = []any{"position", "display_order", "role", "content_type", "id", "parent_id", "status", "title"}

// WriteSequence writes views and the integrity report as an xlsx workbook.
func WriteSequence(w io.Writer, views []content.View, report content.IntegrityReport) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SequenceSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := setRow(f, SequenceSheet, 1, sequenceHeader); err != nil {
		return err
	}
	for i, v := range views {
		row := []any{
			i + 1,
			v.DisplayOrder,
			string(v.Role),
			string(v.Item.ContentType),
			v.Item.ID,
			v.Item.ParentContentID,
			string(v.Item.Status),
			title(v.Item),
		}
		if err := setRow(f, SequenceSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetPanes(SequenceSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.NewSheet(IntegritySheet); err != nil {
		return fmt.Errorf("add integrity sheet: %w", err)
	}
	status := "ok"
	if !report.OK {
		status = "violations"
	}
	if err := setRow(f, IntegritySheet, 1, []any{"topic_id", report.TopicID}); err != nil {
		return err
	}
	if err := setRow(f, IntegritySheet, 2, []any{"status", status}); err != nil {
		return err
	}
	for i, msg := range report.Violations {
		if err := setRow(f, IntegritySheet, i+3, []any{"violation", msg}); err != nil {
			return err
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}

// title picks a short label for an item from its content.
func title(it content.Item) string {
	if s := it.Text("title"); s != "" {
		return s
	}
	s := it.Text(content.FieldFullText)
	if r := []rune(s); len(r) > 80 {
		return string(r[:80]) + "…"
	}
	return s
}
