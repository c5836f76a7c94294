// Package export writes requisitions to an .xlsx workbook.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/roach88/reqsync/internal/model"
)

// Sheet names.
const (
	SheetRequisitions = "Requisitions"
	SheetItems        = "Items"
)

var requisitionHeadings = []any{
	"Number", "Type", "Created at", "Created by", "Client", "Order",
	"Fitter", "Status", "Services", "Delivery items", "Photos", "Notes",
}

var itemHeadings = []any{
	"Number", "Kind", "Code", "Environment", "Description", "Quantity", "Unit", "Color", "Delivered",
}

// Workbook builds a workbook with one row per requisition and one row per
// line item. The caller owns the returned file and must Close it.
func Workbook(s model.Snapshot) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetRequisitions); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(SheetItems); err != nil {
		f.Close()
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}

	if err := writeRequisitions(f, s, bold); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeItems(f, s, bold); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, s model.Snapshot) error {
	f, err := Workbook(s)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()
	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// SaveAs builds the workbook and saves it to path.
func SaveAs(path string, s model.Snapshot) error {
	f, err := Workbook(s)
	if err != nil {
		return fmt.Errorf("build workbook: %w", err)
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeRequisitions(f *excelize.File, s model.Snapshot, headerStyle int) error {
	if err := header(f, SheetRequisitions, requisitionHeadings, headerStyle); err != nil {
		return err
	}
	for i, r := range s {
		row := []any{
			r.RequisitionNumber, typeLabel(r.Type), r.CreatedAt, r.CreatedBy,
			r.ClientName, r.OrderNumber, r.Fitter, r.Status,
			len(r.Services), len(r.DeliveryItems), len(r.Photos), r.Notes,
		}
		if err := setRow(f, SheetRequisitions, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeItems(f *excelize.File, s model.Snapshot, headerStyle int) error {
	if err := header(f, SheetItems, itemHeadings, headerStyle); err != nil {
		return err
	}
	rowNo := 2
	for _, r := range s {
		for _, it := range r.Services {
			row := []any{
				r.RequisitionNumber, "service", it.Code, it.Environment, it.Description,
				it.Quantity.InexactFloat64(), it.Unit, it.Color, "",
			}
			if err := setRow(f, SheetItems, rowNo, row); err != nil {
				return err
			}
			rowNo++
		}
		for _, it := range r.DeliveryItems {
			row := []any{
				r.RequisitionNumber, "delivery", "", "", it.Description,
				it.Quantity.InexactFloat64(), "", "", yesNo(it.Delivered),
			}
			if err := setRow(f, SheetItems, rowNo, row); err != nil {
				return err
			}
			rowNo++
		}
	}
	return nil
}

func header(f *excelize.File, sheet string, headings []any, style int) error {
	if err := setRow(f, sheet, 1, headings); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headings), 1)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last, style)
}

func setRow(f *excelize.File, sheet string, rowNo int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNo)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, rowNo, err)
	}
	return nil
}

func typeLabel(t model.RequisitionType) string {
	switch t {
	case model.TypeFactory:
		return "Factory"
	case model.TypeProduction:
		return "Production"
	}
	return string(t)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
