package services

import (
	"fmt"
	"io"
	"log"
	"math"
	"time"

	"fleet_tracking/models"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Форматы выгрузки маршрута
const (
	RouteFormatXLSX = "xlsx"
	RouteFormatPDF  = "pdf"
)

const earthRadiusKm = 6371.0

var routeHeaders = []string{"Time", "Latitude", "Longitude", "Speed, km/h", "Heading", "Status", "Ignition", "Address"}

// HaversineKm расстояние между двумя точками по поверхности Земли
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLng := toRad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// RouteExportContentType MIME-тип и расширение файла выгрузки
func RouteExportContentType(format string) (string, string, error) {
	switch format {
	case RouteFormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "xlsx", nil
	case RouteFormatPDF:
		return "application/pdf", "pdf", nil
	}
	return "", "", fmt.Errorf("неподдерживаемый формат выгрузки: %s", format)
}

// ExportRoute пишет маршрут устройства в w в формате xlsx или pdf
func ExportRoute(w io.Writer, format string, device *models.TrackingDevice, records []models.LocationRecord, from, to time.Time) error {
	switch format {
	case RouteFormatXLSX:
		return exportRouteExcel(w, device, records)
	case RouteFormatPDF:
		return exportRoutePDF(w, device, records, from, to)
	}
	return fmt.Errorf("неподдерживаемый формат выгрузки: %s", format)
}

func routeRow(record models.LocationRecord) []interface{} {
	return []interface{}{
		record.PositionTime.UTC().Format(VendorTimeLayout),
		record.Latitude,
		record.Longitude,
		record.Speed,
		record.Heading,
		string(record.MovementStatus),
		record.Ignition,
		record.Address,
	}
}

func exportRouteExcel(w io.Writer, device *models.TrackingDevice, records []models.LocationRecord) error {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.Printf("Failed to close Excel file: %v", err)
		}
	}()

	sheetName := "Route"
	f.SetSheetName("Sheet1", sheetName)

	for i, header := range routeHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, header)
	}

	for rowIdx, record := range records {
		for colIdx, value := range routeRow(record) {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			f.SetCellValue(sheetName, cell, value)
		}
	}

	endCell, _ := excelize.CoordinatesToCellName(len(routeHeaders), len(records)+1)
	if err := f.AutoFilter(sheetName, "A1:"+endCell, []excelize.AutoFilterOptions{}); err != nil {
		return fmt.Errorf("ошибка автофильтра: %w", err)
	}

	summary := SummarizeRoute(records)
	summarySheet := "Summary"
	if _, err := f.NewSheet(summarySheet); err != nil {
		return err
	}
	f.SetCellValue(summarySheet, "A1", "Device")
	f.SetCellValue(summarySheet, "B1", device.DisplayName())
	f.SetCellValue(summarySheet, "A2", "Points")
	f.SetCellValue(summarySheet, "B2", summary.Points)
	f.SetCellValue(summarySheet, "A3", "Distance, km")
	f.SetCellValue(summarySheet, "B3", math.Round(summary.DistanceKm*100)/100)
	f.SetCellValue(summarySheet, "A4", "Max speed, km/h")
	f.SetCellValue(summarySheet, "B4", summary.MaxSpeed)

	_, err := f.WriteTo(w)
	return err
}

func exportRoutePDF(w io.Writer, device *models.TrackingDevice, records []models.LocationRecord, from, to time.Time) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 14)
	pdf.Cell(0, 10, tr(fmt.Sprintf("Route: %s", device.DisplayName())))
	pdf.Ln(8)

	summary := SummarizeRoute(records)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("%s - %s UTC, points: %d, distance: %.2f km, max speed: %.0f km/h",
		from.UTC().Format(VendorTimeLayout), to.UTC().Format(VendorTimeLayout),
		summary.Points, summary.DistanceKm, summary.MaxSpeed))
	pdf.Ln(10)

	widths := []float64{38, 24, 24, 22, 18, 20, 16, 110}
	pdf.SetFont("Arial", "B", 8)
	for i, header := range routeHeaders {
		pdf.CellFormat(widths[i], 7, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 7)
	for _, record := range records {
		for i, value := range routeRow(record) {
			text := fmt.Sprintf("%v", value)
			if f, ok := value.(float64); ok {
				text = fmt.Sprintf("%.5f", f)
				if i >= 3 {
					text = fmt.Sprintf("%.0f", f)
				}
			}
			if len(text) > 70 {
				text = text[:70]
			}
			pdf.CellFormat(widths[i], 6, tr(text), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}

	return pdf.Output(w)
}
