package export

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"hotelbook/internal/domain"
	"hotelbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Bookings"

var headers = []string{"Booking", "User", "Status", "Room", "Check-in", "Check-out", "Nights", "Price", "Total"}

// BookingSource lists bookings whose stay overlaps a range, either all of
// them or those touching a set of properties.
type BookingSource interface {
	GetBookingsOverlapping(ctx context.Context, stay models.DateRange) ([]*models.Booking, error)
	GetPropertyBookingsOverlapping(ctx context.Context, stay models.DateRange, propertyIDs []int64) ([]*models.Booking, error)
}

// BookingExporter renders bookings into xlsx workbooks, one row per booked
// room. Bookings whose rooms were already released get a single row with an
// empty room column. Super admins see every property, staff only their own.
type BookingExporter struct {
	source BookingSource
	dir    string
	logger *zerolog.Logger
}

func NewBookingExporter(source BookingSource, dir string, logger *zerolog.Logger) *BookingExporter {
	return &BookingExporter{source: source, dir: dir, logger: logger}
}

// Write streams the workbook for stay, as seen by actor, into w.
func (e *BookingExporter) Write(ctx context.Context, w io.Writer, stay models.DateRange, actor models.Actor) error {
	f, err := e.build(ctx, stay, actor)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %w", err)
	}
	return nil
}

// SaveFile stores the workbook under the export directory and returns its path.
func (e *BookingExporter) SaveFile(ctx context.Context, stay models.DateRange, actor models.Actor) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f, err := e.build(ctx, stay, actor)
	if err != nil {
		return "", err
	}
	defer f.Close()

	filePath := filepath.Join(e.dir, FileName(stay))
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Msg("Excel file created")
	return filePath, nil
}

func FileName(stay models.DateRange) string {
	return fmt.Sprintf("bookings_%s_to_%s.xlsx", stay.CheckIn, stay.CheckOut)
}

func (e *BookingExporter) load(ctx context.Context, stay models.DateRange, actor models.Actor) ([]*models.Booking, error) {
	switch {
	case actor.IsSuperAdmin():
		return e.source.GetBookingsOverlapping(ctx, stay)
	case actor.Role == models.RoleStaff:
		return e.source.GetPropertyBookingsOverlapping(ctx, stay, actor.PropertyIDs)
	default:
		return nil, fmt.Errorf("export as %s: %w", actor.Role, domain.ErrForbidden)
	}
}

func (e *BookingExporter) build(ctx context.Context, stay models.DateRange, actor models.Actor) (*excelize.File, error) {
	bookings, err := e.load(ctx, stay, actor)
	if err != nil {
		return nil, fmt.Errorf("error getting bookings: %w", err)
	}

	f := excelize.NewFile()
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	_ = f.DeleteSheet("Sheet1")

	_ = f.SetCellValue(sheetName, "A1", fmt.Sprintf("Period: %s - %s", stay.CheckIn, stay.CheckOut))
	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	lastCol, _ := excelize.ColumnNumberToName(len(headers))
	_ = f.MergeCell(sheetName, "A1", lastCol+"1")
	_ = f.SetCellStyle(sheetName, "A1", "A1", titleStyle)

	writeHeaders(f)

	row := 3
	for _, b := range bookings {
		if len(b.Rooms) == 0 {
			writeRow(f, row, b, nil)
			row++
			continue
		}
		for i := range b.Rooms {
			writeRow(f, row, b, &b.Rooms[i])
			row++
		}
	}

	_ = f.SetColWidth(sheetName, "A", lastCol, 14)
	e.logger.Debug().Int("bookings", len(bookings)).Int("rows", row-3).Str("range", stay.String()).Msg("Bookings export built")
	return f, nil
}

func writeHeaders(f *excelize.File) {
	style, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		_ = f.SetCellValue(sheetName, cell, h)
		_ = f.SetCellStyle(sheetName, cell, cell, style)
	}
}

func writeRow(f *excelize.File, row int, b *models.Booking, room *models.BookedRoom) {
	values := []interface{}{
		b.ID, b.UserID, string(b.Status), "", b.CheckIn.String(), b.CheckOut.String(),
		b.Range().Nights(), "", b.TotalAmount,
	}
	if room != nil {
		values[3] = room.RoomID
		values[7] = room.Price
	}
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheetName, cell, v)
	}
}
