package workflow

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/nuzumhq/fleet_backend/config"
	"github.com/nuzumhq/fleet_backend/models"
	"github.com/nuzumhq/fleet_backend/utils"
	"github.com/xuri/excelize/v2"
)

// BuildOperationArtifacts assembles the archive payload for an approved
// request: an Arabic summary workbook plus the raw request snapshot. Caller
// supplied photos are appended through WithThumbnails.
func BuildOperationArtifacts(ctx context.Context, request *models.OperationRequest) ([]Artifact, error) {
	vehicle, err := models.GetVehicle(ctx, request.VehicleId)
	if err != nil {
		return nil, err
	}

	workbook, err := buildSummaryWorkbook(ctx, request, vehicle)
	if err != nil {
		return nil, err
	}

	snapshot, err := utils.MarshalToJSON(request)
	if err != nil {
		return nil, err
	}

	return []Artifact{
		{LogicalName: "ملخص_العملية.xlsx", ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", Data: workbook},
		{LogicalName: "request.json", ContentType: "application/json", Data: []byte(snapshot)},
	}, nil
}

// WithThumbnails appends photo artifacts, each followed by a 200px JPEG
// thumbnail for quick preview in the archive browser.
func WithThumbnails(artifacts []Artifact, photos []Artifact) []Artifact {
	for _, photo := range photos {
		artifacts = append(artifacts, photo)
		if !strings.HasPrefix(photo.ContentType, "image/") {
			continue
		}
		thumb := utils.MakeImageThumbnail(photo.Data)
		if thumb == nil {
			continue
		}
		artifacts = append(artifacts, Artifact{
			LogicalName: "thumb_" + strings.TrimSuffix(photo.LogicalName, ".png") + ".jpg",
			ContentType: "image/jpeg",
			Data:        thumb,
		})
	}
	return artifacts
}

func buildSummaryWorkbook(ctx context.Context, request *models.OperationRequest, vehicle *models.Vehicle) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := "ملخص"
	f.SetSheetName("Sheet1", sheet)
	f.SetSheetView(sheet, 0, &excelize.ViewOptions{RightToLeft: boolPtr(true)})

	rows := [][]interface{}{
		{"رقم الطلب", request.ID},
		{"نوع العملية", request.OperationType.ArabicLabel()},
		{"رقم اللوحة", vehicle.PlateNumber},
		{"العنوان", request.Title},
		{"الوصف", request.Description},
		{"الحالة", string(request.Status)},
		{"تاريخ الطلب", utils.FormatDateArabic(request.RequestedAt)},
	}
	if request.ReviewedAt != nil {
		rows = append(rows, []interface{}{"تاريخ الاعتماد", utils.FormatDateArabic(*request.ReviewedAt)})
	}
	if request.ReviewNotes != "" {
		rows = append(rows, []interface{}{"ملاحظات المراجعة", request.ReviewNotes})
	}
	rows = append(rows, detailRows(ctx, request)...)

	for i, row := range rows {
		cell := fmt.Sprintf("A%d", i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	f.SetColWidth(sheet, "A", "A", 28)
	f.SetColWidth(sheet, "B", "B", 48)

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// detailRows adds type-specific lines to the summary sheet.
func detailRows(ctx context.Context, request *models.OperationRequest) [][]interface{} {
	db := config.GetDB().WithContext(ctx)
	var rows [][]interface{}

	switch request.OperationType {
	case models.OperationTypeHandover:
		var record models.HandoverRecord
		if err := db.First(&record, request.RelatedRecordId).Error; err == nil {
			rows = append(rows,
				[]interface{}{"نوع التسليم", record.Type.ArabicLabel()},
				[]interface{}{"السائق", record.DriverName},
				[]interface{}{"العداد", record.Mileage},
				[]interface{}{"تاريخ التسليم", utils.FormatDateArabic(record.HandoverDate)},
			)
		}
	case models.OperationTypeWorkshopRecord:
		var record models.WorkshopRecord
		if err := db.First(&record, request.RelatedRecordId).Error; err == nil {
			rows = append(rows,
				[]interface{}{"اسم الورشة", record.WorkshopName},
				[]interface{}{"التكلفة", record.Cost.StringFixed(2)},
				[]interface{}{"تاريخ الدخول", utils.FormatDateArabic(record.EntryDate)},
			)
		}
	case models.OperationTypeRental:
		var record models.RentalRecord
		if err := db.First(&record, request.RelatedRecordId).Error; err == nil {
			rows = append(rows,
				[]interface{}{"المؤجر", record.LessorName},
				[]interface{}{"الإيجار الشهري", record.MonthlyCost.StringFixed(2)},
				[]interface{}{"تاريخ البداية", utils.FormatDateArabic(record.StartDate)},
			)
		}
	case models.OperationTypeAccident:
		var record models.AccidentRecord
		if err := db.First(&record, request.RelatedRecordId).Error; err == nil {
			rows = append(rows,
				[]interface{}{"الموقع", record.Location},
				[]interface{}{"السائق", record.DriverName},
				[]interface{}{"نسبة التحمل", record.LiabilityPercentage.StringFixed(2) + "%"},
				[]interface{}{"تاريخ الحادث", utils.FormatDateArabic(record.AccidentDate)},
			)
		}
	case models.OperationTypeExternalAuth:
		var record models.AuthorizationRecord
		if err := db.First(&record, request.RelatedRecordId).Error; err == nil {
			rows = append(rows,
				[]interface{}{"السائق المفوض", record.AuthorizedDriver},
				[]interface{}{"تاريخ الانتهاء", utils.FormatDateArabic(record.ExpiryDate)},
			)
		}
	}
	return rows
}

func boolPtr(b bool) *bool { return &b }
