package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/certtrack/certificate-service/internal/models"
	"github.com/certtrack/certificate-service/internal/repositories"
)

const (
	CertificatesSheet = "Certificates"
	WorkloadSheet     = "Workload"

	exportBatchSize = 500
)

var (
	certificateHeaders = []interface{}{
		"ID", "Title", "Organization", "Owner", "Owner Email", "Reviewer",
		"Status", "Issue Date", "Expiry Date", "Submitted At", "Reviewed At", "Remarks",
	}
	workloadHeaders = []interface{}{
		"Reviewer", "Username", "Email", "Active", "Pending", "Total Resolved", "Status",
	}
)

type exportService struct {
	repo     repositories.Repository
	balancer WorkloadBalancer
	logger   *slog.Logger
	now      func() time.Time
}

func NewExportService(repo repositories.Repository, balancer WorkloadBalancer, logger *slog.Logger) ExportService {
	return &exportService{repo: repo, balancer: balancer, logger: logger, now: time.Now}
}

// ExportCertificates renders every certificate matching req (pagination is
// ignored) and the reviewer workload as an xlsx workbook
func (s *exportService) ExportCertificates(ctx context.Context, req *CertificateListRequest) ([]byte, error) {
	if req == nil {
		req = &CertificateListRequest{}
	}
	filters := repositories.CertificateFilters{}
	if req.Status != "" {
		status := models.CertificateStatus(req.Status)
		if !status.IsValid() {
			return nil, validationError("status", "must be one of: pending accepted rejected", req.Status, "oneof")
		}
		filters.Status = &status
	}
	if req.OwnerID != "" {
		filters.OwnerID = &req.OwnerID
	}
	if req.ReviewerID != "" {
		filters.ReviewerID = &req.ReviewerID
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			s.logger.Warn("Failed to close workbook", "error", err)
		}
	}()

	if err := f.SetSheetName("Sheet1", CertificatesSheet); err != nil {
		return nil, fmt.Errorf("failed to prepare workbook: %w", err)
	}
	rows, err := s.writeCertificates(ctx, f, filters)
	if err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(WorkloadSheet); err != nil {
		return nil, fmt.Errorf("failed to prepare workbook: %w", err)
	}
	if err := s.writeWorkload(ctx, f); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to render workbook: %w", err)
	}

	s.logger.Info("Certificates exported", "rows", rows, "bytes", buf.Len())
	return buf.Bytes(), nil
}

func (s *exportService) writeCertificates(ctx context.Context, f *excelize.File, filters repositories.CertificateFilters) (int, error) {
	if err := writeHeader(f, CertificatesSheet, certificateHeaders); err != nil {
		return 0, err
	}

	today := currentDate(s.now)
	row := 2
	for offset := 0; ; offset += exportBatchSize {
		filters.Limit, filters.Offset = exportBatchSize, offset
		batch, total, err := s.repo.Certificate().List(ctx, filters)
		if err != nil {
			return 0, fmt.Errorf("failed to list certificates: %w", err)
		}

		for _, c := range batch {
			resp := toCertificateResponse(c, today)
			values := []interface{}{
				resp.ID, resp.Title, resp.Organization,
				summaryName(resp.Owner), summaryEmail(resp.Owner), summaryName(resp.Reviewer),
				string(resp.Status), resp.IssueDate, derefString(resp.ExpiryDate),
				resp.CreatedAt.UTC().Format(time.RFC3339), formatTimePtr(resp.ReviewedAt), derefString(resp.Remarks),
			}
			if err := setRow(f, CertificatesSheet, row, values); err != nil {
				return 0, err
			}
			row++
		}

		if len(batch) < exportBatchSize || int64(offset+len(batch)) >= total {
			break
		}
	}
	return row - 2, nil
}

func (s *exportService) writeWorkload(ctx context.Context, f *excelize.File) error {
	if err := writeHeader(f, WorkloadSheet, workloadHeaders); err != nil {
		return err
	}

	entries, err := s.balancer.Snapshot(ctx)
	if err != nil {
		return err
	}
	for i, e := range entries {
		values := []interface{}{e.Name, e.Username, e.Email, e.Active, e.PendingCount, e.Resolved, string(e.Status)}
		if err := setRow(f, WorkloadSheet, i+2, values); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []interface{}) error {
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write %s row %d: %w", sheet, row, err)
	}
	return nil
}

func summaryName(a *AccountSummary) string {
	if a == nil {
		return ""
	}
	return a.Name
}

func summaryEmail(a *AccountSummary) string {
	if a == nil {
		return ""
	}
	return a.Email
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
