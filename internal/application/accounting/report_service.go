package accounting

import (
	"context"
	"time"

	"github.com/retailhub/backend/internal/domain/accounting"
)

// ReportService reads financial reports from the accounting platform
type ReportService struct {
	reports accounting.ReportGateway
	now     func() time.Time
}

// NewReportService creates a new ReportService
func NewReportService(reports accounting.ReportGateway) *ReportService {
	return &ReportService{reports: reports, now: time.Now}
}

// GetReport fetches a report for [start, end]. A zero start selects the
// first day of end's year, a zero end selects today.
func (s *ReportService) GetReport(ctx context.Context, kind accounting.ReportKind, start, end time.Time) (*accounting.Report, error) {
	if !kind.IsValid() {
		return nil, accounting.ErrInvalidReportKind
	}
	if end.IsZero() {
		end = s.now()
	}
	if start.IsZero() {
		start = time.Date(end.Year(), time.January, 1, 0, 0, 0, 0, end.Location())
	}
	if start.After(end) {
		return nil, accounting.ErrInvalidDateRange
	}
	return s.reports.GetReport(ctx, kind, start, end)
}
