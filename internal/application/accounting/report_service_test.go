package accounting

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/retailhub/backend/internal/domain/accounting"
)

func newTestReportService(gw *MockGateway, now time.Time) *ReportService {
	svc := NewReportService(gw)
	svc.now = func() time.Time { return now }
	return svc
}

func TestReportService_DefaultsToYearToDate(t *testing.T) {
	now := time.Date(2026, time.October, 19, 15, 0, 0, 0, time.UTC)
	gw := new(MockGateway)
	want := &accounting.Report{Kind: accounting.ReportProfitAndLoss}
	gw.On("GetReport", mock.Anything, accounting.ReportProfitAndLoss,
		time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), now).Return(want, nil)

	got, err := newTestReportService(gw, now).GetReport(context.Background(), accounting.ReportProfitAndLoss, time.Time{}, time.Time{})

	require.NoError(t, err)
	assert.Same(t, want, got)
	gw.AssertExpectations(t)
}

func TestReportService_StartOfEndYear(t *testing.T) {
	end := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)
	gw := new(MockGateway)
	gw.On("GetReport", mock.Anything, accounting.ReportCashFlow,
		time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), end).
		Return(&accounting.Report{Kind: accounting.ReportCashFlow}, nil)

	_, err := newTestReportService(gw, time.Now()).GetReport(context.Background(), accounting.ReportCashFlow, time.Time{}, end)

	require.NoError(t, err)
	gw.AssertExpectations(t)
}

func TestReportService_Rejects(t *testing.T) {
	gw := new(MockGateway)
	svc := newTestReportService(gw, time.Now())
	start := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.GetReport(context.Background(), accounting.ReportKind("TrialBalance"), time.Time{}, time.Time{})
	assert.ErrorIs(t, err, accounting.ErrInvalidReportKind)

	_, err = svc.GetReport(context.Background(), accounting.ReportBalanceSheet, start, start.AddDate(0, 0, -1))
	assert.ErrorIs(t, err, accounting.ErrInvalidDateRange)

	gw.AssertNotCalled(t, "GetReport", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}
