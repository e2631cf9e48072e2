package service

import (
	"context"
	"regdesk/internal/clock"
	"regdesk/internal/repository"
)

type ReportService interface {
	ProductStatus(ctx context.Context) ([]*repository.ProductStatus, error)
}

type reportServiceImpl struct {
	reports repository.ReportRepository
	clock   clock.Clock
}

func NewReportService(reports repository.ReportRepository, clk clock.Clock) ReportService {
	return &reportServiceImpl{
		reports: reports,
		clock:   clk,
	}
}

func (s *reportServiceImpl) ProductStatus(ctx context.Context) ([]*repository.ProductStatus, error) {
	return s.reports.ProductStatus(ctx, s.clock.Now())
}
