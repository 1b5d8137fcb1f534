package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/model"
	"github.com/sakif/retail-analytics/internal/repository"
)

const (
	DefaultDepartmentLimit = 10
	MaxDepartmentLimit     = 100
)

// HouseholdService answers the read-side questions: one household's
// purchase history and the dashboard aggregates.
type HouseholdService struct {
	households repository.HouseholdRepository
	logger     *slog.Logger
}

func NewHouseholdService(households repository.HouseholdRepository, logger *slog.Logger) *HouseholdService {
	return &HouseholdService{households: households, logger: logger}
}

// ParseHouseholdNumber validates the raw household number typed by the user.
func ParseHouseholdNumber(raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, apperror.ValidationFailed("hshdNum", "household number is required")
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperror.ValidationFailed("hshdNum", fmt.Sprintf("household number must be an integer, got %q", raw))
	}
	return n, nil
}

// Lookup returns every purchase of one household, joined with the
// household and product details. The input is validated before the store
// is queried. A household with no purchases is an empty result.
func (s *HouseholdService) Lookup(ctx context.Context, raw string) (*model.Result, error) {
	n, err := ParseHouseholdNumber(raw)
	if err != nil {
		return nil, err
	}

	res, err := s.households.FetchHouseholdRecords(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("service/household: fetching household %d: %w", n, err)
	}

	s.logger.Debug("household lookup", slog.Int64("hshdNum", n), slog.Int("rows", res.Len()))
	return res, nil
}

// Dashboard is the aggregate view shown after login.
type Dashboard struct {
	HouseholdCount int64                   `json:"householdCount"`
	TopDepartments []model.DepartmentCount `json:"topDepartments"`
}

// Dashboard returns the household count and the limit largest departments.
// limit 0 means DefaultDepartmentLimit.
func (s *HouseholdService) Dashboard(ctx context.Context, limit int) (*Dashboard, error) {
	switch {
	case limit == 0:
		limit = DefaultDepartmentLimit
	case limit < 0 || limit > MaxDepartmentLimit:
		return nil, apperror.ValidationFailed("limit", fmt.Sprintf("limit must be between 1 and %d", MaxDepartmentLimit))
	}

	count, err := s.households.HouseholdCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("service/household: counting households: %w", err)
	}
	top, err := s.households.TopDepartments(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("service/household: top departments: %w", err)
	}

	return &Dashboard{HouseholdCount: count, TopDepartments: top}, nil
}
