package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/model"
)

// fakeHouseholdRepo answers from fixed data and records the queries it saw.
type fakeHouseholdRepo struct {
	records  map[int64]*model.Result
	top      []model.DepartmentCount
	count    int64
	queried  []int64
	topLimit int
}

func (f *fakeHouseholdRepo) FetchHouseholdRecords(_ context.Context, n int64) (*model.Result, error) {
	f.queried = append(f.queried, n)
	if r, ok := f.records[n]; ok {
		return r, nil
	}
	return &model.Result{Columns: []string{"HSHD_NUM"}, Rows: [][]any{}}, nil
}

func (f *fakeHouseholdRepo) TopDepartments(_ context.Context, limit int) ([]model.DepartmentCount, error) {
	f.topLimit = limit
	return f.top, nil
}

func (f *fakeHouseholdRepo) HouseholdCount(context.Context) (int64, error) {
	return f.count, nil
}

func newFakeHouseholdRepo() *fakeHouseholdRepo {
	return &fakeHouseholdRepo{
		records: map[int64]*model.Result{
			100: {Columns: []string{"HSHD_NUM", "PRODUCT_NUM"}, Rows: [][]any{{int64(100), int64(55)}}},
		},
		top:   []model.DepartmentCount{{Department: "FOOD", Count: 3}},
		count: 1,
	}
}

func TestLookup(t *testing.T) {
	repo := newFakeHouseholdRepo()
	svc := NewHouseholdService(repo, discardLogger())

	res, err := svc.Lookup(context.Background(), " 100 ")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Len())

	res, err = svc.Lookup(context.Background(), "999")
	require.NoError(t, err)
	assert.Equal(t, 0, res.Len())

	assert.Equal(t, []int64{100, 999}, repo.queried)
}

func TestLookup_RejectsBeforeQuerying(t *testing.T) {
	for _, raw := range []string{"", "   ", "abc", "10; DROP TABLE users", "1.5"} {
		t.Run(raw, func(t *testing.T) {
			repo := newFakeHouseholdRepo()
			svc := NewHouseholdService(repo, discardLogger())

			_, err := svc.Lookup(context.Background(), raw)
			require.ErrorIs(t, err, apperror.ErrValidation)
			assert.Empty(t, repo.queried)
		})
	}
}

func TestDashboard(t *testing.T) {
	repo := newFakeHouseholdRepo()
	svc := NewHouseholdService(repo, discardLogger())

	d, err := svc.Dashboard(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.HouseholdCount)
	assert.Equal(t, repo.top, d.TopDepartments)
	assert.Equal(t, DefaultDepartmentLimit, repo.topLimit)

	_, err = svc.Dashboard(context.Background(), MaxDepartmentLimit+1)
	require.ErrorIs(t, err, apperror.ErrValidation)
}
