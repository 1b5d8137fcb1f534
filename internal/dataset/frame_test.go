package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV(t *testing.T) {
	in := "HSHD_NUM,BASKET_NUM,PURCHASE_\n100,1,17-AUG-18\n200,2,18-AUG-18\n"

	f, err := ReadCSV(strings.NewReader(in))

	require.NoError(t, err)
	assert.Equal(t, []string{"HSHD_NUM", "BASKET_NUM", "PURCHASE_"}, f.Columns)
	assert.Equal(t, 2, f.Len())
	assert.Equal(t, []string{"200", "2", "18-AUG-18"}, f.Rows[1])
}

func TestReadCSV_RaggedRows(t *testing.T) {
	in := "A,B,C\n1,2\n1,2,3,4\n"

	f, err := ReadCSV(strings.NewReader(in))

	require.NoError(t, err)
	assert.Equal(t, [][]string{{"1", "2", ""}, {"1", "2", "3"}}, f.Rows)
}

func TestReadCSV_StripsBOM(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("\ufeffHSHD_NUM\n1\n"))

	require.NoError(t, err)
	assert.Equal(t, "HSHD_NUM", f.Columns[0])
}

func TestReadCSV_Empty(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""))

	assert.Error(t, err)
}

func TestReadCSV_HeaderOnly(t *testing.T) {
	f, err := ReadCSV(strings.NewReader("HSHD_NUM,L\n"))

	require.NoError(t, err)
	assert.Equal(t, 0, f.Len())
}

func TestHead(t *testing.T) {
	f := &Frame{Columns: []string{"A"}, Rows: [][]string{{"1"}, {"2"}, {"3"}}}

	assert.Equal(t, 2, f.Head(2).Len())
	assert.Equal(t, 3, f.Head(0).Len(), "0 means no cap")
	assert.Equal(t, 3, f.Head(10).Len())
}

func TestRename(t *testing.T) {
	f := &Frame{Columns: []string{"HSHD_NUM", "PURCHASE_"}}

	assert.True(t, f.Rename("PURCHASE_", "PURCHASE_DATE"))
	assert.Equal(t, []string{"HSHD_NUM", "PURCHASE_DATE"}, f.Columns)

	assert.False(t, f.Rename("MISSING", "X"))

	g := &Frame{Columns: []string{"PURCHASE_", "PURCHASE_DATE"}}
	assert.False(t, g.Rename("PURCHASE_", "PURCHASE_DATE"), "target already present")
}
