package export

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/roach88/reqsync/internal/model"
	"github.com/roach88/reqsync/internal/testutil"
)

func TestWrite_RequisitionRows(t *testing.T) {
	s := testutil.Requisitions(2)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, s))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{SheetRequisitions, SheetItems}, f.GetSheetList())

	rows, err := f.GetRows(SheetRequisitions)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Number", rows[0][0])
	assert.Equal(t, s[0].RequisitionNumber, rows[1][0])
	assert.Equal(t, s[1].RequisitionNumber, rows[2][0])
	assert.Equal(t, s[0].Fitter, rows[1][6])
}

func TestWrite_ItemRows(t *testing.T) {
	qty, err := model.NewQuantity("2.5")
	require.NoError(t, err)
	r := model.Requisition{
		ID: "a", RequisitionNumber: "R-1000", Type: model.TypeProduction,
		Services: []model.ServiceItem{{Environment: "Kitchen", Description: "cabinet", Quantity: qty}},
		DeliveryItems: []model.DeliveryItem{
			{Description: "doors", Quantity: model.QuantityOf(4), Delivered: true},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, model.Snapshot{r}))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetItems)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"R-1000", "service", "", "Kitchen", "cabinet", "2.5"}, rows[1][:6])
	assert.Equal(t, []string{"R-1000", "delivery", "", "", "doors", "4", "", "", "yes"}, rows[2])

	main, err := f.GetRows(SheetRequisitions)
	require.NoError(t, err)
	assert.Equal(t, "Production", main[1][1])
}

func TestSaveAs_EmptySnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, SaveAs(path, nil))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetRequisitions)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
