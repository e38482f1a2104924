package sheets

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapisly/internal/model"
)

func TestFilterActive(t *testing.T) {
	appointments := []model.Appointment{
		{ID: 1, Status: model.StatusScheduled},
		{ID: 2, Status: model.StatusConfirmed},
		{ID: 3, Status: model.StatusCancelled},
		{ID: 4, Status: model.StatusCompleted},
	}

	active := filterActive(appointments)

	require.Len(t, active, 3)
	for _, a := range active {
		assert.NotEqual(t, model.StatusCancelled, a.Status)
	}
}

func TestAppointmentRowValues(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Moscow")
	require.NoError(t, err)

	payment := int64(2000)
	a := &model.Appointment{
		ID:            123,
		StartTime:     time.Date(2030, 6, 3, 7, 0, 0, 0, time.UTC), // 10:00 MSK
		EndTime:       time.Date(2030, 6, 3, 8, 0, 0, 0, time.UTC),
		Status:        model.StatusCompleted,
		PaymentAmount: &payment,
	}
	client := &model.Client{Name: "Olga", Phone: "+79001234567"}
	service := &model.Service{Name: "Manicure"}

	row := appointmentRowValues(loc, a, client, service)

	require.Len(t, row, 8)
	assert.EqualValues(t, 123, row[0])
	assert.Equal(t, "03.06.2030", row[1])
	assert.Equal(t, "10:00", row[2], "time rendered in the master's zone")
	assert.Equal(t, "Olga", row[3])
	assert.Equal(t, "2000", row[7])
}

func TestSheetTitle(t *testing.T) {
	assert.Equal(t, "Anna", sheetTitle(&model.Master{Name: "Anna"}))
	assert.Equal(t, "master-7", sheetTitle(&model.Master{ID: 7}))

	long := &model.Master{Name: "a-very-long-studio-name-that-exceeds-the-sheet-limit"}
	assert.Len(t, sheetTitle(long), 31)
}
