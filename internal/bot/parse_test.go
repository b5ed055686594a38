package bot

import (
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deadline-planner/internal/model"
	"deadline-planner/internal/service"
)

func TestParseNewTask(t *testing.T) {
	loc := time.FixedZone("UTC-10", -10*3600)

	tests := []struct {
		name     string
		args     string
		title    string
		deadline *time.Time
		wantErr  bool
	}{
		{name: "title only", args: "  Купить молоко ", title: "Купить молоко"},
		{
			name:     "with deadline",
			args:     "Отчёт | 30.11.2025 18:00",
			title:    "Отчёт",
			deadline: ptr(time.Date(2025, 11, 30, 18, 0, 0, 0, loc)),
		},
		{
			name:     "date only",
			args:     "Отчёт|30.11.2025",
			title:    "Отчёт",
			deadline: ptr(time.Date(2025, 11, 30, 23, 59, 0, 0, loc)),
		},
		{name: "empty", args: "   ", wantErr: true},
		{name: "bad date", args: "Отчёт | tomorrow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, deadline, err := parseNewTask(tt.args, loc)
			if tt.wantErr {
				assert.ErrorIs(t, err, service.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.title, title)
			if tt.deadline == nil {
				assert.Nil(t, deadline)
				return
			}
			require.NotNil(t, deadline)
			assert.True(t, tt.deadline.Equal(*deadline), "got %s", deadline)
		})
	}
}

func TestParseNewTaskDateOnlyAcrossDST(t *testing.T) {
	adak, err := time.LoadLocation("America/Adak")
	require.NoError(t, err)

	for _, day := range []string{"09.03.2025", "02.11.2025"} {
		t.Run(day, func(t *testing.T) {
			_, deadline, err := parseNewTask("Налоги | "+day, adak)
			require.NoError(t, err)
			require.NotNil(t, deadline)

			local := deadline.In(adak)
			assert.Equal(t, day, local.Format(dateLayout))
			assert.Equal(t, 23, local.Hour())
			assert.Equal(t, 59, local.Minute())
		})
	}
}

func TestParseTaskID(t *testing.T) {
	id := model.NewID()

	got, err := parseTaskID(" " + id + " ")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = parseTaskID("")
	assert.ErrorIs(t, err, service.ErrValidation)
	_, err = parseTaskID("42")
	assert.ErrorIs(t, err, service.ErrValidation)
}

func ptr(t time.Time) *time.Time { return &t }
