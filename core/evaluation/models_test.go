package evaluation

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
)

func TestNewProgress(t *testing.T) {
	tests := []struct {
		name     string
		counts   map[string]int
		want     Progress
		wantDone bool
	}{
		{name: "empty", counts: map[string]int{}, want: Progress{}, wantDone: true},
		{
			name:   "running",
			counts: map[string]int{StatusPending: 1, StatusProcessing: 1, StatusCompleted: 1},
			want:   Progress{Total: 3, Pending: 1, Processing: 1, Completed: 1, PercentDone: 33.33},
		},
		{
			name:     "done",
			counts:   map[string]int{StatusCompleted: 5, StatusFailed: 1, "unknown": 4},
			want:     Progress{Total: 6, Completed: 5, Failed: 1, PercentDone: 100},
			wantDone: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewProgress(tt.counts)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantDone, got.Done())
		})
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		score, total, want float64
	}{
		{score: 7.5, total: 10, want: 7.5},
		{score: 12, total: 10, want: 10},
		{score: -1, total: 10, want: 0},
		{score: math.NaN(), total: 10, want: 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampScore(tt.score, tt.total), "clampScore(%g, %g)", tt.score, tt.total)
	}
}

func TestEvaluation_Percent(t *testing.T) {
	assert.Zero(t, Evaluation{TotalMarks: 10}.Percent(), "no score")
	assert.Zero(t, Evaluation{Score: null.Float64From(5)}.Percent(), "no total")
	assert.Equal(t, 75.0, Evaluation{Score: null.Float64From(7.5), TotalMarks: 10}.Percent())
}

func TestQueryFilter_Matches(t *testing.T) {
	ev := Evaluation{TestID: "t1", StudentID: "s1", Status: StatusFailed}

	assert.True(t, QueryFilter{}.Matches(ev))
	assert.True(t, QueryFilter{TestID: "t1", Status: []string{StatusPending, StatusFailed}}.Matches(ev))
	assert.False(t, QueryFilter{TestID: "t2"}.Matches(ev))
	assert.False(t, QueryFilter{StudentID: "s2"}.Matches(ev))
	assert.False(t, QueryFilter{Status: []string{StatusCompleted}}.Matches(ev))
}

func TestResults_ValueScan(t *testing.T) {
	v, err := Results(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)

	var r Results
	require.NoError(t, r.Scan(`[{"question_number": 2, "awarded": 1.5, "max": 2, "comment": "ok"}]`))
	assert.Equal(t, Results{{QuestionNumber: 2, Awarded: 1.5, Max: 2, Comment: "ok"}}, r)

	require.NoError(t, r.Scan(nil))
	assert.Equal(t, Results{}, r)

	assert.Error(t, r.Scan(42))
}
