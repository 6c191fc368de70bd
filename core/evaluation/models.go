package evaluation

import (
	"database/sql/driver"
	"encoding/json"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"
)

// Evaluation statuses
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

var Statuses = []string{StatusPending, StatusProcessing, StatusCompleted, StatusFailed}

// Result is the mark awarded for one question.
type Result struct {
	QuestionNumber int     `json:"question_number"`
	Awarded        float64 `json:"awarded"`
	Max            float64 `json:"max"`
	Comment        string  `json:"comment"`
}

// Results is stored as a JSONB array.
type Results []Result

func (r Results) Value() (driver.Value, error) {
	if r == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(r)
}

func (r *Results) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*r = Results{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return errors.Errorf("cannot scan %T into Results", src)
	}
	return json.Unmarshal(data, r)
}

// Evaluation is the AI assisted marking of one answer sheet.
type Evaluation struct {
	ID            string       `json:"id" db:"id"`
	TestID        string       `json:"test_id" db:"test_id"`
	StudentID     string       `json:"student_id" db:"student_id"`
	PaperID       string       `json:"paper_id" db:"paper_id"`
	Status        string       `json:"status" db:"status"`
	Attempts      int          `json:"attempts" db:"attempts"`
	MaxAttempts   int          `json:"max_attempts" db:"max_attempts"`
	Score         null.Float64 `json:"score" db:"score"`
	TotalMarks    float64      `json:"total_marks" db:"total_marks"`
	Feedback      string       `json:"feedback" db:"feedback"`
	Results       Results      `json:"results" db:"results"`
	LastError     string       `json:"last_error" db:"last_error"`
	NextAttemptAt time.Time    `json:"next_attempt_at" db:"next_attempt_at"`
	StartedAt     null.Time    `json:"started_at" db:"started_at"`
	CompletedAt   null.Time    `json:"completed_at" db:"completed_at"`
	CreatedAt     time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at" db:"updated_at"`
}

// IsActive reports whether the evaluation is queued or running.
func (ev Evaluation) IsActive() bool {
	return ev.Status == StatusPending || ev.Status == StatusProcessing
}

// Percent returns the score as a percentage of the total marks.
func (ev Evaluation) Percent() float64 {
	if !ev.Score.Valid || ev.TotalMarks <= 0 {
		return 0
	}
	return ev.Score.Float64 / ev.TotalMarks * 100
}

type QueryFilter struct {
	TestID    string   `query:"test_id"`
	StudentID string   `query:"student_id"`
	Status    []string `query:"status"`
}

func (qf QueryFilter) Matches(ev Evaluation) bool {
	if qf.TestID != "" && ev.TestID != qf.TestID {
		return false
	}
	if qf.StudentID != "" && ev.StudentID != qf.StudentID {
		return false
	}
	if len(qf.Status) == 0 {
		return true
	}
	for _, s := range qf.Status {
		if s == ev.Status {
			return true
		}
	}
	return false
}

// Progress sums up the evaluations of a test.
type Progress struct {
	Total       int     `json:"total"`
	Pending     int     `json:"pending"`
	Processing  int     `json:"processing"`
	Completed   int     `json:"completed"`
	Failed      int     `json:"failed"`
	PercentDone float64 `json:"percent_done"`
}

func NewProgress(counts map[string]int) Progress {
	p := Progress{
		Pending:    counts[StatusPending],
		Processing: counts[StatusProcessing],
		Completed:  counts[StatusCompleted],
		Failed:     counts[StatusFailed],
	}
	p.Total = p.Pending + p.Processing + p.Completed + p.Failed
	if p.Total > 0 {
		p.PercentDone = math.Round(float64(p.Completed+p.Failed)/float64(p.Total)*10000) / 100
	}
	return p
}

// Done reports whether no evaluation is queued or running.
func (p Progress) Done() bool {
	return p.Pending == 0 && p.Processing == 0
}

// clampScore keeps score within [0, total].
func clampScore(score, total float64) float64 {
	if math.IsNaN(score) || score < 0 {
		return 0
	}
	if score > total {
		return total
	}
	return score
}
