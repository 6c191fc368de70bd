package report

import (
	"math"
	"sort"
)

// GradeBand is the lowest percentage earning a grade.
type GradeBand struct {
	Grade      string
	MinPercent float64
}

// GradeBands are sorted from the highest grade down.
var GradeBands = []GradeBand{
	{Grade: "A", MinPercent: 80},
	{Grade: "B", MinPercent: 70},
	{Grade: "C", MinPercent: 60},
	{Grade: "D", MinPercent: 50},
	{Grade: "F", MinPercent: 0},
}

func Grade(percent float64) string {
	for _, band := range GradeBands {
		if percent >= band.MinPercent {
			return band.Grade
		}
	}
	return GradeBands[len(GradeBands)-1].Grade
}

type (
	// Summary is the statistics of the completed evaluations of a test.
	Summary struct {
		TestID       string         `json:"test_id"`
		TestName     string         `json:"test_name"`
		TotalMarks   float64        `json:"total_marks"`
		PassingMarks float64        `json:"passing_marks"`
		Count        int            `json:"count"`
		Average      float64        `json:"average"`
		Highest      float64        `json:"highest"`
		Lowest       float64        `json:"lowest"`
		Median       float64        `json:"median"`
		Passed       int            `json:"passed"`
		PassRate     float64        `json:"pass_rate"` // %
		Grades       map[string]int `json:"grades"`
	}

	// Row is the result of one student in a test.
	Row struct {
		StudentID  string   `json:"student_id"`
		RollNumber string   `json:"roll_number"`
		Name       string   `json:"name"`
		Status     string   `json:"status"` // evaluation status, "not evaluated" when missing
		Score      *float64 `json:"score"`
		TotalMarks float64  `json:"total_marks"`
		Percent    float64  `json:"percent"`
		Grade      string   `json:"grade"`
		Passed     bool     `json:"passed"`
		Feedback   string   `json:"feedback"`
	}
)

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

// Summarize computes the statistics of scores out of total marks.
func Summarize(scores []float64, totalMarks, passingMarks float64) Summary {
	s := Summary{
		TotalMarks:   totalMarks,
		PassingMarks: passingMarks,
		Count:        len(scores),
		Grades:       make(map[string]int, len(GradeBands)),
	}
	for _, band := range GradeBands {
		s.Grades[band.Grade] = 0
	}
	if len(scores) == 0 {
		return s
	}

	sorted := make([]float64, len(scores))
	copy(sorted, scores)
	sort.Float64s(sorted)

	var sum float64
	for _, score := range sorted {
		sum += score
		if score >= passingMarks {
			s.Passed++
		}
		var percent float64
		if totalMarks > 0 {
			percent = score / totalMarks * 100
		}
		// graded on the rounded percentage, like the result rows
		s.Grades[Grade(round2(percent))]++
	}

	n := len(sorted)
	s.Average = round2(sum / float64(n))
	s.Lowest = sorted[0]
	s.Highest = sorted[n-1]
	if n%2 == 1 {
		s.Median = sorted[n/2]
	} else {
		s.Median = round2((sorted[n/2-1] + sorted[n/2]) / 2)
	}
	s.PassRate = round2(float64(s.Passed) / float64(n) * 100)
	return s
}
