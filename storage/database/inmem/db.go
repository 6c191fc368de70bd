// Package inmemdb implements the core repositories in memory. It backs the tests and the TestMode of the API.
package inmemdb

import (
	"sync"
	"time"

	"github.com/trezcool/tathmini/core/class"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/exam"
	"github.com/trezcool/tathmini/core/paper"
	"github.com/trezcool/tathmini/core/question"
	"github.com/trezcool/tathmini/core/student"
	"github.com/trezcool/tathmini/core/subject"
	"github.com/trezcool/tathmini/core/user"
)

// DB holds every table behind a single lock so that counts across tables stay consistent.
type DB struct {
	mutex       sync.RWMutex
	users       map[string]user.User
	classes     map[string]class.Class
	subjects    map[string]subject.Subject
	students    map[string]student.Student
	tests       map[string]exam.Test
	papers      map[string]paper.Paper
	questions   map[string]question.Question
	evaluations map[string]evaluation.Evaluation
	notified    map[string]time.Time
}

func NewDB() *DB {
	return &DB{
		users:       make(map[string]user.User),
		classes:     make(map[string]class.Class),
		subjects:    make(map[string]subject.Subject),
		students:    make(map[string]student.Student),
		tests:       make(map[string]exam.Test),
		papers:      make(map[string]paper.Paper),
		questions:   make(map[string]question.Question),
		evaluations: make(map[string]evaluation.Evaluation),
		notified:    make(map[string]time.Time),
	}
}

// Reset empties every table.
func (db *DB) Reset() {
	fresh := NewDB()
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.users = fresh.users
	db.classes = fresh.classes
	db.subjects = fresh.subjects
	db.students = fresh.students
	db.tests = fresh.tests
	db.papers = fresh.papers
	db.questions = fresh.questions
	db.evaluations = fresh.evaluations
	db.notified = fresh.notified
}

func copyStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
