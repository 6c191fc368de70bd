package database

import (
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/tathmini/core/class"
	"github.com/trezcool/tathmini/core/evaluation"
	"github.com/trezcool/tathmini/core/exam"
	"github.com/trezcool/tathmini/core/paper"
	"github.com/trezcool/tathmini/core/question"
	"github.com/trezcool/tathmini/core/student"
	"github.com/trezcool/tathmini/core/subject"
	"github.com/trezcool/tathmini/core/user"
	inmemdb "github.com/trezcool/tathmini/storage/database/inmem"
	pgrepos "github.com/trezcool/tathmini/storage/database/postgres"
)

// Repositories bundles the repositories of one storage backend.
type Repositories struct {
	Users       user.Repository
	Classes     class.Repository
	Subjects    subject.Repository
	Students    student.Repository
	Tests       exam.Repository
	Papers      paper.Repository
	Questions   question.Repository
	Evaluations evaluation.Repository
}

func PostgresRepositories(db *sqlx.DB) Repositories {
	return Repositories{
		Users:       pgrepos.NewUserRepository(db),
		Classes:     pgrepos.NewClassRepository(db),
		Subjects:    pgrepos.NewSubjectRepository(db),
		Students:    pgrepos.NewStudentRepository(db),
		Tests:       pgrepos.NewTestRepository(db),
		Papers:      pgrepos.NewPaperRepository(db),
		Questions:   pgrepos.NewQuestionRepository(db),
		Evaluations: pgrepos.NewEvaluationRepository(db),
	}
}

func InMemRepositories(db *inmemdb.DB) Repositories {
	return Repositories{
		Users:       inmemdb.NewUserRepository(db),
		Classes:     inmemdb.NewClassRepository(db),
		Subjects:    inmemdb.NewSubjectRepository(db),
		Students:    inmemdb.NewStudentRepository(db),
		Tests:       inmemdb.NewTestRepository(db),
		Papers:      inmemdb.NewPaperRepository(db),
		Questions:   inmemdb.NewQuestionRepository(db),
		Evaluations: inmemdb.NewEvaluationRepository(db),
	}
}
