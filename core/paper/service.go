package paper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/exam"
	"github.com/trezcool/tathmini/core/student"
)

var (
	ErrNotFound          = core.NewNotFoundError("paper not found")
	ErrInvalidKind       = errors.New("invalid paper kind")
	ErrNotAnswerSheet    = errors.New("only answer sheets can be assigned to students")
	ErrStudentOtherClass = errors.New("the student is not in the class of this test")
)

type (
	Repository interface {
		CreatePaper(ctx context.Context, p Paper) (Paper, error)
		GetPaper(ctx context.Context, id string) (Paper, error)
		// ListPapers returns the papers of a test ordered by creation date. An empty kind lists all kinds.
		ListPapers(ctx context.Context, testID, kind string) ([]Paper, error)
		UpdatePaper(ctx context.Context, p Paper) (Paper, error)
		DeletePaper(ctx context.Context, id string) error
		StorageKeyExists(ctx context.Context, key string) (bool, error)
	}

	TestGetter interface {
		Get(ctx context.Context, id string) (exam.Test, error)
	}

	StudentGetter interface {
		Get(ctx context.Context, id string) (student.Student, error)
	}

	// ImageNormalizer re-encodes an uploaded image. It returns the new content and its content type.
	ImageNormalizer interface {
		Normalize(r io.Reader) ([]byte, string, error)
	}

	Service struct {
		repo     Repository
		storage  core.FileStorage
		cache    core.Cache
		tests    TestGetter
		students StudentGetter
		images   ImageNormalizer
		conf     *core.Config
		logger   core.Logger
	}
)

func NewService(
	conf *core.Config,
	repo Repository,
	storage core.FileStorage,
	cache core.Cache,
	tests TestGetter,
	students StudentGetter,
	images ImageNormalizer,
	logger core.Logger,
) *Service {
	return &Service{
		repo:     repo,
		storage:  storage,
		cache:    cache,
		tests:    tests,
		students: students,
		images:   images,
		conf:     conf,
		logger:   logger,
	}
}

func cacheKey(testID, kind string) string {
	if kind == "" {
		kind = "all"
	}
	return core.PapersCachePrefix(testID) + kind
}

// ObjectKey builds the storage key of a paper: tests/<test_id>/<kind>/<uuid>-<slug>.<ext>
func ObjectKey(testID, kind, filename string) string {
	ext := Extension(filename)
	base := strings.TrimSuffix(path.Base(filename), path.Ext(filename))
	slug := core.Slugify(base)
	if slug == "" {
		slug = "file"
	}
	key := fmt.Sprintf("tests/%s/%s/%s-%s", testID, kind, uuid.NewString(), slug)
	if ext != "" {
		key += "." + ext
	}
	return key
}

// invalidate drops the cached listings of a test.
func (svc *Service) invalidate(ctx context.Context, testID string) {
	if err := svc.cache.DeletePrefix(ctx, core.PapersCachePrefix(testID)); err != nil {
		svc.logger.Error(fmt.Sprintf("invalidating papers cache of test %s: %v", testID, err), err)
	}
}

// ListForTest returns the papers of a test, optionally of a single kind.
func (svc *Service) ListForTest(ctx context.Context, testID, kind string) ([]Paper, error) {
	if kind != "" && !IsKind(kind) {
		return nil, core.NewFieldError("kind", ErrInvalidKind.Error())
	}
	if _, err := svc.tests.Get(ctx, testID); err != nil {
		return nil, err
	}

	key := cacheKey(testID, kind)
	var papers []Paper
	if found, err := svc.cache.Get(ctx, key, &papers); err != nil {
		svc.logger.Warn(fmt.Sprintf("reading papers cache %s: %v", key, err), err)
	} else if found {
		return papers, nil
	}

	papers, err := svc.repo.ListPapers(ctx, testID, kind)
	if err != nil {
		return nil, errors.Wrap(err, "listing papers")
	}
	if papers == nil {
		papers = []Paper{}
	}
	if err := svc.cache.Set(ctx, key, papers, svc.conf.Redis.TTL); err != nil {
		svc.logger.Warn(fmt.Sprintf("writing papers cache %s: %v", key, err), err)
	}
	return papers, nil
}

func (svc *Service) Get(ctx context.Context, id string) (Paper, error) {
	return svc.repo.GetPaper(ctx, id)
}

// checkStudent ensures std can own an answer sheet of tst.
func (svc *Service) checkStudent(ctx context.Context, tst exam.Test, studentID string) error {
	std, err := svc.students.Get(ctx, studentID)
	if err != nil {
		if errors.Cause(err) == student.ErrNotFound {
			return core.NewFieldError("student_id", "student not found")
		}
		return errors.Wrap(err, "getting student")
	}
	if std.ClassID != tst.ClassID {
		return core.NewValidationError(ErrStudentOtherClass, core.FieldError{Field: "student_id", Error: ErrStudentOtherClass.Error()})
	}
	return nil
}

// Upload stores the content of an uploaded file and records it as a Paper of the test.
// Images are normalized when an ImageNormalizer is configured.
func (svc *Service) Upload(ctx context.Context, np NewPaper, r io.Reader) (Paper, error) {
	if !IsKind(np.Kind) {
		return Paper{}, core.NewFieldError("kind", ErrInvalidKind.Error())
	}
	tst, err := svc.tests.Get(ctx, np.TestID)
	if err != nil {
		return Paper{}, err
	}
	if np.StudentID != "" {
		if np.Kind != KindAnswerSheet {
			return Paper{}, core.NewValidationError(ErrNotAnswerSheet)
		}
		if err := svc.checkStudent(ctx, tst, np.StudentID); err != nil {
			return Paper{}, err
		}
	}

	filename := path.Base(np.Filename)
	docType := DetectDocumentType(filename)
	contentType, size := np.ContentType, np.Size

	if docType == DocImage && svc.images != nil {
		content, ct, err := svc.images.Normalize(r)
		if err != nil {
			return Paper{}, core.NewFieldError("file", fmt.Sprintf("%s: unreadable image", filename))
		}
		filename = strings.TrimSuffix(filename, path.Ext(filename)) + ".webp"
		contentType, size = ct, int64(len(content))
		r = bytes.NewReader(content)
	}

	key := ObjectKey(tst.ID, np.Kind, filename)
	if err := svc.storage.Put(ctx, key, r, size, contentType); err != nil {
		return Paper{}, errors.Wrap(err, "storing file")
	}

	now := time.Now().UTC()
	p := Paper{
		ID:           uuid.NewString(),
		TestID:       tst.ID,
		StudentID:    null.NewString(np.StudentID, np.StudentID != ""),
		Kind:         np.Kind,
		Filename:     filename,
		StorageKey:   key,
		ContentType:  contentType,
		Size:         size,
		DocumentType: docType,
		UploadedBy:   null.NewString(np.UploadedBy, np.UploadedBy != ""),
		CreatedAt:    now,
	}
	if p.StudentID.Valid {
		p.AssignedAt = null.TimeFrom(now)
	}

	p, err = svc.repo.CreatePaper(ctx, p)
	if err != nil {
		if dErr := svc.storage.Delete(ctx, key); dErr != nil {
			svc.logger.Warn(fmt.Sprintf("removing stored file %s: %v", key, dErr), dErr)
		}
		return Paper{}, errors.Wrap(err, "creating paper")
	}
	svc.invalidate(ctx, p.TestID)
	return p, nil
}

// Assign attaches an answer sheet to a student of the test's class.
func (svc *Service) Assign(ctx context.Context, paperID, studentID string) (Paper, error) {
	p, err := svc.repo.GetPaper(ctx, paperID)
	if err != nil {
		return Paper{}, err
	}
	if p.Kind != KindAnswerSheet {
		return Paper{}, core.NewValidationError(ErrNotAnswerSheet)
	}
	tst, err := svc.tests.Get(ctx, p.TestID)
	if err != nil {
		return Paper{}, errors.Wrap(err, "getting test")
	}
	if err := svc.checkStudent(ctx, tst, studentID); err != nil {
		return Paper{}, err
	}

	p.StudentID = null.StringFrom(studentID)
	p.AssignedAt = null.TimeFrom(time.Now().UTC())
	if p, err = svc.repo.UpdatePaper(ctx, p); err != nil {
		return Paper{}, errors.Wrap(err, "updating paper")
	}
	svc.invalidate(ctx, p.TestID)
	return p, nil
}

func (svc *Service) Unassign(ctx context.Context, paperID string) (Paper, error) {
	p, err := svc.repo.GetPaper(ctx, paperID)
	if err != nil {
		return Paper{}, err
	}
	if !p.IsAssigned() {
		return p, nil
	}
	p.StudentID = null.String{}
	p.AssignedAt = null.Time{}
	if p, err = svc.repo.UpdatePaper(ctx, p); err != nil {
		return Paper{}, errors.Wrap(err, "updating paper")
	}
	svc.invalidate(ctx, p.TestID)
	return p, nil
}

// Delete removes the Paper and its stored file. Files left behind are collected by the storage reaper.
func (svc *Service) Delete(ctx context.Context, id string) error {
	p, err := svc.repo.GetPaper(ctx, id)
	if err != nil {
		return err
	}
	if err := svc.repo.DeletePaper(ctx, id); err != nil {
		return errors.Wrap(err, "deleting paper")
	}
	svc.invalidate(ctx, p.TestID)
	if err := svc.storage.Delete(ctx, p.StorageKey); err != nil && !core.IsNotFound(err) {
		svc.logger.Warn(fmt.Sprintf("deleting stored file %s: %v", p.StorageKey, err), err)
	}
	return nil
}

// URL returns the public URL of the Paper, or a signed URL expiring after the configured TTL.
func (svc *Service) URL(ctx context.Context, p Paper, signed bool) (string, error) {
	if !signed {
		return svc.storage.PublicURL(p.StorageKey), nil
	}
	url, err := svc.storage.SignedURL(ctx, p.StorageKey, svc.conf.Storage.SignedURLTTL)
	return url, errors.Wrap(err, "signing url")
}

// Open returns the stored content of the Paper.
func (svc *Service) Open(ctx context.Context, p Paper) (io.ReadCloser, error) {
	return svc.storage.Open(ctx, p.StorageKey)
}

// Invalidate drops the cached listings of a test.
func (svc *Service) Invalidate(ctx context.Context, testID string) {
	svc.invalidate(ctx, testID)
}
