package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/your-org/faceattend/internal/models"
)

type fakeStudentStore struct {
	students  map[int64]*models.Student
	keys      map[int64][]string
	deleted   []int64
	deleteErr error
}

func (f *fakeStudentStore) CreateStudent(context.Context, *models.Student) error { return nil }

func (f *fakeStudentStore) GetStudent(_ context.Context, id int64) (*models.Student, error) {
	return f.students[id], nil
}

func (f *fakeStudentStore) ListStudents(context.Context) ([]models.Student, error) {
	return nil, nil
}

func (f *fakeStudentStore) ListSamples(context.Context, *int64) ([]models.FaceSample, error) {
	return nil, nil
}

func (f *fakeStudentStore) CountSamples(context.Context, int64) (int, error) { return 0, nil }

func (f *fakeStudentStore) DeleteStudent(_ context.Context, id int64) ([]string, error) {
	if f.deleteErr != nil {
		return nil, f.deleteErr
	}
	f.deleted = append(f.deleted, id)
	return f.keys[id], nil
}

type fakePurger struct {
	purged [][]string
	err    error
}

func (p *fakePurger) DeleteObjects(_ context.Context, keys []string) error {
	p.purged = append(p.purged, keys)
	return p.err
}

func deleteStudent(h *StudentHandler, path string) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.DELETE("/v1/students/:id", h.Delete)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestWithdrawStudentPurgesSamples(t *testing.T) {
	store := &fakeStudentStore{
		students: map[int64]*models.Student{7: {ID: 7, Name: "Test", RollNo: "R-7"}},
		keys:     map[int64][]string{7: {"samples/7/a.png", "samples/7/b.png"}},
	}
	purger := &fakePurger{}
	h := NewStudentHandler(store, purger)

	w := deleteStudent(h, "/v1/students/7")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", w.Code, w.Body.String())
	}
	if len(store.deleted) != 1 || store.deleted[0] != 7 {
		t.Fatalf("deleted rows %v, want [7]", store.deleted)
	}
	if len(purger.purged) != 1 || len(purger.purged[0]) != 2 {
		t.Fatalf("purged batches %v, want one batch of 2 keys", purger.purged)
	}
	if !strings.Contains(w.Body.String(), `"samples_removed":2`) {
		t.Fatalf("body %s missing sample count", w.Body.String())
	}
}

func TestWithdrawStudentNotFound(t *testing.T) {
	store := &fakeStudentStore{students: map[int64]*models.Student{}}
	purger := &fakePurger{}
	h := NewStudentHandler(store, purger)

	w := deleteStudent(h, "/v1/students/99")
	if w.Code != http.StatusNotFound {
		t.Fatalf("got %d, want 404", w.Code)
	}
	if len(store.deleted) != 0 || len(purger.purged) != 0 {
		t.Fatal("nothing should be deleted for an unknown student")
	}
}

func TestWithdrawStudentPurgeFailureKeepsWithdrawal(t *testing.T) {
	store := &fakeStudentStore{
		students: map[int64]*models.Student{7: {ID: 7, Name: "Test", RollNo: "R-7"}},
		keys:     map[int64][]string{7: {"samples/7/a.png"}},
	}
	purger := &fakePurger{err: errors.New("minio down")}
	h := NewStudentHandler(store, purger)

	// A failed object purge must not undo or fail the withdrawal; a leftover
	// crop is harmless.
	w := deleteStudent(h, "/v1/students/7")
	if w.Code != http.StatusOK {
		t.Fatalf("got %d, body %s", w.Code, w.Body.String())
	}
	if len(store.deleted) != 1 {
		t.Fatalf("deleted rows %v, want [7]", store.deleted)
	}
}

func TestWithdrawStudentBadID(t *testing.T) {
	h := NewStudentHandler(&fakeStudentStore{}, &fakePurger{})

	if w := deleteStudent(h, "/v1/students/abc"); w.Code != http.StatusBadRequest {
		t.Fatalf("got %d, want 400", w.Code)
	}
}
