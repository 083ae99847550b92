package routes

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/opina-app/opina/app"
	"github.com/opina-app/opina/config"
	"github.com/opina-app/opina/database"
)

func openTestApp(t *testing.T) app.App {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.Open(config.Config{
		DBUrl: fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return app.App{DB: db}
}

func mustInsert(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var id int
	err := db.QueryRow(query+" RETURNING id", args...).Scan(&id)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

func mustCount(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var n int
	err := db.QueryRow(query, args...).Scan(&n)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

type surveyFixture struct {
	companyID  int
	surveyID   int
	questionID int
	optionID   int
}

func seedSurvey(t *testing.T, db *sql.DB) surveyFixture {
	t.Helper()
	f := surveyFixture{}
	f.companyID = mustInsert(t, db, `INSERT INTO company (name) VALUES ('Acme')`)
	f.surveyID = mustInsert(t, db, `
		INSERT INTO survey (company_id, title, token)
		VALUES (?, 'Service quality', ?)`,
		f.companyID, fmt.Sprintf("%d-TEST42", f.companyID))
	f.questionID = mustInsert(t, db, `
		INSERT INTO question (survey_id, question_text, question_type)
		VALUES (?, 'How was the service?', 'single_choice')`,
		f.surveyID)
	f.optionID = mustInsert(t, db, `
		INSERT INTO option (question_id, option_text) VALUES (?, 'Good')`,
		f.questionID)
	return f
}

func seedSubmission(t *testing.T, db *sql.DB, f surveyFixture) int {
	t.Helper()
	subID := mustInsert(t, db, `
		INSERT INTO submission (survey_id, company_id, survey_token, occurred_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)`,
		f.surveyID, f.companyID, fmt.Sprintf("%d-TEST42", f.companyID))
	mustInsert(t, db, `
		INSERT INTO submission_answer (submission_id, question_id, option_id)
		VALUES (?, ?, ?)`,
		subID, f.questionID, f.optionID)
	return subID
}

func putSurvey(t *testing.T, a app.App, surveyID int, body string) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	router.Put("/surveys/{id}", UpdateSurvey(a))
	req := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/surveys/%d", surveyID), strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

const updateBody = `{
	"version": 1,
	"title": "Renamed",
	"questions": [{"text": "Anything to add?", "type": "text"}]
}`

func TestUpdateSurveyKeepsCollectedAnswers(t *testing.T) {
	a := openTestApp(t)
	f := seedSurvey(t, a.DB)
	seedSubmission(t, a.DB, f)

	w := putSurvey(t, a, f.surveyID, updateBody)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}

	if n := mustCount(t, a.DB, `SELECT count(*) FROM submission_answer`); n != 1 {
		t.Errorf("submission_answer rows = %d, want 1", n)
	}
	if n := mustCount(t, a.DB, `SELECT count(*) FROM question WHERE survey_id = ?`, f.surveyID); n != 1 {
		t.Errorf("question rows = %d, want 1", n)
	}
	var text string
	err := a.DB.QueryRow(`SELECT question_text FROM question WHERE id = ?`, f.questionID).Scan(&text)
	if err != nil || text != "How was the service?" {
		t.Errorf("question_text = %q, %v; want the original question untouched", text, err)
	}
}

func TestUpdateSurveyRewritesQuestionsWhenEmpty(t *testing.T) {
	a := openTestApp(t)
	f := seedSurvey(t, a.DB)

	w := putSurvey(t, a, f.surveyID, updateBody)
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusNoContent, w.Body)
	}

	var title string
	var version int
	err := a.DB.QueryRow(`SELECT title, version FROM survey WHERE id = ?`, f.surveyID).Scan(&title, &version)
	if err != nil {
		t.Fatalf("reload survey: %v", err)
	}
	if title != "Renamed" || version != 2 {
		t.Errorf("survey = (%q, v%d), want (\"Renamed\", v2)", title, version)
	}
	var text string
	err = a.DB.QueryRow(`SELECT question_text FROM question WHERE survey_id = ?`, f.surveyID).Scan(&text)
	if err != nil || text != "Anything to add?" {
		t.Errorf("question_text = %q, %v; want the rewritten question", text, err)
	}
}

func TestUpdateSurveyUnknownSurvey(t *testing.T) {
	a := openTestApp(t)
	seedSurvey(t, a.DB)

	w := putSurvey(t, a, 999, updateBody)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestUpdateSurveyStaleVersion(t *testing.T) {
	a := openTestApp(t)
	f := seedSurvey(t, a.DB)

	stale := strings.Replace(updateBody, `"version": 1`, `"version": 7`, 1)
	w := putSurvey(t, a, f.surveyID, stale)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}
