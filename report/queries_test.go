package report

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/opina-app/opina/config"
	"github.com/opina-app/opina/database"
)

func openReportDB(t *testing.T) *sql.DB {
	t.Helper()
	name := strings.ReplaceAll(t.Name(), "/", "_")
	db, err := database.Open(config.Config{
		DBUrl: fmt.Sprintf("file:%s?mode=memory&cache=shared&_fk=1", name),
	})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func insertRow(t *testing.T, db *sql.DB, query string, args ...any) int {
	t.Helper()
	var id int
	err := db.QueryRow(query+" RETURNING id", args...).Scan(&id)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return id
}

type reportFixture struct {
	surveyID   int
	companyID  int
	questionID int
	optionA    int
	optionB    int
}

func seedChoiceSurvey(t *testing.T, db *sql.DB) reportFixture {
	t.Helper()
	f := reportFixture{}
	f.companyID = insertRow(t, db, `INSERT INTO company (name) VALUES ('Acme')`)
	f.surveyID = insertRow(t, db, `
		INSERT INTO survey (company_id, title, token)
		VALUES (?, 'Service quality', ?)`,
		f.companyID, fmt.Sprintf("%d-REPRT7", f.companyID))
	f.questionID = insertRow(t, db, `
		INSERT INTO question (survey_id, question_text, question_type)
		VALUES (?, 'How was the service?', 'single_choice')`,
		f.surveyID)
	f.optionA = insertRow(t, db, `INSERT INTO option (question_id, option_text) VALUES (?, 'Good')`, f.questionID)
	f.optionB = insertRow(t, db, `INSERT INTO option (question_id, option_text) VALUES (?, 'Bad')`, f.questionID)
	return f
}

func submitChoice(t *testing.T, db *sql.DB, f reportFixture, optionID int, submittedAt string) int {
	t.Helper()
	subID := insertRow(t, db, `
		INSERT INTO submission (survey_id, company_id, survey_token, occurred_at, submitted_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.surveyID, f.companyID, fmt.Sprintf("%d-REPRT7", f.companyID), submittedAt, submittedAt)
	insertRow(t, db, `
		INSERT INTO submission_answer (submission_id, question_id, option_id)
		VALUES (?, ?, ?)`,
		subID, f.questionID, optionID)
	return subID
}

func TestOptionDistributionsKeepsUnpickedOptions(t *testing.T) {
	db := openReportDB(t)
	f := seedChoiceSurvey(t, db)
	submitChoice(t, db, f, f.optionA, "2026-01-05 10:00:00")
	submitChoice(t, db, f, f.optionB, "2026-02-05 10:00:00")

	cases := []struct {
		name   string
		filter Filter
		want   map[int]int
	}{
		{"unfiltered", Filter{}, map[int]int{f.optionA: 1, f.optionB: 1}},
		{"from_february", Filter{From: "2026-02-01"}, map[int]int{f.optionA: 0, f.optionB: 1}},
		{"until_january", Filter{To: "2026-01-31"}, map[int]int{f.optionA: 1, f.optionB: 0}},
		{"empty_window", Filter{From: "2030-01-01"}, map[int]int{f.optionA: 0, f.optionB: 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dists, err := OptionDistributions(context.Background(), db, f.surveyID, c.filter)
			if err != nil {
				t.Fatalf("OptionDistributions: %v", err)
			}
			if len(dists) != 1 {
				t.Fatalf("got %d questions, want 1", len(dists))
			}
			got := map[int]int{}
			for _, oc := range dists[0].Options {
				got[oc.OptionID] = oc.Total
			}
			if len(got) != len(c.want) {
				t.Fatalf("got %d options (%v), want %d", len(got), got, len(c.want))
			}
			for id, want := range c.want {
				if got[id] != want {
					t.Errorf("option %d: total = %d, want %d", id, got[id], want)
				}
			}
		})
	}
}

func TestListSubmissionsBatchesAnswerLookup(t *testing.T) {
	saved := answerIDBatch
	answerIDBatch = 2
	t.Cleanup(func() { answerIDBatch = saved })

	db := openReportDB(t)
	f := seedChoiceSurvey(t, db)
	for i := 0; i < 5; i++ {
		submitChoice(t, db, f, f.optionA, fmt.Sprintf("2026-03-0%d 10:00:00", i+1))
	}

	subs, total, err := ListSubmissions(context.Background(), db, f.surveyID, Filter{}, 1, 10)
	if err != nil {
		t.Fatalf("ListSubmissions: %v", err)
	}
	if total != 5 || len(subs) != 5 {
		t.Fatalf("got %d of %d submissions, want 5 of 5", len(subs), total)
	}
	// newest first, every page member keeps its answer across id batches
	for i, sub := range subs {
		if len(sub.Answers) != 1 {
			t.Errorf("submission %d: %d answers, want 1", sub.ID, len(sub.Answers))
			continue
		}
		a := sub.Answers[0]
		if a.OptionID == nil || *a.OptionID != f.optionA {
			t.Errorf("submission %d: answer option = %v, want %d", sub.ID, a.OptionID, f.optionA)
		}
		want := fmt.Sprintf("2026-03-0%d", 5-i)
		if got := sub.SubmittedAt.Format("2006-01-02"); got != want {
			t.Errorf("position %d: submitted_at = %s, want %s", i, got, want)
		}
	}
}
