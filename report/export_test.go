package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/opina-app/opina/model"
)

func sampleSubmissions() []SubmissionDetail {
	lat, lon := -30.03, -51.23
	optID := 11
	optText := "Yes"
	freeText := "all good"
	return []SubmissionDetail{
		{
			Submission: model.Submission{
				ID:          7,
				IPAddress:   "10.1.2.3",
				Latitude:    &lat,
				Longitude:   &lon,
				SubmittedAt: time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC),
			},
			StateName: "Rio Grande do Sul",
			CityName:  "Porto Alegre",
			Answers: []AnswerDetail{
				{QuestionID: 1, QuestionText: "Satisfied?", OptionID: &optID, OptionText: &optText},
				{QuestionID: 3, QuestionText: "Comments", TextResponse: &freeText},
			},
		},
		{
			Submission: model.Submission{
				ID:          8,
				SubmittedAt: time.Date(2024, 3, 16, 10, 30, 0, 0, time.UTC),
			},
			Answers: []AnswerDetail{
				{QuestionID: 1, QuestionText: "Satisfied?", OptionID: &optID, OptionText: &optText},
			},
		},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sampleSubmissions()); err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse produced CSV: %v", err)
	}

	if len(records) != 4 { // header + 3 answer lines
		t.Fatalf("expected 4 lines, got %d", len(records))
	}
	if records[0][0] != "Submission ID" || records[0][8] != "Answer" {
		t.Errorf("unexpected header: %v", records[0])
	}

	first := records[1]
	if first[0] != "7" || first[3] != "Rio Grande do Sul" || first[4] != "Porto Alegre" {
		t.Errorf("unexpected first line: %v", first)
	}
	if first[7] != "Satisfied?" || first[8] != "Yes" {
		t.Errorf("expected option text as answer, got %v", first)
	}
	if records[2][8] != "all good" {
		t.Errorf("expected text response as answer, got %v", records[2])
	}

	// submission without geo data exports empty strings, not zeros
	last := records[3]
	if last[3] != "" || last[5] != "" {
		t.Errorf("expected blank geo columns, got %v", last)
	}
}

func TestWriteDashboardCSV(t *testing.T) {
	questions := []model.Question{
		{ID: 1, Text: "Satisfied?", Type: model.SingleChoice},
		{ID: 2, Text: "Why?", Type: model.MultipleChoice},
		{ID: 3, Text: "Comments", Type: model.TextQuestion},
	}

	var buf bytes.Buffer
	if err := WriteDashboardCSV(&buf, questions, sampleSubmissions()); err != nil {
		t.Fatalf("WriteDashboardCSV: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("parse produced CSV: %v", err)
	}

	if len(records) != 3 { // header + 2 submissions
		t.Fatalf("expected 3 lines, got %d", len(records))
	}
	if records[0][7] != "Q1: Satisfied?" || records[0][9] != "Q3: Comments" {
		t.Errorf("unexpected question columns: %v", records[0])
	}

	first := records[1]
	if first[7] != "Yes" || first[8] != "" || first[9] != "all good" {
		t.Errorf("unexpected answers row: %v", first)
	}
}

func TestWriteXLSX(t *testing.T) {
	buf, err := WriteXLSX(sampleSubmissions())
	if err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}
	if buf.Len() == 0 {
		t.Error("expected non-empty spreadsheet")
	}
}
