package intake

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/opina-app/opina/fault"
	"github.com/opina-app/opina/model"
)

// fakeCatalog serves a fixed survey tree from memory.
type fakeCatalog struct {
	surveys map[string]model.Survey
	cities  map[string]model.City
	states  map[string]model.State
}

func (f *fakeCatalog) SurveyByToken(_ context.Context, tok string) (*model.Survey, error) {
	if s, ok := f.surveys[tok]; ok {
		return &s, nil
	}
	return nil, nil
}

func (f *fakeCatalog) QuestionsByIDs(_ context.Context, surveyID int, ids []int) ([]model.Question, error) {
	var out []model.Question
	for _, s := range f.surveys {
		if s.ID != surveyID {
			continue
		}
		for _, q := range s.Questions {
			for _, id := range ids {
				if q.ID == id {
					out = append(out, q)
				}
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) OptionsByIDs(_ context.Context, surveyID int, ids []int) ([]model.Option, error) {
	var out []model.Option
	for _, s := range f.surveys {
		if s.ID != surveyID {
			continue
		}
		for _, q := range s.Questions {
			for _, o := range q.Options {
				for _, id := range ids {
					if o.ID == id {
						out = append(out, o)
					}
				}
			}
		}
	}
	return out, nil
}

func (f *fakeCatalog) CityByIBGE(_ context.Context, code string) (*model.City, error) {
	if c, ok := f.cities[code]; ok {
		return &c, nil
	}
	return nil, nil
}

func (f *fakeCatalog) StateByCode(_ context.Context, code string) (*model.State, error) {
	if s, ok := f.states[code]; ok {
		return &s, nil
	}
	return nil, nil
}

// Survey 1 ("1-TEST42"): Q1 single choice (options 11, 12), Q2 multiple
// choice (options 21, 22, 23), Q3 text. Survey 2 ("2-OTHER7"): Q9 single
// choice (option 91) to exercise cross-survey references.
func testCatalog() *fakeCatalog {
	return &fakeCatalog{
		surveys: map[string]model.Survey{
			"1-TEST42": {
				ID: 1, CompanyID: 1, Token: "1-TEST42", Title: "Customer satisfaction",
				Questions: []model.Question{
					{ID: 1, SurveyID: 1, Type: model.SingleChoice, Options: []model.Option{
						{ID: 11, QuestionID: 1, Text: "Yes"},
						{ID: 12, QuestionID: 1, Text: "No"},
					}},
					{ID: 2, SurveyID: 1, Type: model.MultipleChoice, Options: []model.Option{
						{ID: 21, QuestionID: 2, Text: "Price"},
						{ID: 22, QuestionID: 2, Text: "Quality"},
						{ID: 23, QuestionID: 2, Text: "Support"},
					}},
					{ID: 3, SurveyID: 1, Type: model.TextQuestion},
				},
			},
			"2-OTHER7": {
				ID: 2, CompanyID: 2, Token: "2-OTHER7",
				Questions: []model.Question{
					{ID: 9, SurveyID: 2, Type: model.SingleChoice, Options: []model.Option{
						{ID: 91, QuestionID: 9, Text: "Maybe"},
					}},
				},
			},
		},
		cities: map[string]model.City{
			"4314902": {ID: 100, IBGECode: "4314902", Name: "Porto Alegre", StateID: 43},
			"3550308": {ID: 101, IBGECode: "3550308", Name: "São Paulo", StateID: 35},
		},
		states: map[string]model.State{
			"43": {ID: 43, Code: "43", UF: "RS", Name: "Rio Grande do Sul"},
			"35": {ID: 35, Code: "35", UF: "SP", Name: "São Paulo"},
		},
	}
}

func intp(v int) *int { return &v }

func strp(v string) *string { return &v }

func TestValidateUnknownToken(t *testing.T) {
	v := NewValidator(testCatalog())

	_, err := v.Validate(context.Background(), Request{Token: "1-NOPE99"})
	if err == nil {
		t.Fatal("expected error for unknown token")
	}
	if !fault.IsNotFound(err) {
		t.Errorf("expected a NotFound fault, got %v", err)
	}
	if fault.IsValidation(err) {
		t.Error("unknown token must not be a validation error")
	}
}

func TestValidateSingleChoice(t *testing.T) {
	tests := []struct {
		name    string
		answer  AnswerInput
		wantErr string
		rows    int
	}{
		{
			name:   "one valid option via option_ids",
			answer: AnswerInput{QuestionID: 1, OptionIDs: []int{11}},
			rows:   1,
		},
		{
			name:   "one valid option via option_id convenience field",
			answer: AnswerInput{QuestionID: 1, OptionID: intp(12)},
			rows:   1,
		},
		{
			name:    "zero options rejected",
			answer:  AnswerInput{QuestionID: 1},
			wantErr: "exactly one option",
		},
		{
			name:    "multiple options rejected",
			answer:  AnswerInput{QuestionID: 1, OptionIDs: []int{11, 12}},
			wantErr: "exactly one option",
		},
		{
			name:    "option of another question rejected",
			answer:  AnswerInput{QuestionID: 1, OptionIDs: []int{21}},
			wantErr: "option 21 does not belong to question 1",
		},
		{
			name:    "text_response rejected",
			answer:  AnswerInput{QuestionID: 1, OptionIDs: []int{11}, TextResponse: strp("extra")},
			wantErr: "does not accept text_response",
		},
		{
			name:   "blank text_response tolerated",
			answer: AnswerInput{QuestionID: 1, OptionIDs: []int{11}, TextResponse: strp("")},
			rows:   1,
		},
	}

	v := NewValidator(testCatalog())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			norm, err := v.Validate(context.Background(), Request{
				Token:   "1-TEST42",
				Answers: []AnswerInput{tt.answer},
			})
			if tt.wantErr != "" {
				if err == nil {
					t.Fatal("expected validation error")
				}
				if !fault.IsValidation(err) {
					t.Fatalf("expected a validation fault, got %v", err)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error %q does not mention %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if len(norm.Answers) != tt.rows {
				t.Errorf("expected %d answer rows, got %d", tt.rows, len(norm.Answers))
			}
			if norm.Answers[0].OptionID == nil {
				t.Error("single choice answer row must reference an option")
			}
		})
	}
}

func TestValidateMultipleChoice(t *testing.T) {
	v := NewValidator(testCatalog())

	t.Run("N valid ids yield N rows", func(t *testing.T) {
		norm, err := v.Validate(context.Background(), Request{
			Token:   "1-TEST42",
			Answers: []AnswerInput{{QuestionID: 2, OptionIDs: []int{21, 23}}},
		})
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if len(norm.Answers) != 2 {
			t.Fatalf("expected 2 answer rows, got %d", len(norm.Answers))
		}
		for i, want := range []int{21, 23} {
			if norm.Answers[i].OptionID == nil || *norm.Answers[i].OptionID != want {
				t.Errorf("row %d: expected option %d", i, want)
			}
			if norm.Answers[i].QuestionID != 2 {
				t.Errorf("row %d: expected question 2, got %d", i, norm.Answers[i].QuestionID)
			}
		}
	})

	t.Run("empty option_ids rejected", func(t *testing.T) {
		_, err := v.Validate(context.Background(), Request{
			Token:   "1-TEST42",
			Answers: []AnswerInput{{QuestionID: 2}},
		})
		if !fault.IsValidation(err) {
			t.Fatalf("expected validation fault, got %v", err)
		}
	})

	t.Run("foreign option rejected with its id", func(t *testing.T) {
		_, err := v.Validate(context.Background(), Request{
			Token:   "1-TEST42",
			Answers: []AnswerInput{{QuestionID: 2, OptionIDs: []int{21, 11}}},
		})
		if !fault.IsValidation(err) {
			t.Fatalf("expected validation fault, got %v", err)
		}
		if !strings.Contains(err.Error(), "option 11") {
			t.Errorf("error %q does not name the offending option", err)
		}
	})

	t.Run("option of another survey rejected as bulk mismatch", func(t *testing.T) {
		_, err := v.Validate(context.Background(), Request{
			Token:   "1-TEST42",
			Answers: []AnswerInput{{QuestionID: 2, OptionIDs: []int{91}}},
		})
		if !fault.IsValidation(err) {
			t.Fatalf("expected validation fault, got %v", err)
		}
	})
}

func TestValidateText(t *testing.T) {
	v := NewValidator(testCatalog())

	t.Run("empty string accepted", func(t *testing.T) {
		norm, err := v.Validate(context.Background(), Request{
			Token:   "1-TEST42",
			Answers: []AnswerInput{{QuestionID: 3, TextResponse: strp("")}},
		})
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if len(norm.Answers) != 1 {
			t.Fatalf("expected 1 answer row, got %d", len(norm.Answers))
		}
		row := norm.Answers[0]
		if row.TextResponse == nil || *row.TextResponse != "" {
			t.Error("expected empty text_response to be preserved")
		}
		if row.OptionID != nil {
			t.Error("text answer row must not reference an option")
		}
	})

	t.Run("missing text_response rejected", func(t *testing.T) {
		_, err := v.Validate(context.Background(), Request{
			Token:   "1-TEST42",
			Answers: []AnswerInput{{QuestionID: 3}},
		})
		if !fault.IsValidation(err) {
			t.Fatalf("expected validation fault, got %v", err)
		}
		if !strings.Contains(err.Error(), "requires text_response") {
			t.Errorf("unexpected message: %v", err)
		}
	})

	t.Run("option ids rejected", func(t *testing.T) {
		for _, a := range []AnswerInput{
			{QuestionID: 3, OptionIDs: []int{11}, TextResponse: strp("hi")},
			{QuestionID: 3, OptionID: intp(11), TextResponse: strp("hi")},
		} {
			_, err := v.Validate(context.Background(), Request{
				Token:   "1-TEST42",
				Answers: []AnswerInput{a},
			})
			if !fault.IsValidation(err) {
				t.Fatalf("expected validation fault, got %v", err)
			}
			if !strings.Contains(err.Error(), "does not accept options") {
				t.Errorf("unexpected message: %v", err)
			}
		}
	})
}

func TestValidateUnknownQuestion(t *testing.T) {
	v := NewValidator(testCatalog())

	for _, questionID := range []int{999, 9 /* belongs to survey 2 */} {
		_, err := v.Validate(context.Background(), Request{
			Token:   "1-TEST42",
			Answers: []AnswerInput{{QuestionID: questionID, TextResponse: strp("x")}},
		})
		if !fault.IsValidation(err) {
			t.Fatalf("question %d: expected validation fault, got %v", questionID, err)
		}
	}
}

func TestValidateGeo(t *testing.T) {
	v := NewValidator(testCatalog())
	answers := []AnswerInput{{QuestionID: 3, TextResponse: strp("ok")}}

	t.Run("matching city and state resolve", func(t *testing.T) {
		norm, err := v.Validate(context.Background(), Request{
			Token: "1-TEST42", Answers: answers,
			IBGECode: "4314902", StateCode: "43",
		})
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if norm.City == nil || norm.City.Name != "Porto Alegre" {
			t.Error("expected resolved city")
		}
		if norm.State == nil || norm.State.UF != "RS" {
			t.Error("expected resolved state")
		}
	})

	t.Run("city of another state rejected naming both", func(t *testing.T) {
		_, err := v.Validate(context.Background(), Request{
			Token: "1-TEST42", Answers: answers,
			IBGECode: "3550308", StateCode: "43",
		})
		if !fault.IsValidation(err) {
			t.Fatalf("expected validation fault, got %v", err)
		}
		if !strings.Contains(err.Error(), "São Paulo") || !strings.Contains(err.Error(), "Rio Grande do Sul") {
			t.Errorf("error %q does not name both entities", err)
		}
	})

	t.Run("unknown city code rejected", func(t *testing.T) {
		_, err := v.Validate(context.Background(), Request{
			Token: "1-TEST42", Answers: answers,
			IBGECode: "9999999", StateCode: "43",
		})
		if !fault.IsValidation(err) || !strings.Contains(err.Error(), "9999999") {
			t.Fatalf("expected validation fault naming the code, got %v", err)
		}
	})

	t.Run("unknown state code rejected", func(t *testing.T) {
		_, err := v.Validate(context.Background(), Request{
			Token: "1-TEST42", Answers: answers,
			IBGECode: "4314902", StateCode: "99",
		})
		if !fault.IsValidation(err) || !strings.Contains(err.Error(), "99") {
			t.Fatalf("expected validation fault naming the code, got %v", err)
		}
	})

	t.Run("geo skipped unless both codes supplied", func(t *testing.T) {
		norm, err := v.Validate(context.Background(), Request{
			Token: "1-TEST42", Answers: answers,
			IBGECode: "4314902",
		})
		if err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if norm.City != nil || norm.State != nil {
			t.Error("expected no geo resolution with a lone ibge_code")
		}
	})
}

func TestValidateOccurredAt(t *testing.T) {
	v := NewValidator(testCatalog())
	answers := []AnswerInput{{QuestionID: 3, TextResponse: strp("ok")}}

	explicit := time.Date(2024, 5, 10, 12, 30, 0, 0, time.UTC)
	norm, err := v.Validate(context.Background(), Request{
		Token: "1-TEST42", Answers: answers, OccurredAt: &explicit,
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !norm.OccurredAt.Equal(explicit) {
		t.Errorf("expected explicit occurred_at, got %v", norm.OccurredAt)
	}

	before := time.Now()
	norm, err = v.Validate(context.Background(), Request{Token: "1-TEST42", Answers: answers})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if norm.OccurredAt.Before(before) {
		t.Error("expected occurred_at to default to now")
	}
}
