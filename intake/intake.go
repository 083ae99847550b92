// Package intake validates and normalizes raw submission payloads against the
// survey catalog before anything is written to the database.
package intake

import (
	"context"
	"time"

	"github.com/opina-app/opina/fault"
	"github.com/opina-app/opina/model"
)

// AnswerInput is one raw answer entry as posted by a client. Choice questions
// carry option ids; single choice also accepts the option_id convenience
// field. Text questions carry text_response.
type AnswerInput struct {
	QuestionID   int     `json:"question_id"`
	OptionIDs    []int   `json:"option_ids,omitempty"`
	OptionID     *int    `json:"option_id,omitempty"`
	TextResponse *string `json:"text_response,omitempty"`
}

// Request is the full submission payload plus request-context data captured
// by the HTTP layer.
type Request struct {
	Token      string        `json:"token"`
	OccurredAt *time.Time    `json:"occurred_at,omitempty"`
	Latitude   *float64      `json:"latitude,omitempty"`
	Longitude  *float64      `json:"longitude,omitempty"`
	IBGECode   string        `json:"ibge_code,omitempty"`
	StateCode  string        `json:"state_code,omitempty"`
	Answers    []AnswerInput `json:"answers"`

	IPAddress string `json:"-"`
	UserAgent string `json:"-"`
}

// Catalog provides read access to the survey catalog and the geographic
// reference data. Lookups return nil (not an error) on a miss so the
// validator decides how to report it.
type Catalog interface {
	SurveyByToken(ctx context.Context, token string) (*model.Survey, error)
	QuestionsByIDs(ctx context.Context, surveyID int, ids []int) ([]model.Question, error)
	OptionsByIDs(ctx context.Context, surveyID int, ids []int) ([]model.Option, error)
	CityByIBGE(ctx context.Context, ibgeCode string) (*model.City, error)
	StateByCode(ctx context.Context, code string) (*model.State, error)
}

// Normalized is a validated submission ready for atomic persistence: one
// answer row per selected option, or per text answer.
type Normalized struct {
	Survey     *model.Survey
	City       *model.City
	State      *model.State
	OccurredAt time.Time
	Answers    []model.SubmissionAnswer
}

type Validator struct {
	catalog Catalog
}

func NewValidator(catalog Catalog) *Validator {
	return &Validator{catalog: catalog}
}

// Validate resolves the token, cross-checks every answer entry against the
// catalog and produces the normalized answer rows. It fails fast on the first
// invalid answer, naming the offending question or option id.
func (v *Validator) Validate(ctx context.Context, req Request) (*Normalized, error) {
	survey, err := v.catalog.SurveyByToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	if survey == nil {
		return nil, fault.NotFound("invalid or unknown survey token")
	}

	questions, err := v.loadQuestions(ctx, survey.ID, req.Answers)
	if err != nil {
		return nil, err
	}
	options, err := v.loadOptions(ctx, survey.ID, req.Answers)
	if err != nil {
		return nil, err
	}

	var rows []model.SubmissionAnswer
	for _, answer := range req.Answers {
		answerRows, err := normalizeAnswer(questions[answer.QuestionID], answer, options)
		if err != nil {
			return nil, err
		}
		rows = append(rows, answerRows...)
	}

	city, state, err := v.resolveGeo(ctx, req.IBGECode, req.StateCode)
	if err != nil {
		return nil, err
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	return &Normalized{
		Survey:     survey,
		City:       city,
		State:      state,
		OccurredAt: occurredAt,
		Answers:    rows,
	}, nil
}

// loadQuestions bulk-loads every referenced question, restricted to the
// survey. A set-size mismatch means at least one id is unknown or belongs to
// another survey. Duplicate question ids in a payload are legal.
func (v *Validator) loadQuestions(ctx context.Context, surveyID int, answers []AnswerInput) (map[int]model.Question, error) {
	ids := make([]int, 0, len(answers))
	seen := map[int]bool{}
	for _, a := range answers {
		if !seen[a.QuestionID] {
			seen[a.QuestionID] = true
			ids = append(ids, a.QuestionID)
		}
	}

	questions, err := v.catalog.QuestionsByIDs(ctx, surveyID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	if len(byID) != len(ids) {
		return nil, fault.Validation("one or more questions are invalid for this survey")
	}
	return byID, nil
}

// loadOptions bulk-loads every referenced option, restricted to questions of
// the survey, with the same set-size check as loadQuestions.
func (v *Validator) loadOptions(ctx context.Context, surveyID int, answers []AnswerInput) (map[int]model.Option, error) {
	var ids []int
	seen := map[int]bool{}
	collect := func(id int) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	for _, a := range answers {
		for _, id := range a.OptionIDs {
			collect(id)
		}
		if a.OptionID != nil {
			collect(*a.OptionID)
		}
	}

	options, err := v.catalog.OptionsByIDs(ctx, surveyID, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[int]model.Option, len(options))
	for _, o := range options {
		byID[o.ID] = o
	}
	if len(byID) != len(ids) {
		return nil, fault.Validation("one or more options are invalid for this survey")
	}
	return byID, nil
}

// normalizeAnswer dispatches once on the question type and returns the
// normalized answer rows for a single answer entry.
func normalizeAnswer(q model.Question, a AnswerInput, options map[int]model.Option) ([]model.SubmissionAnswer, error) {
	switch q.Type {
	case model.MultipleChoice:
		return normalizeMultipleChoice(q, a, options)
	case model.SingleChoice:
		return normalizeSingleChoice(q, a, options)
	case model.TextQuestion:
		return normalizeText(q, a)
	default:
		return nil, fault.Validation("question %d has unsupported type %q", q.ID, string(q.Type))
	}
}

func normalizeMultipleChoice(q model.Question, a AnswerInput, options map[int]model.Option) ([]model.SubmissionAnswer, error) {
	if len(a.OptionIDs) == 0 {
		return nil, fault.Validation("question %d expects option_ids", q.ID)
	}
	if err := rejectText(q, a); err != nil {
		return nil, err
	}

	rows := make([]model.SubmissionAnswer, 0, len(a.OptionIDs))
	for _, oid := range a.OptionIDs {
		if err := checkOwnership(q, oid, options); err != nil {
			return nil, err
		}
		oid := oid
		rows = append(rows, model.SubmissionAnswer{QuestionID: q.ID, OptionID: &oid})
	}
	return rows, nil
}

func normalizeSingleChoice(q model.Question, a AnswerInput, options map[int]model.Option) ([]model.SubmissionAnswer, error) {
	ids := a.OptionIDs
	if ids == nil && a.OptionID != nil {
		// convenience form: option_id instead of a one-element option_ids
		ids = []int{*a.OptionID}
	}
	if len(ids) != 1 {
		return nil, fault.Validation("question %d expects exactly one option", q.ID)
	}
	if err := rejectText(q, a); err != nil {
		return nil, err
	}

	oid := ids[0]
	if err := checkOwnership(q, oid, options); err != nil {
		return nil, err
	}
	return []model.SubmissionAnswer{{QuestionID: q.ID, OptionID: &oid}}, nil
}

func normalizeText(q model.Question, a AnswerInput) ([]model.SubmissionAnswer, error) {
	if len(a.OptionIDs) > 0 || a.OptionID != nil {
		return nil, fault.Validation("question %d does not accept options", q.ID)
	}
	if a.TextResponse == nil {
		return nil, fault.Validation("question %d requires text_response", q.ID)
	}
	text := *a.TextResponse // empty string is a valid answer
	return []model.SubmissionAnswer{{QuestionID: q.ID, TextResponse: &text}}, nil
}

// rejectText refuses a non-blank text_response on choice questions. A blank
// one is tolerated for client convenience.
func rejectText(q model.Question, a AnswerInput) error {
	if a.TextResponse != nil && *a.TextResponse != "" {
		return fault.Validation("question %d does not accept text_response", q.ID)
	}
	return nil
}

func checkOwnership(q model.Question, optionID int, options map[int]model.Option) error {
	opt, ok := options[optionID]
	if !ok || opt.QuestionID != q.ID {
		return fault.Validation("option %d does not belong to question %d", optionID, q.ID)
	}
	return nil
}

// resolveGeo resolves the optional IBGE city / state pair. Both codes must be
// supplied for the lookup to happen, and the city must belong to the state.
func (v *Validator) resolveGeo(ctx context.Context, ibgeCode, stateCode string) (*model.City, *model.State, error) {
	if ibgeCode == "" || stateCode == "" {
		return nil, nil, nil
	}

	city, err := v.catalog.CityByIBGE(ctx, ibgeCode)
	if err != nil {
		return nil, nil, err
	}
	if city == nil {
		return nil, nil, fault.Validation("city with IBGE code %s not found", ibgeCode)
	}

	state, err := v.catalog.StateByCode(ctx, stateCode)
	if err != nil {
		return nil, nil, err
	}
	if state == nil {
		return nil, nil, fault.Validation("state with code %s not found", stateCode)
	}

	if city.StateID != state.ID {
		return nil, nil, fault.Validation("city %s does not belong to state %s", city.Name, state.Name)
	}
	return city, state, nil
}
