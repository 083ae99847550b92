package report

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/opina-app/opina/model"
)

// Filter narrows submission-based reports. From/To are inclusive dates
// (YYYY-MM-DD) matched against the submission timestamp; StateID/CityID
// restrict by resolved geography (zero means no restriction).
type Filter struct {
	From    string
	To      string
	StateID int
	CityID  int
}

func (f Filter) where() (clause string, args []any) {
	if f.From != "" {
		clause += " AND date(sub.submitted_at) >= ?"
		args = append(args, f.From)
	}
	if f.To != "" {
		clause += " AND date(sub.submitted_at) <= ?"
		args = append(args, f.To)
	}
	if f.StateID != 0 {
		clause += " AND sub.state_id = ?"
		args = append(args, f.StateID)
	}
	if f.CityID != 0 {
		clause += " AND sub.city_id = ?"
		args = append(args, f.CityID)
	}
	return
}

// StatesWithSubmissions lists the states having at least one submission for
// the survey, ordered by name.
func StatesWithSubmissions(ctx context.Context, db *sql.DB, surveyID int) ([]model.State, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT DISTINCT st.id, st.code, st.uf, st.name, st.latitude, st.longitude, st.region
		FROM state st
		INNER JOIN submission sub ON (sub.state_id = st.id)
		WHERE sub.survey_id = ?
		ORDER BY st.name`,
		surveyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	states := []model.State{}
	for rows.Next() {
		st := model.State{}
		err = rows.Scan(&st.ID, &st.Code, &st.UF, &st.Name, &st.Latitude, &st.Longitude, &st.Region)
		if err != nil {
			return nil, err
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// CitiesWithSubmissions lists the cities having submissions for the survey,
// optionally restricted to one state, ordered by name.
func CitiesWithSubmissions(ctx context.Context, db *sql.DB, surveyID, stateID int) ([]model.City, error) {
	query := `
		SELECT DISTINCT c.id, c.ibge_code, c.name, c.latitude, c.longitude, c.is_capital, c.state_id
		FROM city c
		INNER JOIN submission sub ON (sub.city_id = c.id)
		WHERE sub.survey_id = ?`
	args := []any{surveyID}
	if stateID != 0 {
		query += " AND c.state_id = ?"
		args = append(args, stateID)
	}
	query += " ORDER BY c.name"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cities := []model.City{}
	for rows.Next() {
		c := model.City{}
		err = rows.Scan(&c.ID, &c.IBGECode, &c.Name, &c.Latitude, &c.Longitude, &c.IsCapital, &c.StateID)
		if err != nil {
			return nil, err
		}
		cities = append(cities, c)
	}
	return cities, rows.Err()
}

// Totals returns the filtered submission count and the time of the most
// recent submission, nil when there are none.
func Totals(ctx context.Context, db *sql.DB, surveyID int, f Filter) (int, *time.Time, error) {
	clause, extra := f.where()
	args := append([]any{surveyID}, extra...)

	var total int
	var last sql.NullTime
	err := db.QueryRowContext(ctx, `
		SELECT count(*), max(sub.submitted_at)
		FROM submission sub
		WHERE sub.survey_id = ?`+clause,
		args...,
	).Scan(&total, &last)
	if err != nil {
		return 0, nil, err
	}
	if !last.Valid {
		return total, nil, nil
	}
	return total, &last.Time, nil
}

// GeoPoints returns the raw coordinates of every filtered submission that
// carries both latitude and longitude.
func GeoPoints(ctx context.Context, db *sql.DB, surveyID int, f Filter) ([]Point, error) {
	clause, extra := f.where()
	args := append([]any{surveyID}, extra...)
	rows, err := db.QueryContext(ctx, `
		SELECT sub.latitude, sub.longitude
		FROM submission sub
		WHERE sub.survey_id = ?
			AND sub.latitude IS NOT NULL
			AND sub.longitude IS NOT NULL`+clause,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	points := []Point{}
	for rows.Next() {
		p := Point{}
		err = rows.Scan(&p.Lat, &p.Lon)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

type OptionCount struct {
	OptionID int    `json:"option_id"`
	Text     string `json:"option_text"`
	Total    int    `json:"total"`
}

type Distribution struct {
	QuestionID   int           `json:"question_id"`
	QuestionText string        `json:"question_text"`
	Options      []OptionCount `json:"options"`
}

// OptionDistributions counts selected options per choice question of the
// survey, most selected first, honoring the submission filter. The filter
// lives in the join condition so options nobody picked still show up with a
// zero count.
func OptionDistributions(ctx context.Context, db *sql.DB, surveyID int, f Filter) ([]Distribution, error) {
	clause, extra := f.where()
	args := append(extra, surveyID)
	rows, err := db.QueryContext(ctx, `
		SELECT q.id, q.question_text, o.id, o.option_text, count(sub.id) AS total
		FROM question q
		INNER JOIN option o ON (o.question_id = q.id)
		LEFT OUTER JOIN submission_answer a ON (a.option_id = o.id)
		LEFT OUTER JOIN submission sub ON (sub.id = a.submission_id`+clause+`)
		WHERE q.survey_id = ?
			AND q.question_type IN ('single_choice', 'multiple_choice')
		GROUP BY q.id, q.question_text, o.id, o.option_text
		ORDER BY q.id, total DESC, o.id`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	distributions := []Distribution{}
	for rows.Next() {
		var qID int
		var qText string
		oc := OptionCount{}
		err = rows.Scan(&qID, &qText, &oc.OptionID, &oc.Text, &oc.Total)
		if err != nil {
			return nil, err
		}

		last := len(distributions) - 1
		if last < 0 || distributions[last].QuestionID != qID {
			distributions = append(distributions, Distribution{QuestionID: qID, QuestionText: qText})
			last++
		}
		distributions[last].Options = append(distributions[last].Options, oc)
	}
	return distributions, rows.Err()
}

// AnswerDetail is one answer with its question and option text resolved.
type AnswerDetail struct {
	QuestionID   int     `json:"question_id"`
	QuestionText string  `json:"question_text"`
	OptionID     *int    `json:"selected_option_id,omitempty"`
	OptionText   *string `json:"selected_option_text,omitempty"`
	TextResponse *string `json:"text_response,omitempty"`
}

// SubmissionDetail is a submission with resolved geography and its answers,
// the unit of the listing and export surfaces.
type SubmissionDetail struct {
	model.Submission
	StateName string         `json:"state,omitempty"`
	CityName  string         `json:"city,omitempty"`
	Answers   []AnswerDetail `json:"answers"`
}

// ListSubmissions loads one page of filtered submissions, newest first, with
// their answers attached. It also returns the total filtered count.
func ListSubmissions(ctx context.Context, db *sql.DB, surveyID int, f Filter, page, pageSize int) ([]SubmissionDetail, int, error) {
	clause, extra := f.where()
	countArgs := append([]any{surveyID}, extra...)

	var total int
	err := db.QueryRowContext(ctx, `
		SELECT count(*)
		FROM submission sub
		WHERE sub.survey_id = ?`+clause,
		countArgs...,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	args := append([]any{surveyID}, extra...)
	args = append(args, pageSize, (page-1)*pageSize)
	rows, err := db.QueryContext(ctx, `
		SELECT
			sub.id, sub.survey_id, sub.company_id, sub.survey_token,
			sub.city_id, sub.state_id, sub.ip_address,
			sub.latitude, sub.longitude, sub.user_agent,
			sub.occurred_at, sub.submitted_at,
			coalesce(st.name, ''), coalesce(c.name, '')
		FROM submission sub
		LEFT OUTER JOIN state st ON (st.id = sub.state_id)
		LEFT OUTER JOIN city c ON (c.id = sub.city_id)
		WHERE sub.survey_id = ?`+clause+`
		ORDER BY sub.submitted_at DESC, sub.id DESC
		LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	submissions := []SubmissionDetail{}
	index := map[int]int{}
	ids := []any{}
	for rows.Next() {
		d := SubmissionDetail{Answers: []AnswerDetail{}}
		err = rows.Scan(
			&d.ID, &d.SurveyID, &d.CompanyID, &d.SurveyToken,
			&d.CityID, &d.StateID, &d.IPAddress,
			&d.Latitude, &d.Longitude, &d.UserAgent,
			&d.OccurredAt, &d.SubmittedAt,
			&d.StateName, &d.CityName,
		)
		if err != nil {
			return nil, 0, err
		}
		index[d.ID] = len(submissions)
		ids = append(ids, d.ID)
		submissions = append(submissions, d)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, err
	}
	if len(submissions) == 0 {
		return submissions, total, nil
	}

	// chunk the id list to stay under SQLite's host parameter limit
	for start := 0; start < len(ids); start += answerIDBatch {
		end := start + answerIDBatch
		if end > len(ids) {
			end = len(ids)
		}
		err = attachAnswers(ctx, db, ids[start:end], index, submissions)
		if err != nil {
			return nil, 0, err
		}
	}
	return submissions, total, nil
}

var answerIDBatch = 500

func attachAnswers(ctx context.Context, db *sql.DB, ids []any, index map[int]int, submissions []SubmissionDetail) error {
	answers, err := db.QueryContext(ctx, `
		SELECT
			a.submission_id, a.question_id, q.question_text,
			a.option_id, o.option_text, a.text_response
		FROM submission_answer a
		INNER JOIN question q ON (q.id = a.question_id)
		LEFT OUTER JOIN option o ON (o.id = a.option_id)
		WHERE a.submission_id IN (`+placeholders(len(ids))+`)
		ORDER BY a.question_id, a.id`,
		ids...,
	)
	if err != nil {
		return err
	}
	defer answers.Close()

	for answers.Next() {
		var submissionID int
		a := AnswerDetail{}
		err = answers.Scan(&submissionID, &a.QuestionID, &a.QuestionText, &a.OptionID, &a.OptionText, &a.TextResponse)
		if err != nil {
			return err
		}
		i := index[submissionID]
		submissions[i].Answers = append(submissions[i].Answers, a)
	}
	return answers.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
