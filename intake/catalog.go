package intake

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/opina-app/opina/model"
)

// SQLCatalog implements Catalog on top of the relational store.
type SQLCatalog struct {
	db *sql.DB
}

func NewSQLCatalog(db *sql.DB) *SQLCatalog {
	return &SQLCatalog{db: db}
}

func (c *SQLCatalog) SurveyByToken(ctx context.Context, tok string) (*model.Survey, error) {
	s := model.Survey{}
	err := c.db.QueryRowContext(ctx, `
		SELECT id, company_id, version, title, description, token
		FROM survey
		WHERE token = ?`,
		tok,
	).Scan(&s.ID, &s.CompanyID, &s.Version, &s.Title, &s.Description, &s.Token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *SQLCatalog) QuestionsByIDs(ctx context.Context, surveyID int, ids []int) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := []any{surveyID}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, survey_id, question_text, question_type
		FROM question
		WHERE survey_id = ?
			AND id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		q := model.Question{}
		err = rows.Scan(&q.ID, &q.SurveyID, &q.Text, &q.Type)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

func (c *SQLCatalog) OptionsByIDs(ctx context.Context, surveyID int, ids []int) ([]model.Option, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := []any{surveyID}
	for _, id := range ids {
		args = append(args, id)
	}
	rows, err := c.db.QueryContext(ctx, `
		SELECT o.id, o.question_id, o.option_text
		FROM option o
		INNER JOIN question q ON (q.id = o.question_id)
		WHERE q.survey_id = ?
			AND o.id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []model.Option
	for rows.Next() {
		o := model.Option{}
		err = rows.Scan(&o.ID, &o.QuestionID, &o.Text)
		if err != nil {
			return nil, err
		}
		options = append(options, o)
	}
	return options, rows.Err()
}

func (c *SQLCatalog) CityByIBGE(ctx context.Context, ibgeCode string) (*model.City, error) {
	city := model.City{}
	err := c.db.QueryRowContext(ctx, `
		SELECT id, ibge_code, name, latitude, longitude, is_capital, state_id
		FROM city
		WHERE ibge_code = ?`,
		ibgeCode,
	).Scan(&city.ID, &city.IBGECode, &city.Name, &city.Latitude, &city.Longitude, &city.IsCapital, &city.StateID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &city, nil
}

func (c *SQLCatalog) StateByCode(ctx context.Context, code string) (*model.State, error) {
	state := model.State{}
	err := c.db.QueryRowContext(ctx, `
		SELECT id, code, uf, name, latitude, longitude, region
		FROM state
		WHERE code = ?`,
		code,
	).Scan(&state.ID, &state.Code, &state.UF, &state.Name, &state.Latitude, &state.Longitude, &state.Region)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
