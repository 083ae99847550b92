package routes

import (
	"database/sql"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/opina-app/opina/app"
	"github.com/opina-app/opina/httpx"
	"github.com/opina-app/opina/intake"
	"github.com/opina-app/opina/log"
	"github.com/opina-app/opina/model"
	"github.com/opina-app/opina/routes/middlewares"
)

type surveyTree struct {
	model.Survey
	Company model.Company `json:"company"`
}

// PublicGetSurveyByToken returns the full survey tree (company, questions,
// options) identified by its shareable token.
func PublicGetSurveyByToken(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := chi.URLParam(r, "token")

		tree := surveyTree{}
		err := app.QueryRowContext(r.Context(), `
			SELECT s.id, s.company_id, s.version, s.title, s.description, s.token, c.id, c.name
			FROM survey s
			INNER JOIN company c ON (c.id = s.company_id)
			WHERE s.token = ?`,
			tok,
		).Scan(
			&tree.ID, &tree.CompanyID, &tree.Version, &tree.Title, &tree.Description, &tree.Token,
			&tree.Company.ID, &tree.Company.Name,
		)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_survey_by_token", tok)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey_by_token", err)
			return
		}

		tree.Questions, err = loadQuestionTree(r, app, tree.ID)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey_by_token.questions", err)
			return
		}

		render.JSON(w, r, tree)
	}
}

func loadQuestionTree(r *http.Request, app app.App, surveyID int) ([]model.Question, error) {
	rows, err := app.QueryContext(r.Context(), `
		SELECT q.id, q.question_text, q.question_type, o.id, o.option_text
		FROM question q
		LEFT OUTER JOIN option o ON (o.question_id = q.id)
		WHERE q.survey_id = ?
		ORDER BY q.id, o.id`,
		surveyID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	questions := []model.Question{}
	for rows.Next() {
		q := model.Question{SurveyID: surveyID}
		var optionID *int
		var optionText *string
		err = rows.Scan(&q.ID, &q.Text, &q.Type, &optionID, &optionText)
		if err != nil {
			return nil, err
		}

		last := len(questions) - 1
		if last < 0 || questions[last].ID != q.ID {
			questions = append(questions, q)
			last++
		}
		if optionID != nil {
			questions[last].Options = append(questions[last].Options, model.Option{
				ID:         *optionID,
				QuestionID: q.ID,
				Text:       *optionText,
			})
		}
	}
	return questions, rows.Err()
}

type submissionCreated struct {
	ID          int       `json:"id"`
	SurveyToken string    `json:"survey_token"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmitAnswers validates a submission payload against the catalog and
// persists the submission with its answer rows in one transaction.
func SubmitAnswers(app app.App) http.HandlerFunc {
	validator := intake.NewValidator(intake.NewSQLCatalog(app.DB))

	return func(w http.ResponseWriter, r *http.Request) {
		req := intake.Request{}
		err := render.DecodeJSON(r.Body, &req)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		req.IPAddress = clientIP(r)
		req.UserAgent = r.UserAgent()

		norm, err := validator.Validate(r.Context(), req)
		if err != nil {
			httpx.RenderFault(w, r, "submit.validate", err)
			return
		}

		// the authenticated account may only feed its own company's surveys
		principal, ok := middlewares.PrincipalFrom(r)
		if !ok || principal.CompanyID != norm.Survey.CompanyID {
			httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "submit.company_mismatch")
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		var cityID, stateID *int
		if norm.City != nil {
			cityID = &norm.City.ID
		}
		if norm.State != nil {
			stateID = &norm.State.ID
		}

		submittedAt := time.Now()
		var submissionId int
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO submission (
				survey_id, company_id, survey_token, city_id, state_id,
				ip_address, latitude, longitude, user_agent, occurred_at, submitted_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`,
			norm.Survey.ID,
			norm.Survey.CompanyID,
			norm.Survey.Token,
			cityID,
			stateID,
			req.IPAddress,
			req.Latitude,
			req.Longitude,
			req.UserAgent,
			norm.OccurredAt,
			submittedAt,
		).Scan(&submissionId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission", err)
			return
		}

		stmt, err := tx.PrepareContext(r.Context(), `
			INSERT INTO submission_answer (submission_id, question_id, option_id, text_response)
			VALUES (?, ?, ?, ?)`)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission.answers.prepare", err)
			return
		}
		defer stmt.Close()

		for _, a := range norm.Answers {
			_, err = stmt.ExecContext(r.Context(), submissionId, a.QuestionID, a.OptionID, a.TextResponse)
			if err != nil {
				httpx.LogInternalError(w, "db.insert_submission.answers.insert", err)
				return
			}
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_submission.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, submissionCreated{
			ID:          submissionId,
			SurveyToken: norm.Survey.Token,
			SubmittedAt: submittedAt,
		})
	}
}

// clientIP prefers the first X-Forwarded-For entry, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
