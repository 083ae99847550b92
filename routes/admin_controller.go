package routes

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/mattn/go-sqlite3"

	"github.com/opina-app/opina/app"
	"github.com/opina-app/opina/fault"
	"github.com/opina-app/opina/httpx"
	"github.com/opina-app/opina/log"
	"github.com/opina-app/opina/model"
	"github.com/opina-app/opina/report"
	"github.com/opina-app/opina/token"
)

// exports are not paginated, they cover the whole filtered set
const exportPageSize = 1 << 20

func isFKViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintForeignKey
}

func isUniqueViolation(err error) bool {
	var serr sqlite3.Error
	return errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func parseFilter(r *http.Request) (report.Filter, error) {
	f := report.Filter{
		From: r.URL.Query().Get("from"),
		To:   r.URL.Query().Get("to"),
	}
	var err error
	f.StateID, err = queryInt(r, "state", 0)
	if err != nil {
		return f, fault.Validation("state must be a numeric id")
	}
	f.CityID, err = queryInt(r, "city", 0)
	if err != nil {
		return f, fault.Validation("city must be a numeric id")
	}
	for _, d := range []string{f.From, f.To} {
		if d == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", d); err != nil {
			return f, fault.Validation("dates must be formatted as YYYY-MM-DD")
		}
	}
	return f, nil
}

func validateSurveyInput(s model.Survey) error {
	if strings.TrimSpace(s.Title) == "" {
		return fault.Validation("title must not be blank")
	}
	for i, q := range s.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fault.Validation("question %d: text must not be blank", i+1)
		}
		if !q.Type.Valid() {
			return fault.Validation("question %d: unknown question type %q", i+1, q.Type)
		}
		if q.Type.IsChoice() && len(q.Options) == 0 {
			return fault.Validation("question %d: choice questions need at least one option", i+1)
		}
		if !q.Type.IsChoice() && len(q.Options) > 0 {
			return fault.Validation("question %d: text questions cannot have options", i+1)
		}
		for j, o := range q.Options {
			if strings.TrimSpace(o.Text) == "" {
				return fault.Validation("question %d, option %d: text must not be blank", i+1, j+1)
			}
		}
	}
	return nil
}

func insertQuestions(r *http.Request, tx *sql.Tx, surveyID int, questions []model.Question) error {
	qStmt, err := tx.PrepareContext(r.Context(), `
		INSERT INTO question (survey_id, question_text, question_type)
		VALUES (?, ?, ?)
		RETURNING id`)
	if err != nil {
		return err
	}
	defer qStmt.Close()

	oStmt, err := tx.PrepareContext(r.Context(), `
		INSERT INTO option (question_id, option_text)
		VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer oStmt.Close()

	for _, q := range questions {
		var questionId int
		err = qStmt.QueryRowContext(r.Context(), surveyID, q.Text, q.Type).Scan(&questionId)
		if err != nil {
			return err
		}
		for _, o := range q.Options {
			_, err = oStmt.ExecContext(r.Context(), questionId, o.Text)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func CreateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		survey := model.Survey{}
		err := render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if err = validateSurveyInput(survey); err != nil {
			httpx.RenderFault(w, r, "create_survey.validate", err)
			return
		}

		var companyExists bool
		err = app.QueryRowContext(r.Context(), `
			SELECT 1 FROM company WHERE id = ?`,
			survey.CompanyID,
		).Scan(&companyExists)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.RenderFault(w, r, "create_survey.company", fault.Validation("company %d not found", survey.CompanyID))
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_company.scan", err)
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		surveyToken, err := token.Generate(survey.CompanyID, func(candidate string) (bool, error) {
			var taken bool
			err := tx.QueryRowContext(r.Context(), `
				SELECT 1 FROM survey WHERE token = ?`,
				candidate,
			).Scan(&taken)
			if errors.Is(err, sql.ErrNoRows) {
				return false, nil
			}
			return taken, err
		})
		if err != nil {
			httpx.LogInternalError(w, "token.generate", err)
			return
		}

		var surveyId int
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO survey (company_id, title, description, token)
			VALUES (?, ?, ?, ?)
			RETURNING id`,
			survey.CompanyID,
			survey.Title,
			survey.Description,
			surveyToken,
		).Scan(&surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey", err)
			return
		}

		err = insertQuestions(r, tx, surveyId, survey.Questions)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey.questions", err)
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.insert_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id":    surveyId,
			"token": surveyToken,
		})
	}
}

type surveyListItem struct {
	model.Survey
	SubmissionCount int `json:"submission_count"`
}

func ListSurveys(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyId, err := queryInt(r, "company", 0)
		if err != nil {
			httpx.RenderFault(w, r, "get_surveys.company", fault.Validation("company must be a numeric id"))
			return
		}
		page, err := queryInt(r, "page", 1)
		if err != nil || page < 1 {
			httpx.RenderFault(w, r, "get_surveys.page", fault.Validation("page must be a positive number"))
			return
		}
		pageSize, err := queryInt(r, "page_size", 20)
		if err != nil || pageSize < 1 {
			httpx.RenderFault(w, r, "get_surveys.page_size", fault.Validation("page_size must be a positive number"))
			return
		}

		query := `
			SELECT
				s.id, s.company_id, s.version, s.title, s.description, s.token, s.created_at,
				count(sub.id)
			FROM survey s
			LEFT OUTER JOIN submission sub ON (sub.survey_id = s.id)`
		args := []any{}
		where := []string{}
		if companyId != 0 {
			where = append(where, "s.company_id = ?")
			args = append(args, companyId)
		}
		if tok := r.URL.Query().Get("token"); tok != "" {
			where = append(where, "s.token = ?")
			args = append(args, tok)
		}
		if len(where) > 0 {
			query += " WHERE " + strings.Join(where, " AND ")
		}
		query += `
			GROUP BY s.id
			ORDER BY s.id
			LIMIT ? OFFSET ?`
		args = append(args, pageSize, (page-1)*pageSize)

		rows, err := app.QueryContext(r.Context(), query, args...)
		if err != nil {
			httpx.LogInternalError(w, "db.get_surveys", err)
			return
		}
		defer rows.Close()

		surveys := []surveyListItem{}
		for rows.Next() {
			s := surveyListItem{}
			err = rows.Scan(
				&s.ID, &s.CompanyID, &s.Version, &s.Title, &s.Description, &s.Token, &s.CreatedAt,
				&s.SubmissionCount,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.get_surveys.scan", err)
				return
			}
			surveys = append(surveys, s)
		}

		render.JSON(w, r, map[string]any{
			"surveys":   surveys,
			"page":      page,
			"page_size": pageSize,
		})
	}
}

func GetSurveyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey := model.Survey{}
		err = app.QueryRowContext(r.Context(), `
			SELECT s.id, s.company_id, s.version, s.title, s.description, s.token, s.created_at
			FROM survey s
			WHERE s.id = ?`,
			surveyId,
		).Scan(&survey.ID, &survey.CompanyID, &survey.Version, &survey.Title, &survey.Description, &survey.Token, &survey.CreatedAt)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_survey", surveyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey", err)
			return
		}

		survey.Questions, err = loadQuestionTree(r, app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.questions", err)
			return
		}

		render.JSON(w, r, survey)
	}
}

func UpdateSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		survey := model.Survey{}
		err = render.DecodeJSON(r.Body, &survey)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if err = validateSurveyInput(survey); err != nil {
			httpx.RenderFault(w, r, "update_survey.validate", err)
			return
		}

		found, err := surveyExists(r, app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.scan", err)
			return
		}
		if !found {
			httpx.LogNotFound(w, "update_survey", surveyId)
			return
		}

		locked, err := hasSubmissions(r, app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.submissions", err)
			return
		}
		if locked {
			httpx.RenderFault(w, r, "update_survey.restricted",
				fault.Conflict("survey %d has submissions and its questions cannot be rewritten", surveyId))
			return
		}

		tx, err := app.BeginTx(r.Context(), nil)
		if err != nil {
			httpx.LogInternalError(w, "db.begin_tx", err)
			return
		}
		defer tx.Rollback()

		// recreate the question tree wholesale, options cascade
		_, err = tx.ExecContext(r.Context(), `
			DELETE FROM question
			WHERE survey_id = ?`,
			surveyId,
		)
		if isFKViolation(err) {
			// a submission landed after the check above
			httpx.RenderFault(w, r, "update_survey.restricted",
				fault.Conflict("survey %d has submissions and its questions cannot be rewritten", surveyId))
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.delete_questions", err)
			return
		}

		err = insertQuestions(r, tx, surveyId, survey.Questions)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.questions", err)
			return
		}

		res, err := tx.ExecContext(r.Context(), `
			UPDATE survey
			SET
				title = ?,
				description = ?,
				version = version+1,
				updated_at = CURRENT_TIMESTAMP
			WHERE	id = ?
				AND version = ?`,
			survey.Title,
			survey.Description,
			surveyId,
			survey.Version,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey", err)
			return
		}
		// optimistic lock
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.verify", err)
			return
		}
		if n < 1 {
			httpx.LogStatus(w, http.StatusConflict, log.DebugLevel, "db.update_survey.verify.conflict")
			return
		}

		err = tx.Commit()
		if err != nil {
			httpx.LogInternalError(w, "db.update_survey.commit", err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteSurvey(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM survey WHERE id = ?`,
			surveyId,
		)
		if isFKViolation(err) {
			httpx.RenderFault(w, r, "delete_survey.restricted",
				fault.Conflict("survey %d has submissions and cannot be deleted", surveyId))
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_survey.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_survey", surveyId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func surveyExists(r *http.Request, app app.App, surveyID int) (bool, error) {
	var found bool
	err := app.QueryRowContext(r.Context(), `
		SELECT 1 FROM survey WHERE id = ?`,
		surveyID,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return found, err
}

func hasSubmissions(r *http.Request, app app.App, surveyID int) (bool, error) {
	var found bool
	err := app.QueryRowContext(r.Context(), `
		SELECT 1 FROM submission WHERE survey_id = ? LIMIT 1`,
		surveyID,
	).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return found, err
}

func GetSurveySubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		found, err := surveyExists(r, app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.scan", err)
			return
		}
		if !found {
			httpx.LogNotFound(w, "get_submissions", surveyId)
			return
		}

		filter, err := parseFilter(r)
		if err != nil {
			httpx.RenderFault(w, r, "get_submissions.filter", err)
			return
		}
		page, err := queryInt(r, "page", 1)
		if err != nil || page < 1 {
			httpx.RenderFault(w, r, "get_submissions.page", fault.Validation("page must be a positive number"))
			return
		}
		pageSize, err := queryInt(r, "page_size", 20)
		if err != nil || pageSize < 1 {
			httpx.RenderFault(w, r, "get_submissions.page_size", fault.Validation("page_size must be a positive number"))
			return
		}

		format := r.URL.Query().Get("format")
		if format != "" && format != "json" {
			page, pageSize = 1, exportPageSize
		}

		submissions, total, err := report.ListSubmissions(r.Context(), app.DB, surveyId, filter, page, pageSize)
		if err != nil {
			httpx.LogInternalError(w, "db.get_submissions", err)
			return
		}

		switch format {
		case "", "json":
			render.JSON(w, r, map[string]any{
				"submissions": submissions,
				"total":       total,
				"page":        page,
				"page_size":   pageSize,
			})

		case "csv":
			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="survey_%d_submissions.csv"`, surveyId))
			err = report.WriteCSV(w, submissions)
			if err != nil {
				log.Errorf("export.write_csv: %s", err)
			}

		case "xlsx":
			buf, err := report.WriteXLSX(submissions)
			if err != nil {
				httpx.LogInternalError(w, "export.write_xlsx", err)
				return
			}
			w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="survey_%d_submissions.xlsx"`, surveyId))
			w.Write(buf.Bytes())

		default:
			httpx.RenderFault(w, r, "get_submissions.format",
				fault.Validation("unknown format %q, expected json, csv or xlsx", format))
		}
	}
}

func DeleteSubmission(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		submissionId, err := strconv.Atoi(chi.URLParam(r, "subID"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.subID")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM submission
			WHERE id = ?
				AND survey_id = ?`,
			submissionId,
			surveyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.delete_submission", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_submission.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_submission", submissionId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func BulkDeleteSubmissions(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		body := struct {
			IDs []int `json:"ids"`
		}{}
		err = render.DecodeJSON(r.Body, &body)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}
		if len(body.IDs) == 0 {
			httpx.RenderFault(w, r, "bulk_delete.ids", fault.Validation("ids must not be empty"))
			return
		}

		args := []any{surveyId}
		marks := make([]string, len(body.IDs))
		for i, id := range body.IDs {
			marks[i] = "?"
			args = append(args, id)
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM submission
			WHERE survey_id = ?
				AND id IN (`+strings.Join(marks, ", ")+`)`,
			args...,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.bulk_delete_submissions", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.bulk_delete_submissions.verify", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"deleted": n,
		})
	}
}

func SurveyDashboard(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		found, err := surveyExists(r, app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.scan", err)
			return
		}
		if !found {
			httpx.LogNotFound(w, "dashboard", surveyId)
			return
		}

		filter, err := parseFilter(r)
		if err != nil {
			httpx.RenderFault(w, r, "dashboard.filter", err)
			return
		}

		if r.URL.Query().Get("format") == "csv" {
			questions, err := loadQuestionTree(r, app, surveyId)
			if err != nil {
				httpx.LogInternalError(w, "db.dashboard.questions", err)
				return
			}
			submissions, _, err := report.ListSubmissions(r.Context(), app.DB, surveyId, filter, 1, exportPageSize)
			if err != nil {
				httpx.LogInternalError(w, "db.dashboard.submissions", err)
				return
			}

			w.Header().Set("Content-Type", "text/csv; charset=utf-8")
			w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="survey_%d_dashboard.csv"`, surveyId))
			err = report.WriteDashboardCSV(w, questions, submissions)
			if err != nil {
				log.Errorf("export.write_dashboard_csv: %s", err)
			}
			return
		}

		gridRows, err := queryInt(r, "rows", 10)
		if err != nil || gridRows < 1 {
			httpx.RenderFault(w, r, "dashboard.rows", fault.Validation("rows must be a positive number"))
			return
		}
		gridCols, err := queryInt(r, "cols", 10)
		if err != nil || gridCols < 1 {
			httpx.RenderFault(w, r, "dashboard.cols", fault.Validation("cols must be a positive number"))
			return
		}

		total, lastAt, err := report.Totals(r.Context(), app.DB, surveyId, filter)
		if err != nil {
			httpx.LogInternalError(w, "db.dashboard.totals", err)
			return
		}

		distributions, err := report.OptionDistributions(r.Context(), app.DB, surveyId, filter)
		if err != nil {
			httpx.LogInternalError(w, "db.dashboard.distributions", err)
			return
		}

		points, err := report.GeoPoints(r.Context(), app.DB, surveyId, filter)
		if err != nil {
			httpx.LogInternalError(w, "db.dashboard.points", err)
			return
		}
		grid := report.BuildHeatGrid(points, gridRows, gridCols)

		body := map[string]any{
			"total":         total,
			"distributions": distributions,
			"points":        points,
			"heat_grid":     grid,
		}
		if lastAt != nil {
			body["last_submission_at"] = *lastAt
		}
		render.JSON(w, r, body)
	}
}

func SurveyStates(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		found, err := surveyExists(r, app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.scan", err)
			return
		}
		if !found {
			httpx.LogNotFound(w, "get_states", surveyId)
			return
		}

		states, err := report.StatesWithSubmissions(r.Context(), app.DB, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_states", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"states": states,
		})
	}
}

func SurveyCities(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		surveyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		found, err := surveyExists(r, app, surveyId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_survey.scan", err)
			return
		}
		if !found {
			httpx.LogNotFound(w, "get_cities", surveyId)
			return
		}

		stateId, err := queryInt(r, "state", 0)
		if err != nil {
			httpx.RenderFault(w, r, "get_cities.state", fault.Validation("state must be a numeric id"))
			return
		}

		cities, err := report.CitiesWithSubmissions(r.Context(), app.DB, surveyId, stateId)
		if err != nil {
			httpx.LogInternalError(w, "db.get_cities", err)
			return
		}

		render.JSON(w, r, map[string]any{
			"cities": cities,
		})
	}
}
