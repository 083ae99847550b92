package routes

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/gofrs/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/opina-app/opina/app"
	"github.com/opina-app/opina/fault"
	"github.com/opina-app/opina/httpx"
	"github.com/opina-app/opina/log"
	"github.com/opina-app/opina/model"
)

func validateCompanyInput(c model.Company) error {
	if strings.TrimSpace(c.Name) == "" {
		return fault.Validation("name must not be blank")
	}
	switch c.CompanyType {
	case "", model.CompanyProspect, model.CompanyClient:
	default:
		return fault.Validation("unknown company type %q", c.CompanyType)
	}
	switch c.PaymentStatus {
	case "", model.PaymentActive, model.PaymentOverdue, model.PaymentSuspended:
	default:
		return fault.Validation("unknown payment status %q", c.PaymentStatus)
	}
	return nil
}

func CreateCompany(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		company := model.Company{}
		err := render.DecodeJSON(r.Body, &company)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if err = validateCompanyInput(company); err != nil {
			httpx.RenderFault(w, r, "create_company.validate", err)
			return
		}
		if company.CompanyType == "" {
			company.CompanyType = model.CompanyProspect
		}
		if company.PaymentStatus == "" {
			company.PaymentStatus = model.PaymentActive
		}

		var companyId int
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO company (
				name, responsible_person, phone, cnpj,
				company_type, is_active, payment_status, notes,
				activated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, CASE WHEN ? THEN CURRENT_TIMESTAMP END)
			RETURNING id`,
			company.Name,
			company.ResponsiblePerson,
			company.Phone,
			company.CNPJ,
			company.CompanyType,
			company.IsActive,
			company.PaymentStatus,
			company.Notes,
			company.IsActive,
		).Scan(&companyId)
		if err != nil {
			httpx.LogInternalError(w, "db.insert_company", err)
			return
		}

		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, map[string]any{
			"id": companyId,
		})
	}
}

type companyListItem struct {
	model.Company
	SurveyCount int `json:"survey_count"`
}

func ListCompanies(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := app.QueryContext(r.Context(), `
			SELECT
				c.id, c.name, c.responsible_person, c.phone, c.cnpj,
				c.company_type, c.is_active, c.payment_status, c.notes,
				c.created_at, c.activated_at,
				count(s.id)
			FROM company c
			LEFT OUTER JOIN survey s ON (s.company_id = c.id)
			GROUP BY c.id
			ORDER BY c.name`)
		if err != nil {
			httpx.LogInternalError(w, "db.get_companies", err)
			return
		}
		defer rows.Close()

		companies := []companyListItem{}
		for rows.Next() {
			c := companyListItem{}
			err = rows.Scan(
				&c.ID, &c.Name, &c.ResponsiblePerson, &c.Phone, &c.CNPJ,
				&c.CompanyType, &c.IsActive, &c.PaymentStatus, &c.Notes,
				&c.CreatedAt, &c.ActivatedAt,
				&c.SurveyCount,
			)
			if err != nil {
				httpx.LogInternalError(w, "db.get_companies.scan", err)
				return
			}
			companies = append(companies, c)
		}

		render.JSON(w, r, map[string]any{
			"companies": companies,
		})
	}
}

type companyDetail struct {
	model.Company
	Accounts []model.APIAccount `json:"accounts"`
}

func GetCompanyById(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		detail := companyDetail{Accounts: []model.APIAccount{}}
		err = app.QueryRowContext(r.Context(), `
			SELECT
				c.id, c.name, c.responsible_person, c.phone, c.cnpj,
				c.company_type, c.is_active, c.payment_status, c.notes,
				c.created_at, c.activated_at
			FROM company c
			WHERE c.id = ?`,
			companyId,
		).Scan(
			&detail.ID, &detail.Name, &detail.ResponsiblePerson, &detail.Phone, &detail.CNPJ,
			&detail.CompanyType, &detail.IsActive, &detail.PaymentStatus, &detail.Notes,
			&detail.CreatedAt, &detail.ActivatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			httpx.LogNotFound(w, "get_company", companyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.get_company", err)
			return
		}

		rows, err := app.QueryContext(r.Context(), `
			SELECT a.id, a.company_id, a.username, a.label, a.created_at, a.revoked_at
			FROM api_account a
			WHERE a.company_id = ?
			ORDER BY a.id`,
			companyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.get_company.accounts", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			a := model.APIAccount{}
			err = rows.Scan(&a.ID, &a.CompanyID, &a.Username, &a.Label, &a.CreatedAt, &a.RevokedAt)
			if err != nil {
				httpx.LogInternalError(w, "db.get_company.accounts.scan", err)
				return
			}
			detail.Accounts = append(detail.Accounts, a)
		}

		render.JSON(w, r, detail)
	}
}

func UpdateCompany(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		company := model.Company{}
		err = render.DecodeJSON(r.Body, &company)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		if err = validateCompanyInput(company); err != nil {
			httpx.RenderFault(w, r, "update_company.validate", err)
			return
		}

		// activation date sticks to the first time the company goes active
		res, err := app.ExecContext(r.Context(), `
			UPDATE company
			SET
				name = ?,
				responsible_person = ?,
				phone = ?,
				cnpj = ?,
				company_type = ?,
				is_active = ?,
				payment_status = ?,
				notes = ?,
				activated_at = CASE
					WHEN ? AND activated_at IS NULL THEN CURRENT_TIMESTAMP
					ELSE activated_at
				END,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			company.Name,
			company.ResponsiblePerson,
			company.Phone,
			company.CNPJ,
			company.CompanyType,
			company.IsActive,
			company.PaymentStatus,
			company.Notes,
			company.IsActive,
			companyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.update_company", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.update_company.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "update_company", companyId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func DeleteCompany(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			DELETE FROM company WHERE id = ?`,
			companyId,
		)
		if isFKViolation(err) {
			httpx.RenderFault(w, r, "delete_company.restricted",
				fault.Conflict("company %d has submissions and cannot be deleted", companyId))
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.delete_company", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.delete_company.verify", err)
			return
		}
		if n < 1 {
			httpx.LogNotFound(w, "delete_company", companyId)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

type apiAccountInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Label    string `json:"label"`
}

func CreateAPIAccount(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}

		input := apiAccountInput{}
		err = render.DecodeJSON(r.Body, &input)
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.parse_body")
			return
		}

		// credentials left out are generated, the password is returned once
		generatedPassword := false
		if input.Username == "" {
			input.Username = uuid.Must(uuid.NewV4()).String()
		}
		if input.Password == "" {
			input.Password = uuid.Must(uuid.NewV4()).String()
			generatedPassword = true
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
		if err != nil {
			httpx.LogInternalError(w, "create_account.hash_password", err)
			return
		}

		var accountId int
		err = app.QueryRowContext(r.Context(), `
			INSERT INTO api_account (company_id, username, password_hash, label)
			VALUES (?, ?, ?, ?)
			RETURNING id`,
			companyId,
			input.Username,
			string(hash),
			input.Label,
		).Scan(&accountId)
		if isUniqueViolation(err) {
			httpx.RenderFault(w, r, "create_account.username",
				fault.Validation("username %q is already taken", input.Username))
			return
		}
		if isFKViolation(err) {
			httpx.LogNotFound(w, "create_account.company", companyId)
			return
		}
		if err != nil {
			httpx.LogInternalError(w, "db.insert_account", err)
			return
		}

		body := map[string]any{
			"id":       accountId,
			"username": input.Username,
		}
		if generatedPassword {
			body["password"] = input.Password
		}
		w.WriteHeader(http.StatusCreated)
		render.JSON(w, r, body)
	}
}

func RevokeAPIAccount(app app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		companyId, err := strconv.Atoi(chi.URLParam(r, "id"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.id")
			return
		}
		accountId, err := strconv.Atoi(chi.URLParam(r, "accountID"))
		if err != nil {
			httpx.LogStatus(w, http.StatusBadRequest, log.DebugLevel, "request.get_url_param.accountID")
			return
		}

		res, err := app.ExecContext(r.Context(), `
			UPDATE api_account
			SET revoked_at = CURRENT_TIMESTAMP
			WHERE id = ?
				AND company_id = ?
				AND revoked_at IS NULL`,
			accountId,
			companyId,
		)
		if err != nil {
			httpx.LogInternalError(w, "db.revoke_account", err)
			return
		}
		n, err := res.RowsAffected()
		if err != nil {
			httpx.LogInternalError(w, "db.revoke_account.verify", err)
			return
		}
		if n < 1 {
			// revoking twice is a no-op, only a missing account is an error
			var found bool
			err = app.QueryRowContext(r.Context(), `
				SELECT 1 FROM api_account
				WHERE id = ?
					AND company_id = ?`,
				accountId,
				companyId,
			).Scan(&found)
			if errors.Is(err, sql.ErrNoRows) {
				httpx.LogNotFound(w, "revoke_account", accountId)
				return
			}
			if err != nil {
				httpx.LogInternalError(w, "db.revoke_account.scan", err)
				return
			}
		}

		w.WriteHeader(http.StatusNoContent)
	}
}
