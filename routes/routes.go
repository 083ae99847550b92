package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/opina-app/opina/app"
	"github.com/opina-app/opina/routes/middlewares"
)

func Wire(app app.App) http.Handler {
	root := chi.NewRouter()
	root.Use(middleware.Logger, middleware.Recoverer)

	root.Mount("/api", apiRouter(app))

	root.
		With(middlewares.CookieAuth(app.BearerServer), middlewares.Admin(app.TokenSecret)).
		Mount("/admin", servePrivateFiles("/admin"))
	root.Mount("/", servePublicFiles())

	return root
}

func apiRouter(app app.App) http.Handler {
	api := chi.NewRouter()

	// public survey lookup by token; the token is the only credential
	api.Get("/surveys/{token}", PublicGetSurveyByToken(app))

	// company API
	api.With(middlewares.CompanyAuth(app.DB)).Post("/submissions", SubmitAnswers(app))

	api.Route("/admin", func(r chi.Router) {
		r.Use(middlewares.Admin(app.TokenSecret))

		// CRUD survey
		r.Post("/surveys", CreateSurvey(app))
		r.Get("/surveys", ListSurveys(app))
		r.Get(`/surveys/{id:^\d+$}`, GetSurveyById(app))
		r.Put(`/surveys/{id:^\d+$}`, UpdateSurvey(app))
		r.Delete(`/surveys/{id:^\d+$}`, DeleteSurvey(app))

		// collected submissions and reporting
		r.Get(`/surveys/{id:^\d+$}/submissions`, GetSurveySubmissions(app))
		r.Delete(`/surveys/{id:^\d+$}/submissions/{subID:^\d+$}`, DeleteSubmission(app))
		r.Post(`/surveys/{id:^\d+$}/submissions/bulk-delete`, BulkDeleteSubmissions(app))
		r.Get(`/surveys/{id:^\d+$}/dashboard`, SurveyDashboard(app))
		r.Get(`/surveys/{id:^\d+$}/states`, SurveyStates(app))
		r.Get(`/surveys/{id:^\d+$}/cities`, SurveyCities(app))

		// CRUD company + API accounts
		r.Post("/companies", CreateCompany(app))
		r.Get("/companies", ListCompanies(app))
		r.Get(`/companies/{id:^\d+$}`, GetCompanyById(app))
		r.Put(`/companies/{id:^\d+$}`, UpdateCompany(app))
		r.Delete(`/companies/{id:^\d+$}`, DeleteCompany(app))
		r.Post(`/companies/{id:^\d+$}/accounts`, CreateAPIAccount(app))
		r.Delete(`/companies/{id:^\d+$}/accounts/{accountID:^\d+$}`, RevokeAPIAccount(app))
	})

	api.Post("/login", Login(app))
	api.Post("/refresh", Refresh(app))

	return api
}

func servePublicFiles() http.Handler {
	return http.FileServer(http.Dir("public"))
}

func servePrivateFiles(path string) http.Handler {
	return http.StripPrefix(path, http.FileServer(http.Dir("private")))
}
