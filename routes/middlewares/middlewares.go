package middlewares

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/oauth"
	"golang.org/x/crypto/bcrypt"

	"github.com/opina-app/opina/httpx"
	"github.com/opina-app/opina/log"
	"github.com/opina-app/opina/model"
)

type ctxKey int

const principalKey ctxKey = iota

// Admin checks for the 'admin' role in a staff OAuth token.
func Admin(tokenSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return chi.Chain(oauth.Authorize(tokenSecret, nil), admin).Handler(next)
	}
}

func admin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := r.Context().Value(oauth.ClaimsContext).(map[string]string)

		isAdmin := false
		if rolesClaim, ok := claims["roles"]; ok {
			for _, role := range strings.Split(rolesClaim, ",") {
				if role == "admin" {
					isAdmin = true
					break
				}
			}
		}

		if !isAdmin {
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// CompanyAuth authenticates company API accounts through HTTP Basic and puts
// the resulting Principal on the request context. Revoked accounts and
// payment-suspended companies are rejected.
func CompanyAuth(db *sql.DB) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			username, password, ok := r.BasicAuth()
			if !ok {
				w.Header().Set("www-authenticate", `Basic realm="api"`)
				httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "company_auth.missing_credentials")
				return
			}

			var accountID, companyID int
			var hash []byte
			var revokedAt sql.NullTime
			var paymentStatus string
			err := db.QueryRowContext(r.Context(), `
				SELECT a.id, a.company_id, a.password_hash, a.revoked_at, c.payment_status
				FROM api_account a
				INNER JOIN company c ON (c.id = a.company_id)
				WHERE a.username = ?`,
				username,
			).Scan(&accountID, &companyID, &hash, &revokedAt, &paymentStatus)
			if errors.Is(err, sql.ErrNoRows) {
				httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "company_auth.unknown_account")
				return
			}
			if err != nil {
				httpx.LogInternalError(w, "company_auth.lookup", err)
				return
			}

			if bcrypt.CompareHashAndPassword(hash, []byte(password)) != nil {
				httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "company_auth.bad_password")
				return
			}
			if revokedAt.Valid {
				httpx.LogStatus(w, http.StatusUnauthorized, log.DebugLevel, "company_auth.revoked")
				return
			}
			if paymentStatus == model.PaymentSuspended {
				httpx.LogStatus(w, http.StatusForbidden, log.DebugLevel, "company_auth.suspended")
				return
			}

			principal := model.Principal{AccountID: accountID, CompanyID: companyID, Username: username}
			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFrom extracts the authenticated company principal, if any.
func PrincipalFrom(r *http.Request) (model.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(model.Principal)
	return p, ok
}

// CookieAuth lets browser GET requests authenticate through the access_token
// cookie, transparently refreshing it when expired.
func CookieAuth(bearerServer *oauth.BearerServer) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != "GET" {
				h.ServeHTTP(w, r)
				return
			}

			token, err := r.Cookie("access_token")
			if err != nil && !errors.Is(err, http.ErrNoCookie) {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if err == nil {
				r.Header.Set("authorization", "Bearer "+token.Value)
				buf := httpx.NewResponseBuffer()
				h.ServeHTTP(buf, r)
				if buf.Status() != 401 {
					buf.Flush(w)
					return
				}
			}

			loginLocation := "/login?goto=" + url.QueryEscape(r.RequestURI)

			// token was empty or unauthorized
			refreshToken, err := r.Cookie("refresh_token")
			if err != nil {
				if !errors.Is(err, http.ErrNoCookie) {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}

				// refresh token was empty: redirect to login page
				w.Header().Set("location", loginLocation)
				w.WriteHeader(http.StatusTemporaryRedirect)
				return
			}

			// produce a new token by replaying a refresh grant against the
			// bearer server
			body := url.Values{
				"grant_type":    {"refresh_token"},
				"refresh_token": {refreshToken.Value},
			}
			req, err := http.NewRequest("POST", "/", strings.NewReader(body.Encode()))
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			req.Header.Set("content-type", "application/x-www-form-urlencoded")
			req.Header.Set("content-length", strconv.Itoa(len(body.Encode())))

			resp := httpx.NewResponseBuffer()
			bearerServer.UserCredentials(resp, req)
			if resp.Status() == 401 {
				// redirect to login page
				w.Header().Set("location", loginLocation)
				http.SetCookie(w, &http.Cookie{
					Path:     "/",
					Name:     "refresh_token",
					Value:    "",
					MaxAge:   -1,
					SameSite: http.SameSiteNoneMode,
				})
				w.WriteHeader(http.StatusTemporaryRedirect)
				return
			}
			if resp.Status() != 200 {
				http.Error(w, http.StatusText(resp.Status()), resp.Status())
				return
			}

			var responseBody map[string]any
			err = json.Unmarshal(resp.Body(), &responseBody)
			if err != nil {
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}

			token = &http.Cookie{
				Path:     "/",
				Name:     "access_token",
				Value:    responseBody["access_token"].(string),
				MaxAge:   int(responseBody["expires_in"].(float64)),
				SameSite: http.SameSiteNoneMode,
			}
			http.SetCookie(w, token)

			refreshToken = &http.Cookie{
				Path:     "/",
				Name:     "refresh_token",
				Value:    responseBody["refresh_token"].(string),
				MaxAge:   60 * 60 * 24 * 365,
				SameSite: http.SameSiteNoneMode,
			}
			http.SetCookie(w, refreshToken)

			r.Header.Set("authorization", "Bearer "+token.Value)
			h.ServeHTTP(w, r)
		})
	}
}
