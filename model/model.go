package model

import "time"

// QuestionType discriminates how a question is answered and which shape
// of answer payload is acceptable for it.
type QuestionType string

const (
	TextQuestion   QuestionType = "text"
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
)

func (t QuestionType) Valid() bool {
	switch t {
	case TextQuestion, SingleChoice, MultipleChoice:
		return true
	}
	return false
}

// IsChoice reports whether the question carries options.
func (t QuestionType) IsChoice() bool {
	return t == SingleChoice || t == MultipleChoice
}

type Company struct {
	ID                int        `json:"id,omitempty"`
	Name              string     `json:"name"`
	ResponsiblePerson string     `json:"responsible_person,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	CNPJ              string     `json:"cnpj,omitempty"`
	CompanyType       string     `json:"company_type,omitempty"` // prospect | client
	IsActive          bool       `json:"is_active"`
	PaymentStatus     string     `json:"payment_status,omitempty"` // active | overdue | suspended
	Notes             string     `json:"notes,omitempty"`
	CreatedAt         time.Time  `json:"created_at,omitempty"`
	ActivatedAt       *time.Time `json:"activated_at,omitempty"`
}

const (
	CompanyProspect = "prospect"
	CompanyClient   = "client"

	PaymentActive    = "active"
	PaymentOverdue   = "overdue"
	PaymentSuspended = "suspended"
)

// APIAccount is a company-scoped credential for the submission API.
// A revoked account keeps its row so past submissions stay attributable.
type APIAccount struct {
	ID        int        `json:"id,omitempty"`
	CompanyID int        `json:"company_id"`
	Username  string     `json:"username"`
	Label     string     `json:"label,omitempty"`
	CreatedAt time.Time  `json:"created_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Principal is the authenticated identity of a company API request.
type Principal struct {
	AccountID int
	CompanyID int
	Username  string
}

type Survey struct {
	ID          int        `json:"id,omitempty"`
	CompanyID   int        `json:"company_id"`
	Version     int        `json:"version,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Token       string     `json:"token,omitempty"`
	Questions   []Question `json:"questions,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
}

type Question struct {
	ID       int          `json:"id,omitempty"`
	SurveyID int          `json:"survey_id,omitempty"`
	Text     string       `json:"text"`
	Type     QuestionType `json:"type"`
	Options  []Option     `json:"options,omitempty"`
}

type Option struct {
	ID         int    `json:"id,omitempty"`
	QuestionID int    `json:"question_id,omitempty"`
	Text       string `json:"text"`
}

// State is a Brazilian federation unit from the IBGE reference data.
type State struct {
	ID        int     `json:"id"`
	Code      string  `json:"code"`
	UF        string  `json:"uf"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Region    string  `json:"region,omitempty"`
}

// City is a Brazilian municipality, keyed by its IBGE code.
type City struct {
	ID        int     `json:"id"`
	IBGECode  string  `json:"ibge_code"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	IsCapital bool    `json:"is_capital,omitempty"`
	StateID   int     `json:"state_id"`
}

type Submission struct {
	ID          int       `json:"id"`
	SurveyID    int       `json:"survey_id"`
	CompanyID   int       `json:"company_id"`
	SurveyToken string    `json:"survey_token"`
	CityID      *int      `json:"city_id,omitempty"`
	StateID     *int      `json:"state_id,omitempty"`
	IPAddress   string    `json:"ip_address,omitempty"`
	Latitude    *float64  `json:"latitude,omitempty"`
	Longitude   *float64  `json:"longitude,omitempty"`
	UserAgent   string    `json:"user_agent,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// SubmissionAnswer is one persisted answer unit: either a selected option
// reference (choice questions, one row per selection) or a free-text value.
type SubmissionAnswer struct {
	ID           int     `json:"id,omitempty"`
	SubmissionID int     `json:"submission_id,omitempty"`
	QuestionID   int     `json:"question_id"`
	OptionID     *int    `json:"option_id,omitempty"`
	TextResponse *string `json:"text_response,omitempty"`
}
