package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/opina-app/opina/model"
)

const exportTimeFormat = "2006-01-02 15:04:05"

// WriteCSV writes the long-format submission export: one line per answer,
// submission columns repeated.
func WriteCSV(w io.Writer, submissions []SubmissionDetail) error {
	out := csv.NewWriter(w)
	err := out.Write([]string{"Submission ID", "Submitted At", "IP", "State", "City", "Latitude", "Longitude", "Question", "Answer"})
	if err != nil {
		return err
	}

	for _, sub := range submissions {
		for _, a := range sub.Answers {
			err = out.Write([]string{
				strconv.Itoa(sub.ID),
				sub.SubmittedAt.Format(exportTimeFormat),
				sub.IPAddress,
				sub.StateName,
				sub.CityName,
				formatCoord(sub.Latitude),
				formatCoord(sub.Longitude),
				a.QuestionText,
				answerText(a),
			})
			if err != nil {
				return err
			}
		}
	}

	out.Flush()
	return out.Error()
}

// WriteDashboardCSV writes the wide-format dashboard export: one line per
// submission, one column per survey question.
func WriteDashboardCSV(w io.Writer, questions []model.Question, submissions []SubmissionDetail) error {
	out := csv.NewWriter(w)

	header := []string{"Submission ID", "Submitted At", "IP Address", "State", "City", "Latitude", "Longitude"}
	for _, q := range questions {
		header = append(header, fmt.Sprintf("Q%d: %s", q.ID, q.Text))
	}
	if err := out.Write(header); err != nil {
		return err
	}

	for _, sub := range submissions {
		row := []string{
			strconv.Itoa(sub.ID),
			sub.SubmittedAt.Format(exportTimeFormat),
			sub.IPAddress,
			sub.StateName,
			sub.CityName,
			formatCoord(sub.Latitude),
			formatCoord(sub.Longitude),
		}
		for _, q := range questions {
			row = append(row, answersForQuestion(sub, q.ID))
		}
		if err := out.Write(row); err != nil {
			return err
		}
	}

	out.Flush()
	return out.Error()
}

// answersForQuestion joins the answers a submission gave to one question;
// multiple-choice selections become a "; "-separated list.
func answersForQuestion(sub SubmissionDetail, questionID int) string {
	var texts []string
	for _, a := range sub.Answers {
		if a.QuestionID == questionID {
			texts = append(texts, answerText(a))
		}
	}
	joined := ""
	for i, t := range texts {
		if i > 0 {
			joined += "; "
		}
		joined += t
	}
	return joined
}

func answerText(a AnswerDetail) string {
	if a.OptionText != nil {
		return *a.OptionText
	}
	if a.TextResponse != nil {
		return *a.TextResponse
	}
	return ""
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	return t.Format(exportTimeFormat)
}
