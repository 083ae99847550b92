package report

import (
	"bytes"

	"github.com/pkg/errors"
	"github.com/xuri/excelize/v2"

	"github.com/opina-app/opina/log"
)

var submissionHeaders = []string{"Submission ID", "Submitted At", "IP", "State", "City", "Latitude", "Longitude", "Question", "Answer"}

// WriteXLSX renders the long-format submission export as a spreadsheet.
func WriteXLSX(submissions []SubmissionDetail) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			log.WithError(err).Error("closing xlsx file")
		}
	}()

	sheet := "Sheet1"
	row, err := writeHeader(f, sheet, submissionHeaders)
	if err != nil {
		return nil, errors.Wrap(err, "write xlsx header")
	}

	for _, sub := range submissions {
		for _, a := range sub.Answers {
			row++
			cells := []any{
				sub.ID,
				formatTime(sub.SubmittedAt),
				sub.IPAddress,
				sub.StateName,
				sub.CityName,
				formatCoord(sub.Latitude),
				formatCoord(sub.Longitude),
				a.QuestionText,
				answerText(a),
			}
			for col, value := range cells {
				if err := writeColumn(f, sheet, col+1, row, value); err != nil {
					return nil, errors.Wrapf(err, "write xlsx row %d", row)
				}
			}
		}
	}

	f.SetSheetName(sheet, "Submissions")
	return f.WriteToBuffer()
}

func writeColumn(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(sheet, cell, value)
}

func writeHeader(f *excelize.File, sheet string, headers []string) (int, error) {
	row := 1
	style, err := f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center"},
		Font:      &excelize.Font{Bold: true, Size: 11},
	})
	if err != nil {
		return row, err
	}

	first, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return row, err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), row)
	if err != nil {
		return row, err
	}
	if err = f.SetCellStyle(sheet, first, last, style); err != nil {
		return row, err
	}

	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return row, err
	}
	if err = f.SetColWidth(sheet, "A", lastCol, 22); err != nil {
		return row, err
	}

	for i, value := range headers {
		if err = writeColumn(f, sheet, i+1, row, value); err != nil {
			return row, err
		}
	}
	return row, nil
}
