package services

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"ai-tutor-platform/models"
)

// ExportService renders spreadsheet snapshots of the persisted exercise
// bank for course staff.
type ExportService struct {
	exercises *mongo.Collection
}

// NewExportService creates the export service over the exercises collection.
func NewExportService(db *mongo.Database) *ExportService {
	return &ExportService{exercises: db.Collection("exercises")}
}

// ExerciseWorkbook builds an xlsx workbook of the exercise bank: one sheet
// per course plus a summary sheet with per-course difficulty counts. An
// empty course filter exports every course. Returns the workbook bytes and
// the number of exported exercises; zero exercises yield (nil, 0, nil).
func (es *ExportService) ExerciseWorkbook(ctx context.Context, course string) ([]byte, int, error) {
	filter := bson.M{}
	if course != "" {
		filter["course"] = course
	}

	opts := options.Find().SetSort(bson.D{
		{Key: "course", Value: 1},
		{Key: "topic", Value: 1},
		{Key: "difficulty", Value: 1},
		{Key: "created_at", Value: -1},
	})
	cursor, err := es.exercises.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("fetching exercises: %w", err)
	}
	defer cursor.Close(ctx)

	var exercises []models.Exercise
	if err := cursor.All(ctx, &exercises); err != nil {
		return nil, 0, fmt.Errorf("decoding exercises: %w", err)
	}
	if len(exercises) == 0 {
		return nil, 0, nil
	}

	f := excelize.NewFile()
	defer f.Close()

	byCourse := make(map[string][]models.Exercise)
	var courses []string
	for _, ex := range exercises {
		if _, seen := byCourse[ex.Course]; !seen {
			courses = append(courses, ex.Course)
		}
		byCourse[ex.Course] = append(byCourse[ex.Course], ex)
	}

	headers := []string{
		"ID", "Topic", "Difficulty", "Content", "Solution",
		"Methodology", "Procedures", "Expected", "From Pool", "Created At",
	}

	firstSheet := 0
	for i, courseName := range courses {
		sheet := sheetName(courseName)
		index, err := f.NewSheet(sheet)
		if err != nil {
			return nil, 0, fmt.Errorf("creating sheet %q: %w", sheet, err)
		}
		if i == 0 {
			firstSheet = index
		}

		for col, header := range headers {
			cell := fmt.Sprintf("%c1", 'A'+col)
			f.SetCellValue(sheet, cell, header)
		}

		for rowIdx, ex := range byCourse[courseName] {
			row := rowIdx + 2
			f.SetCellValue(sheet, fmt.Sprintf("A%d", row), ex.ID.Hex())
			f.SetCellValue(sheet, fmt.Sprintf("B%d", row), ex.Topic)
			f.SetCellValue(sheet, fmt.Sprintf("C%d", row), ex.Difficulty)
			f.SetCellValue(sheet, fmt.Sprintf("D%d", row), ex.Content)
			f.SetCellValue(sheet, fmt.Sprintf("E%d", row), ex.Solution)
			f.SetCellValue(sheet, fmt.Sprintf("F%d", row), ex.Methodology)
			f.SetCellValue(sheet, fmt.Sprintf("G%d", row), procedureNames(ex.AvailableProcedures))
			f.SetCellValue(sheet, fmt.Sprintf("H%d", row), expectedIDs(ex.ExpectedProcedures))
			f.SetCellValue(sheet, fmt.Sprintf("I%d", row), ex.FromPool)
			f.SetCellValue(sheet, fmt.Sprintf("J%d", row), ex.CreatedAt.Format("2006-01-02 15:04:05"))
		}

		for col := range headers {
			ref := fmt.Sprintf("%c:%c", 'A'+col, 'A'+col)
			width := 15.0
			if col >= 3 && col <= 5 { // content, solution, methodology
				width = 40.0
			}
			f.SetColWidth(sheet, ref, ref, width)
		}
	}

	if err := writeSummarySheet(f, courses, byCourse, len(exercises)); err != nil {
		return nil, 0, err
	}

	f.SetActiveSheet(firstSheet)
	_ = f.DeleteSheet("Sheet1")

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, 0, fmt.Errorf("writing workbook: %w", err)
	}
	return buf.Bytes(), len(exercises), nil
}

func writeSummarySheet(f *excelize.File, courses []string, byCourse map[string][]models.Exercise, total int) error {
	const sheet = "Summary"
	if _, err := f.NewSheet(sheet); err != nil {
		return fmt.Errorf("creating summary sheet: %w", err)
	}

	info := [][]interface{}{
		{"Export Date", time.Now().Format("2006-01-02 15:04:05")},
		{"Total Exercises", total},
		{"Courses", len(courses)},
	}
	for i, row := range info {
		for j, cell := range row {
			f.SetCellValue(sheet, fmt.Sprintf("%c%d", 'A'+j, i+1), cell)
		}
	}

	headerRow := len(info) + 2
	for col, header := range []string{"Course", "Total", "Easy", "Medium", "Hard", "From Pool"} {
		f.SetCellValue(sheet, fmt.Sprintf("%c%d", 'A'+col, headerRow), header)
	}

	row := headerRow + 1
	for _, courseName := range courses {
		perDifficulty := make(map[string]int)
		fromPool := 0
		for _, ex := range byCourse[courseName] {
			perDifficulty[ex.Difficulty]++
			if ex.FromPool {
				fromPool++
			}
		}
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), courseName)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), len(byCourse[courseName]))
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), perDifficulty[models.DifficultyEasy])
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), perDifficulty[models.DifficultyMedium])
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), perDifficulty[models.DifficultyHard])
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), fromPool)
		row++
	}
	return nil
}

// sheetName makes a course usable as a sheet name: the format caps names at
// 31 chars and rejects a handful of characters.
func sheetName(course string) string {
	if strings.TrimSpace(course) == "" {
		return "General"
	}
	r := strings.NewReplacer("\\", "-", "/", "-", "?", "-", "*", "-", ":", "-", "[", "(", "]", ")")
	name := r.Replace(course)
	if len(name) > 31 {
		name = name[:31]
	}
	return name
}

func procedureNames(procedures []models.Procedure) string {
	if len(procedures) == 0 {
		return ""
	}
	names := make([]string, len(procedures))
	for i, p := range procedures {
		names[i] = fmt.Sprintf("%d. %s", p.ID, p.Name)
	}
	return strings.Join(names, "; ")
}

func expectedIDs(ids []int) string {
	if len(ids) == 0 {
		return ""
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
