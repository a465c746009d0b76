package main

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pavelanni/gradesheet/internal/document"
	"github.com/pavelanni/gradesheet/internal/grader"
	"github.com/pavelanni/gradesheet/internal/model"
	"github.com/pavelanni/gradesheet/internal/store"
)

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade SOLUTION STUDENT",
		Short: "Grade one student document against a solution key and print the result",
		Args:  cobra.ExactArgs(2),
		RunE:  runGrade,
	}
	f := cmd.Flags()
	addDBFlag(f)
	f.StringP("format", "f", "json", "Output format (json, yaml)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addGradingFlags(f)
	addLogFlags(f)
	return cmd
}

func runGrade(cmd *cobra.Command, args []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)
	ctx := cmd.Context()

	for _, path := range args {
		if !document.Supported(path) {
			return fmt.Errorf("%s: %w", path, document.ErrUnsupported)
		}
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	cfg := model.GradeConfig{Workers: 1, PromptVariant: promptVariant(v)}
	g, cleanup, err := newGrader(ctx, v, db, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	id, err := g.GradeNow(ctx, grader.Upload{
		SolutionPath: args[0],
		SolutionName: filepath.Base(args[0]),
		StudentPath:  args[1],
		StudentName:  filepath.Base(args[1]),
	})
	if err != nil {
		return fmt.Errorf("grade submission %s: %w", id, err)
	}

	view, err := db.GetSubmissionView(id)
	if err != nil {
		return fmt.Errorf("load submission: %w", err)
	}
	slog.Info("graded submission", "submission_id", id, "overall_score", view.OverallScore)

	return writeOutput(v.GetString("output"), v.GetString("format"), view)
}
