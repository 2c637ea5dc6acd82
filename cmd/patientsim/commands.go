package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pavelanni/patientsim/internal/cases"
	"github.com/pavelanni/patientsim/internal/grading"
	"github.com/pavelanni/patientsim/internal/model"
	"github.com/pavelanni/patientsim/internal/store"
)

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade",
		Short: "Grade a saved transcript against a patient case",
		RunE:  runGrade,
	}
	f := cmd.Flags()
	f.String("case", cases.DefaultCaseID, "Patient case id")
	f.StringP("transcript", "t", "", "Transcript JSON file: a list of turns or a session object (required)")
	f.StringSlice("cases", nil, "Extra patient case JSON files (repeatable)")
	f.StringP("format", "f", "text", "Output format (text, json)")
	addLogFlags(cmd)

	_ = cmd.MarkFlagRequired("transcript")

	return cmd
}

func runGrade(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	reg, err := loadRegistry(v.GetStringSlice("cases"))
	if err != nil {
		return fmt.Errorf("load cases: %w", err)
	}
	c, err := reg.Get(v.GetString("case"))
	if err != nil {
		return err
	}

	data, err := os.ReadFile(v.GetString("transcript"))
	if err != nil {
		return fmt.Errorf("read transcript: %w", err)
	}
	turns, err := parseTranscript(data)
	if err != nil {
		return err
	}

	result, err := grading.Grade(turns, c)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch v.GetString("format") {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	case "text", "":
		_, err := fmt.Fprint(out, grading.FormatFeedback(result))
		return err
	default:
		return fmt.Errorf("unknown format %q (want text or json)", v.GetString("format"))
	}
}

// parseTranscript accepts either a bare list of turns or a stored session.
func parseTranscript(data []byte) ([]model.Turn, error) {
	var turns []model.Turn
	if err := json.Unmarshal(data, &turns); err == nil {
		return turns, nil
	}
	var sd model.SessionData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("parse transcript: %w", err)
	}
	return sd.Turns, nil
}

func casesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cases",
		Short: "List and validate patient cases",
		RunE:  runCases,
	}
	cmd.Flags().StringSlice("cases", nil, "Extra patient case JSON files to validate (repeatable)")
	addLogFlags(cmd)
	return cmd
}

func runCases(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	reg, err := loadRegistry(v.GetStringSlice("cases"))
	if err != nil {
		return fmt.Errorf("load cases: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAGE\tFACTS\tCOURSE")
	for _, c := range reg.List() {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", c.ID, c.Name, c.Age, len(c.MustElicitFacts), c.Course)
	}
	return tw.Flush()
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export stored sessions with their grades as JSON",
		RunE:  runExport,
	}
	f := cmd.Flags()
	f.String("db", "patientsim.db", "SQLite database path")
	f.StringSlice("cases", nil, "Extra patient case JSON files (repeatable)")
	f.StringP("output", "o", "-", "Output file path (- for stdout)")
	addLogFlags(cmd)
	return cmd
}

func runExport(cmd *cobra.Command, _ []string) error {
	setupLogging(cmd)
	v := viperForCmd(cmd)

	reg, err := loadRegistry(v.GetStringSlice("cases"))
	if err != nil {
		return fmt.Errorf("load cases: %w", err)
	}

	db, err := store.New(v.GetString("db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	results, err := db.ExportSessions(cmd.Context(), func(caseID string, turns []model.Turn) (model.GradingResult, error) {
		c, err := reg.Get(caseID)
		if err != nil {
			return model.GradingResult{}, err
		}
		return grading.Grade(turns, c)
	})
	if err != nil {
		return fmt.Errorf("export sessions: %w", err)
	}

	data, err := json.MarshalIndent(model.SessionsExport{
		ExportedAt: time.Now().UTC(),
		Sessions:   results,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	outPath := v.GetString("output")
	var w io.Writer
	if outPath == "" || outPath == "-" {
		w = cmd.OutOrStdout()
	} else {
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, _ = fmt.Fprintln(w)

	return nil
}
