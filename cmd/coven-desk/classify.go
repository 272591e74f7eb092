// ABOUTME: classify subcommand printing the triage decision for a text
// ABOUTME: Shows category, confidence, routing and the canned bot reply

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/coven-desk/internal/autoreply"
	"github.com/2389/coven-desk/internal/classify"
	"github.com/2389/coven-desk/internal/routing"
)

type classifyOutput struct {
	classify.Result
	Normalized   string `json:"normalized"`
	DepartmentID string `json:"department_id"`
	Reply        string `json:"reply"`
}

func runClassify(args []string) error {
	var asJSON bool
	var department string
	var words []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--json":
			asJSON = true
		case arg == "--department" || arg == "-d":
			if i+1 >= len(args) {
				return errors.New("--department requires a value")
			}
			department = args[i+1]
			i++
		case strings.HasPrefix(arg, "--department="):
			department = strings.TrimPrefix(arg, "--department=")
		default:
			words = append(words, arg)
		}
	}
	if len(words) == 0 {
		return errors.New("usage: coven-desk classify [--json] [--department ID] TEXT")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	router := routing.NewRouter(cfg.Routing.Departments)

	text := strings.Join(words, " ")
	out := classifyOutput{
		Result:     classify.Classify(text),
		Normalized: classify.Normalize(text),
	}
	if out.RequiresHuman {
		out.DepartmentID = router.Route(out.Category, department)
	}
	out.Reply = autoreply.CanonicalReply(out.Category, out.DepartmentID)

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	yellow := color.New(color.FgYellow)

	fmt.Printf("  Category:    ")
	cyan.Println(out.Category)
	fmt.Printf("  Confidence:  %d\n", out.Confidence)
	gray.Printf("  Normalized:  %s\n", out.Normalized)
	if out.RequiresHuman {
		fmt.Printf("  Human:       ")
		yellow.Println("yes")
		dept := out.DepartmentID
		if dept == routing.GeneralQueue {
			dept = "(general queue)"
		}
		fmt.Printf("  Department:  %s\n", dept)
	} else {
		fmt.Println("  Human:       no")
	}
	fmt.Printf("  Bot reply:   %s\n", out.Reply)
	fmt.Println()
	fmt.Println("  Suggested replies:")
	for i, r := range out.SuggestedReplies {
		fmt.Printf("    %d. %s\n", i+1, r)
	}
	return nil
}
