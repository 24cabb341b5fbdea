package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/marcelsud/webhook-relay/projects"
)

/* validate-projects - Standalone CLI tool to validate projects.yaml
 * Usage: go run cmd/validate-projects/main.go [projects.yaml]
 * Exit codes: 0 = valid, 1 = invalid
 */

func main() {
	projectsFile := "projects.yaml"
	if len(os.Args) > 1 {
		projectsFile = os.Args[1]
	}

	fmt.Printf("Validating projects file: %s\n", projectsFile)
	fmt.Println(strings.Repeat("-", 50))

	loader := projects.NewLoader()
	if err := loader.Load(projectsFile); err != nil {
		fmt.Fprintf(os.Stderr, "❌ VALIDATION FAILED\n\n")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	loaded := loader.List()
	fmt.Printf("✓ VALIDATION PASSED\n\n")
	fmt.Printf("Loaded %d project(s):\n", len(loaded))

	for i, project := range loaded {
		fmt.Printf("\n%d. Project: %s\n", i+1, project.ProjectID)
		if project.TargetURL != "" {
			fmt.Printf("   Target URL:   %s\n", project.TargetURL)
		} else {
			fmt.Printf("   Target URL:   (capture only)\n")
		}
		if project.MaxAttempts > 0 {
			fmt.Printf("   Max Attempts: %d\n", project.MaxAttempts)
		}
	}

	fmt.Printf("\n✓ All projects are valid!\n")
	os.Exit(0)
}
