package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/JasonAskew/knowledge"
	"github.com/JasonAskew/knowledge/helper"
	"github.com/JasonAskew/knowledge/model"
)

// Interactive search loop against an existing graph. Database
// connection settings come from the environment, loaded the same way
// the engine loads them in production.
func main() {
	dbConfig, err := helper.NewDatabaseConfiguration()
	if err != nil {
		log.Fatalf("Failed to load database configuration: %v", err)
	}

	k, err := knowledge.New(dbConfig, model.DefaultConfig())
	if err != nil {
		log.Fatalf("Failed to create engine: %v", err)
	}
	defer k.Close()

	ctx := context.Background()
	if err := k.Start(ctx); err != nil {
		log.Fatalf("Failed to start models: %v", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Enter a question (empty line to quit):")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		queryText := strings.TrimSpace(scanner.Text())
		if queryText == "" {
			break
		}

		opts := model.DefaultSearchOptions()
		response, err := k.Search(ctx, queryText, opts)
		if err != nil {
			fmt.Printf("Search failed: %v\n", err)
			continue
		}

		fmt.Printf("\nStrategy %s, %d candidates considered, %dms\n",
			response.StrategyActuallyUsed, response.TotalCandidatesConsidered, response.ElapsedMs)
		for i, citation := range response.Citations {
			fmt.Printf("\n--- %d. %s (page %d, score %.3f) ---\n",
				i+1, citation.DocumentName, citation.PageNum, citation.FinalScore)
			if citation.Hierarchy != "" {
				fmt.Printf("%s\n", citation.Hierarchy)
			}
			fmt.Printf("%s\n", citation.Text)
		}
		fmt.Println()
	}
}
