// Schema Generator
//
// Generates JSON Schema files from the API request and response types so the
// dashboard can validate payloads against the same definitions.
//
// Usage:
//
//	go run ./cmd/schema-gen [output-dir]
//
// Output:
//
//	schemas/auth.json
//	schemas/catalog.json
//	schemas/images.json
//	schemas/alerts.json
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/invopop/jsonschema"

	"github.com/bannerdesk/banner-service/internal/alerts"
	"github.com/bannerdesk/banner-service/internal/auth"
	"github.com/bannerdesk/banner-service/internal/catalog"
	"github.com/bannerdesk/banner-service/internal/comments"
	"github.com/bannerdesk/banner-service/internal/database"
	"github.com/bannerdesk/banner-service/internal/handlers"
	"github.com/bannerdesk/banner-service/internal/importer"
	"github.com/bannerdesk/banner-service/internal/workflow"
)

// SchemaGroup represents a group of related schemas
type SchemaGroup struct {
	Name   string
	Types  []any
	Output string
}

func groups() []SchemaGroup {
	return []SchemaGroup{
		{
			Name: "auth",
			Types: []any{
				handlers.LoginRequest{},
				auth.CreateUserInput{},
				auth.LoginResult{},
				database.User{},
				handlers.ErrorResponse{},
			},
			Output: "auth.json",
		},
		{
			Name: "catalog",
			Types: []any{
				catalog.MunicipalityInput{},
				catalog.BusinessInput{},
				catalog.ProductInput{},
				catalog.ProjectInput{},
				database.MunicipalityUpdate{},
				database.BusinessUpdate{},
				database.ProductUpdate{},
				database.ProjectUpdate{},
				database.Municipality{},
				database.Business{},
				database.Product{},
				database.Project{},
			},
			Output: "catalog.json",
		},
		{
			Name: "images",
			Types: []any{
				workflow.CreateImageInput{},
				handlers.AddVersionRequest{},
				handlers.UpdateStatusRequest{},
				comments.AddCommentInput{},
				database.ImageEntity{},
				handlers.ImagesResponse{},
				workflow.Comparison{},
				database.Comment{},
			},
			Output: "images.json",
		},
		{
			Name: "alerts",
			Types: []any{
				handlers.AlertsResponse{},
				handlers.NotificationsResponse{},
				handlers.SetReadRequest{},
				importer.Result{},
				alerts.Item{},
				handlers.HealthResponse{},
			},
			Output: "alerts.json",
		},
	}
}

func main() {
	outputDir := "schemas"
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create output directory: %v\n", err)
		os.Exit(1)
	}

	for _, group := range groups() {
		schema := generateGroupSchema(group)
		outputPath := filepath.Join(outputDir, group.Output)

		if err := writeSchema(schema, outputPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", group.Output, err)
			os.Exit(1)
		}

		fmt.Printf("Generated %s\n", outputPath)
	}

	fmt.Println("Schema generation complete!")
}

// generateGroupSchema creates a combined schema with all types in a group
func generateGroupSchema(group SchemaGroup) map[string]any {
	reflector := &jsonschema.Reflector{}

	definitions := make(map[string]any)
	for _, t := range group.Types {
		schema := reflector.Reflect(t)
		for name, def := range schema.Definitions {
			definitions[name] = def
		}
	}

	return map[string]any{
		"$schema":     "https://json-schema.org/draft/2020-12/schema",
		"$id":         fmt.Sprintf("https://bannerdesk.jp/schemas/%s.json", group.Name),
		"title":       fmt.Sprintf("%s API Types", capitalize(group.Name)),
		"description": fmt.Sprintf("JSON Schema for %s API types generated from Go structs", group.Name),
		"$defs":       definitions,
	}
}

// writeSchema writes a schema to a JSON file
func writeSchema(schema map[string]any, path string) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
