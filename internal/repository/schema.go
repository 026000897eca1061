package repository

import (
	"context"
	"fmt"

	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

const (
	documentsTable = "documents"
	textsTable     = "documents_text"
	tasksTable     = "analysis_tasks"
)

var (
	// DocumentsColumns holds the columns for the "documents" table.
	DocumentsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "path", Type: field.TypeString, Size: 1024},
		{Name: "date", Type: field.TypeTime},
	}
	// DocumentsTable holds the schema information for the "documents" table.
	DocumentsTable = &schema.Table{
		Name:       documentsTable,
		Columns:    DocumentsColumns,
		PrimaryKey: []*schema.Column{DocumentsColumns[0]},
	}

	// DocumentsTextColumns holds the columns for the "documents_text" table.
	DocumentsTextColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "text", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "id_doc", Type: field.TypeInt},
	}
	// DocumentsTextTable holds the schema information for the "documents_text" table.
	DocumentsTextTable = &schema.Table{
		Name:       textsTable,
		Columns:    DocumentsTextColumns,
		PrimaryKey: []*schema.Column{DocumentsTextColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "documents_text_documents_texts",
				Columns:    []*schema.Column{DocumentsTextColumns[2]},
				RefColumns: []*schema.Column{DocumentsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "documentstext_id_doc",
				Unique:  false,
				Columns: []*schema.Column{DocumentsTextColumns[2]},
			},
		},
	}

	// AnalysisTasksColumns holds the columns for the "analysis_tasks" table.
	AnalysisTasksColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString, Size: 36},
		{Name: "status", Type: field.TypeString, Size: 16},
		{Name: "force", Type: field.TypeBool, Default: false},
		{Name: "text_id", Type: field.TypeInt, Nullable: true},
		{Name: "error_kind", Type: field.TypeString, Nullable: true, Size: 64},
		{Name: "error_message", Type: field.TypeString, Nullable: true, Size: 2147483647},
		{Name: "created_at", Type: field.TypeTime},
		{Name: "started_at", Type: field.TypeTime, Nullable: true},
		{Name: "finished_at", Type: field.TypeTime, Nullable: true},
		{Name: "document_id", Type: field.TypeInt},
	}
	// AnalysisTasksTable holds the schema information for the "analysis_tasks" table.
	AnalysisTasksTable = &schema.Table{
		Name:       tasksTable,
		Columns:    AnalysisTasksColumns,
		PrimaryKey: []*schema.Column{AnalysisTasksColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "analysis_tasks_documents_tasks",
				Columns:    []*schema.Column{AnalysisTasksColumns[9]},
				RefColumns: []*schema.Column{DocumentsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "analysistask_document_id_status",
				Unique:  false,
				Columns: []*schema.Column{AnalysisTasksColumns[9], AnalysisTasksColumns[1]},
			},
		},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		DocumentsTable,
		DocumentsTextTable,
		AnalysisTasksTable,
	}
)

func init() {
	DocumentsTextTable.ForeignKeys[0].RefTable = DocumentsTable
	AnalysisTasksTable.ForeignKeys[0].RefTable = DocumentsTable
}

// Migrate creates missing tables, columns and indexes.
func (db *DB) Migrate(ctx context.Context) error {
	m, err := schema.NewMigrate(db.drv)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Create(ctx, Tables...); err != nil {
		db.logger.Error("schema migration failed", "error", err)
		return fmt.Errorf("migrate: %w", err)
	}
	db.logger.Info("schema up to date", "tables", len(Tables))
	return nil
}
