package cmd

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/hyeonlog/contact-hub/internal/config"
	"github.com/hyeonlog/contact-hub/internal/db"
	"github.com/hyeonlog/contact-hub/internal/model"
	"github.com/hyeonlog/contact-hub/internal/repository"
	"github.com/hyeonlog/contact-hub/internal/util"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo field definitions and contacts",
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1) load config
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		// 2) connect MySQL
		sqlDB, err := db.NewMySQLConnection(cfg.MySQL.DSN, db.MySQLOpts{
			MaxOpenConns:    cfg.MySQL.MaxOpenConns,
			MaxIdleConns:    cfg.MySQL.MaxIdleConns,
			ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.MySQL.ConnMaxIdleTime,
			PingTimeout:     cfg.MySQL.PingTimeout,
		})
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer sqlDB.Close()

		ctx := cmd.Context()

		log.Println(">> Seeding field definitions...")
		defs, err := seedFieldDefinitions(ctx, sqlDB)
		if err != nil {
			return err
		}

		log.Println(">> Seeding demo contacts...")
		if err := seedContacts(ctx, sqlDB, defs); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

type seedField struct {
	apiName     string
	displayName string
	fieldType   model.FieldType
	required    bool
	options     []string
}

var seedFields = []seedField{
	{apiName: "job_title__c", displayName: "Job Title", fieldType: model.FieldTypeText},
	{apiName: "department__c", displayName: "Department", fieldType: model.FieldTypeText},
	{apiName: "region__c", displayName: "Region", fieldType: model.FieldTypeSelect, options: []string{"APAC", "EMEA", "AMER"}},
	{apiName: "tier__c", displayName: "Tier", fieldType: model.FieldTypeSelect, options: []string{"BRONZE", "SILVER", "GOLD"}},
	{apiName: "lead_source__c", displayName: "Lead Source", fieldType: model.FieldTypeText},
	{apiName: "score__c", displayName: "Score", fieldType: model.FieldTypeNumber},
	{apiName: "annual_revenue__c", displayName: "Annual Revenue", fieldType: model.FieldTypeNumber},
	{apiName: "contract_start__c", displayName: "Contract Start", fieldType: model.FieldTypeDate},
	{apiName: "last_contact_date__c", displayName: "Last Contact Date", fieldType: model.FieldTypeDate},
	{apiName: "notes__c", displayName: "Notes", fieldType: model.FieldTypeText},
}

// seedFieldDefinitions upserts the demo registry (idempotent on api_name) and
// returns the definitions keyed by api name.
func seedFieldDefinitions(ctx context.Context, dbx *sqlx.DB) (map[string]*model.FieldDefinition, error) {
	repo := repository.NewFieldDefinitionsRepository(dbx)

	out := make(map[string]*model.FieldDefinition, len(seedFields))
	for order, sf := range seedFields {
		if existing, err := repo.FindByAPIName(ctx, sf.apiName); err == nil {
			out[sf.apiName] = existing
			continue
		} else if err != repository.ErrNotFound {
			return nil, fmt.Errorf("lookup %s: %w", sf.apiName, err)
		}

		def, err := model.NewFieldDefinition(model.NewFieldDefinitionArgs{
			ID:          util.New(),
			APIName:     sf.apiName,
			DisplayName: sf.displayName,
			Type:        sf.fieldType,
			Required:    sf.required,
			Options:     sf.options,
		})
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", sf.apiName, err)
		}
		def.DisplayOrder = order

		if err := repo.Insert(ctx, def); err != nil {
			return nil, fmt.Errorf("insert %s: %w", sf.apiName, err)
		}
		out[sf.apiName] = def
	}
	return out, nil
}

type seedContact struct {
	email  string
	name   string
	fields map[string]any
}

var seedContacts5 = []seedContact{
	{
		email: "minji.kim@acme.io", name: "Minji Kim",
		fields: map[string]any{
			"job_title__c": "VP Engineering", "department__c": "Engineering",
			"region__c": "APAC", "tier__c": "GOLD", "score__c": 92,
			"contract_start__c": "2024-03-01",
		},
	},
	{
		email: "lucas.meyer@globex.com", name: "Lucas Meyer",
		fields: map[string]any{
			"job_title__c": "Procurement Lead", "department__c": "Operations",
			"region__c": "EMEA", "tier__c": "SILVER", "score__c": 61,
			"lead_source__c": "webinar",
		},
	},
	{
		email: "sofia.alvarez@initech.com", name: "Sofia Alvarez",
		fields: map[string]any{
			"department__c": "Sales", "region__c": "AMER", "tier__c": "BRONZE",
			"score__c": 35, "last_contact_date__c": "2025-07-14",
		},
	},
	{
		email: "jae.park@hooli.dev", name: "Jae Park",
		fields: map[string]any{
			"job_title__c": "CTO", "region__c": "APAC", "tier__c": "GOLD",
			"annual_revenue__c": 1250000, "contract_start__c": "2023-11-15",
		},
	},
	{
		email: "emma.novak@umbrella.org", name: "Emma Novak",
		fields: map[string]any{
			"department__c": "Marketing", "region__c": "EMEA",
			"lead_source__c": "referral", "notes__c": "prefers email contact",
		},
	},
}

// seedContacts inserts demo contacts through the aggregate so values are
// validated and outbox events are written, which also feeds the search index
// once the workers run. Skips contacts whose email already exists.
func seedContacts(ctx context.Context, dbx *sqlx.DB, defs map[string]*model.FieldDefinition) error {
	outboxRepo := repository.NewOutboxRepository(dbx)
	contactsRepo := repository.NewContactsRepository(dbx, outboxRepo)

	for _, sc := range seedContacts5 {
		if _, err := contactsRepo.FindByEmail(ctx, sc.email); err == nil {
			continue
		} else if err != repository.ErrNotFound {
			return fmt.Errorf("lookup %s: %w", sc.email, err)
		}

		c, err := model.NewContact(util.New(), sc.email, sc.name, time.Now())
		if err != nil {
			return fmt.Errorf("build %s: %w", sc.email, err)
		}
		for apiName, value := range sc.fields {
			def, ok := defs[apiName]
			if !ok {
				return fmt.Errorf("seed contact %s references unknown field %s", sc.email, apiName)
			}
			if err := c.SetField(def, normalizeSeedValue(def, value), util.New()); err != nil {
				return fmt.Errorf("set %s on %s: %w", apiName, sc.email, err)
			}
		}

		if err := contactsRepo.SaveWithEvent(ctx, c, model.EventCreated); err != nil {
			return fmt.Errorf("save %s: %w", sc.email, err)
		}
	}
	return nil
}

// normalizeSeedValue converts literal ints to the float64 the validator
// expects from decoded JSON.
func normalizeSeedValue(def *model.FieldDefinition, v any) any {
	if def.Type == model.FieldTypeNumber {
		if n, ok := v.(int); ok {
			return float64(n)
		}
	}
	return v
}
