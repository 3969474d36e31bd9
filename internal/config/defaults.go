package config

import (
	"github.com/agentstation/syncflow/pkg/constants"
	"github.com/agentstation/syncflow/pkg/normalize"
)

// stages are the deal stages the demo sources share.
var stages = []string{
	"Prospecting",
	"Qualification",
	"Discovery",
	"Proposal",
	"Negotiation",
	"Closed Won",
	"Closed Lost",
}

// Default returns the demo configuration: a CRM, a project tracker, and a
// spreadsheet joined on the account name, published to merged.csv.
func Default() *Config {
	return &Config{
		Sources: []SourceConfig{
			{
				ID:      "crm",
				Type:    SourceDemo,
				Dataset: "crm",
				Schema: normalize.Schema{
					EntityKey:  "Account",
					ObservedAt: "LastModifiedDate",
					Fields: []normalize.FieldMapping{
						{From: "Name", To: "name", Coerce: normalize.CoerceString},
						{From: "Amount", To: "amount", Coerce: normalize.CoerceCurrency},
						{From: "StageName", To: "stage", Coerce: normalize.CoerceEnum, Values: stages},
						{From: "CloseDate", To: "close_date", Coerce: normalize.CoerceTimestamp, Layout: "2006-01-02"},
					},
				},
			},
			{
				ID:      "tracker",
				Type:    SourceDemo,
				Dataset: "tracker",
				Schema: normalize.Schema{
					EntityKey:  "account",
					ObservedAt: "updated",
					Fields: []normalize.FieldMapping{
						{From: "key", To: "issue_key", Coerce: normalize.CoerceString},
						{From: "status", To: "issue_status", Coerce: normalize.CoerceString},
						{From: "assignee", To: "assignee", Coerce: normalize.CoerceString},
						{From: "priority", To: "issue_priority", Coerce: normalize.CoerceEnum, Values: []string{"Low", "Medium", "High", "Critical"}},
					},
				},
			},
			{
				ID:      "sheet",
				Type:    SourceDemo,
				Dataset: "sheet",
				Schema: normalize.Schema{
					EntityKey:  "Account",
					ObservedAt: "Last Updated",
					Fields: []normalize.FieldMapping{
						{From: "Deal", To: "name", Coerce: normalize.CoerceString},
						{From: "Amount", To: "amount", Coerce: normalize.CoerceCurrency},
						{From: "Stage", To: "stage", Coerce: normalize.CoerceEnum, Values: stages},
						{From: "Owner", To: "assignee", Coerce: normalize.CoerceString},
						{From: "Close Date", To: "close_date", Coerce: normalize.CoerceTimestamp, Layout: "2006-01-02"},
					},
				},
			},
		},
		Priority: []string{"crm", "tracker", "sheet"},
		Rules: []RuleConfig{
			{Field: "name", Strategy: "priority_order", Priority: []string{"crm", "sheet"}},
			{Field: "amount", Strategy: "most_recent"},
			{Field: "stage", Strategy: "manual"},
			{Field: "assignee", Strategy: "priority_order", Priority: []string{"tracker", "sheet"}},
		},
		Epsilon:       constants.DefaultEpsilon,
		SourceTimeout: constants.DefaultSourceTimeout,
		RunTimeout:    constants.RunContextTimeout,
		Schedule: ScheduleConfig{
			Enabled:  false,
			Interval: constants.DefaultRunInterval,
		},
		Publish: PublishConfig{
			Type: PublishFile,
			Path: "merged.csv",
		},
		History: HistoryConfig{
			Driver: HistoryMemory,
			Limit:  constants.DefaultHistoryLimit,
		},
	}
}
