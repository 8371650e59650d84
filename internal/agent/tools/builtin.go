package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/revpilot-ai/server/internal/agent/model"
	"github.com/revpilot-ai/server/internal/llm"
)

// Builtin mock tools backing the demo driver and tests. They mirror the
// surface of the real AdMob / Ad Manager API clients without any network.

// MockAccounts is the demo entity universe for provider tools.
var MockAccounts = []model.Account{
	{ID: "acct-001", Name: "Peak Games", Type: "admob", Identifier: "pub-1122334455667788", Enabled: true},
	{ID: "acct-002", Name: "Peak Games EU", Type: "admob", Identifier: "pub-8877665544332211", Enabled: true},
	{ID: "acct-003", Name: "Peak Direct", Type: "ad_manager", Identifier: "21700012345", Enabled: true},
}

// MockApps are nested under the AdMob mock accounts.
var MockApps = []model.App{
	{ID: "app-001", Name: "Puzzle Quest", AccountID: "acct-001", Identifier: "ca-app-pub-1122334455667788~1234567890", Platform: "android", Enabled: true},
	{ID: "app-002", Name: "Puzzle Quest iOS", AccountID: "acct-001", Identifier: "ca-app-pub-1122334455667788~0987654321", Platform: "ios", Enabled: true},
	{ID: "app-003", Name: "Block Blast", AccountID: "acct-002", Identifier: "ca-app-pub-8877665544332211~1111222233", Platform: "android", Enabled: true},
}

type mockAdUnit struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	AppID  string  `json:"app_id"`
	Format string  `json:"format"`
	ECPM   float64 `json:"ecpm_usd"`
}

var mockAdUnits = []mockAdUnit{
	{ID: "ca-app-pub-1122334455667788/6600112233", Name: "PQ Rewarded", AppID: "app-001", Format: "rewarded", ECPM: 14.2},
	{ID: "ca-app-pub-1122334455667788/7700112244", Name: "PQ Interstitial", AppID: "app-001", Format: "interstitial", ECPM: 8.7},
	{ID: "ca-app-pub-8877665544332211/5500998877", Name: "BB Banner", AppID: "app-003", Format: "banner", ECPM: 1.4},
}

// BuiltinCatalogs returns the provider catalogs for the builtin tools.
func BuiltinCatalogs() []Catalog {
	strParam := func(desc string, required bool) *llm.ParameterInfo {
		return &llm.ParameterInfo{Type: "string", Desc: desc, Required: required}
	}

	return []Catalog{
		{
			Provider: "admob",
			Tools: []ToolConfig{
				{
					Name:        "admob_list_accounts",
					Description: "List the caller's connected AdMob publisher accounts with ids and names.",
					Tags:        []string{"admob", "inventory", "reporting", "mediation", "accounts"},
				},
				{
					Name:        "admob_list_apps",
					Description: "List apps registered under an AdMob publisher account.",
					Tags:        []string{"admob", "inventory", "apps"},
					RequiresAccount: true,
					Parameters: map[string]*llm.ParameterInfo{
						"account_id": strParam("AdMob publisher id, e.g. pub-1122334455667788", true),
					},
				},
				{
					Name:        "admob_list_ad_units",
					Description: "List ad units for an app with format and recent eCPM.",
					Tags:        []string{"admob", "inventory", "ad_units"},
					RequiresAccount: true,
					Parameters: map[string]*llm.ParameterInfo{
						"app_id": strParam("App id, e.g. ca-app-pub-1122334455667788~1234567890", true),
					},
				},
				{
					Name:        "admob_get_report",
					Description: "Fetch an earnings report for a publisher account over a date range.",
					Tags:        []string{"admob", "reporting", "earnings"},
					RequiresAccount: true,
					Parameters: map[string]*llm.ParameterInfo{
						"account_id": strParam("AdMob publisher id", true),
						"start_date": strParam("Inclusive start date YYYY-MM-DD", true),
						"end_date":   strParam("Inclusive end date YYYY-MM-DD", true),
					},
				},
				{
					Name:        "admob_create_ad_unit",
					Description: "Create a new ad unit under an app.",
					Tags:        []string{"admob", "inventory", "ad_units"},
					RequiresAccount: true,
					Parameters: map[string]*llm.ParameterInfo{
						"app_id": strParam("App id the unit belongs to", true),
						"name":   strParam("Display name for the new ad unit", true),
						"format": strParam("Ad format: banner, interstitial, rewarded", true),
					},
				},
				{
					Name:        "admob_update_mediation_group",
					Description: "Update targeting or waterfall settings of a mediation group.",
					Tags:        []string{"admob", "mediation", "groups"},
					RequiresAccount: true,
					Parameters: map[string]*llm.ParameterInfo{
						"account_id": strParam("AdMob publisher id", true),
						"group_id":   strParam("Mediation group id", true),
						"changes":    strParam("JSON object of fields to change", true),
					},
				},
				{
					Name:        "admob_batch_update_ad_units",
					Description: "Apply the same change to many ad units at once.",
					Tags:        []string{"admob", "inventory", "ad_units"},
					RequiresAccount: true,
					Parameters: map[string]*llm.ParameterInfo{
						"app_id":  strParam("App id whose units are updated", true),
						"changes": strParam("JSON object of fields to change", true),
					},
				},
			},
		},
		{
			Provider: "ad_manager",
			Tools: []ToolConfig{
				{
					Name:        "ad_manager_list_orders",
					Description: "List orders in an Ad Manager network.",
					Tags:        []string{"ad_manager", "orders"},
					RequiresAccount: true,
					Parameters: map[string]*llm.ParameterInfo{
						"network_code": strParam("Numeric Ad Manager network code", true),
					},
				},
				{
					Name:        "ad_manager_run_report",
					Description: "Run a delivery report for a network over a date range.",
					Tags:        []string{"ad_manager", "reporting"},
					RequiresAccount: true,
					Parameters: map[string]*llm.ParameterInfo{
						"network_code": strParam("Numeric Ad Manager network code", true),
						"start_date":   strParam("Inclusive start date YYYY-MM-DD", true),
						"end_date":     strParam("Inclusive end date YYYY-MM-DD", true),
					},
				},
				{
					Name:        "ad_manager_create_order",
					Description: "Create a new order in a network.",
					Tags:        []string{"ad_manager", "orders"},
					RequiresAccount: true,
					Parameters: map[string]*llm.ParameterInfo{
						"network_code": strParam("Numeric Ad Manager network code", true),
						"name":         strParam("Order name", true),
						"advertiser":   strParam("Advertiser name", true),
					},
				},
			},
		},
	}
}

// RegisterBuiltins loads the builtin catalogs into a registry.
func RegisterBuiltins(r *Registry) error {
	for _, cat := range BuiltinCatalogs() {
		for _, cfg := range cat.Tools {
			if cfg.Provider == "" {
				cfg.Provider = cat.Provider
			}
			if err := r.Register(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// NewMockInvoker builds a FuncInvoker implementing the builtin tools against
// the mock data.
func NewMockInvoker() *FuncInvoker {
	inv := NewFuncInvoker()

	inv.Handle("admob_list_accounts", func(ctx context.Context, args map[string]any) (any, error) {
		var out []model.Account
		for _, a := range MockAccounts {
			if a.Type == "admob" {
				out = append(out, a)
			}
		}
		return map[string]any{"accounts": out, "total": len(out)}, nil
	})

	inv.Handle("admob_list_apps", func(ctx context.Context, args map[string]any) (any, error) {
		accountID := stringArg(args, "account_id")
		var acct *model.Account
		for i := range MockAccounts {
			if MockAccounts[i].ID == accountID || MockAccounts[i].Identifier == accountID {
				acct = &MockAccounts[i]
				break
			}
		}
		if acct == nil {
			return nil, fmt.Errorf("account %s not found", accountID)
		}
		var out []model.App
		for _, app := range MockApps {
			if app.AccountID == acct.ID {
				out = append(out, app)
			}
		}
		return map[string]any{"apps": out, "total": len(out)}, nil
	})

	inv.Handle("admob_list_ad_units", func(ctx context.Context, args map[string]any) (any, error) {
		appID := stringArg(args, "app_id")
		var out []mockAdUnit
		for _, u := range mockAdUnits {
			if u.AppID == appID || strings.HasPrefix(u.ID, appIdentifierPrefix(appID)) {
				out = append(out, u)
			}
		}
		return map[string]any{"ad_units": out, "total": len(out)}, nil
	})

	inv.Handle("admob_get_report", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"account_id": stringArg(args, "account_id"),
			"start_date": stringArg(args, "start_date"),
			"end_date":   stringArg(args, "end_date"),
			"rows": []map[string]any{
				{"date": stringArg(args, "start_date"), "estimated_earnings_usd": 412.77, "impressions": 188514},
				{"date": stringArg(args, "end_date"), "estimated_earnings_usd": 389.02, "impressions": 174209},
			},
		}, nil
	})

	inv.Handle("admob_create_ad_unit", func(ctx context.Context, args map[string]any) (any, error) {
		appID := stringArg(args, "app_id")
		unit := mockAdUnit{
			ID:     fmt.Sprintf("%s/%s", appIdentifierPrefix(appID), uuid.NewString()[:10]),
			Name:   stringArg(args, "name"),
			AppID:  appID,
			Format: stringArg(args, "format"),
		}
		mockAdUnits = append(mockAdUnits, unit)
		return map[string]any{"created": unit}, nil
	})

	inv.Handle("admob_update_mediation_group", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"group_id": stringArg(args, "group_id"),
			"updated":  true,
			"changes":  stringArg(args, "changes"),
		}, nil
	})

	inv.Handle("admob_batch_update_ad_units", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"app_id":  stringArg(args, "app_id"),
			"updated": len(mockAdUnits),
			"changes": stringArg(args, "changes"),
		}, nil
	})

	inv.Handle("ad_manager_list_orders", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"network_code": stringArg(args, "network_code"),
			"orders": []map[string]any{
				{"id": "ord-3301", "name": "Q3 Direct Sponsorship", "status": "DELIVERING"},
				{"id": "ord-3302", "name": "House Remnant", "status": "PAUSED"},
			},
		}, nil
	})

	inv.Handle("ad_manager_run_report", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"network_code": stringArg(args, "network_code"),
			"rows": []map[string]any{
				{"date": stringArg(args, "start_date"), "impressions": 902113, "clicks": 3021},
			},
		}, nil
	})

	inv.Handle("ad_manager_create_order", func(ctx context.Context, args map[string]any) (any, error) {
		return map[string]any{
			"created": map[string]any{
				"id":         "ord-" + uuid.NewString()[:8],
				"name":       stringArg(args, "name"),
				"advertiser": stringArg(args, "advertiser"),
			},
		}, nil
	})

	return inv
}

func stringArg(args map[string]any, key string) string {
	if v, ok := args[key]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// appIdentifierPrefix converts an app identifier (ca-app-pub-X~Y) into the
// ad-unit prefix form (ca-app-pub-X).
func appIdentifierPrefix(appID string) string {
	if i := strings.Index(appID, "~"); i > 0 {
		return appID[:i]
	}
	return appID
}
