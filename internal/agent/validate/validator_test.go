package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/revpilot-ai/server/internal/agent/model"
)

func testAccounts() []model.Account {
	return []model.Account{
		{ID: "acct-001", Name: "Peak Games", Type: "admob", Identifier: "pub-1122334455667788", Enabled: true},
		{ID: "acct-003", Name: "Peak Display", Type: "ad_manager", Identifier: "21700012345", Enabled: true},
	}
}

func testApps() []model.App {
	return []model.App{
		{ID: "app-001", Name: "Peak Puzzle", AccountID: "acct-001", Identifier: "ca-app-pub-1122334455667788~1234567890", Platform: "ios", Enabled: true},
	}
}

func TestValidate_KnownEntitiesPass(t *testing.T) {
	v := New(model.ValidationConfig{})

	res := v.Validate("admob_get_report", map[string]any{
		"account_id": "pub-1122334455667788",
		"start_date": "2026-08-01",
		"end_date":   "2026-08-31",
	}, testAccounts(), testApps(), ModeStrict)

	assert.True(t, res.OK)
	assert.Empty(t, res.Errors)
}

func TestValidate_UnknownPublisherBlocksStrict(t *testing.T) {
	v := New(model.ValidationConfig{})

	res := v.Validate("admob_get_report", map[string]any{
		"account_id": "pub-9999888877776666",
	}, testAccounts(), testApps(), ModeStrict)

	require.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, TypePublisher, res.Errors[0].Type)
	assert.NotEmpty(t, res.Errors[0].Alternatives, "strict failures must suggest valid entities")
	assert.Contains(t, res.Message, "did you mean")
}

func TestValidate_UnknownPublisherPassesSoft(t *testing.T) {
	v := New(model.ValidationConfig{})

	res := v.Validate("admob_get_report", map[string]any{
		"account_id": "pub-9999888877776666",
	}, testAccounts(), testApps(), ModeSoft)

	assert.True(t, res.OK, "soft mode logs but never blocks")
	assert.Empty(t, res.Errors)
}

func TestValidate_PatternDetectionWithoutParamName(t *testing.T) {
	v := New(model.ValidationConfig{})

	// the value is id-shaped even though the parameter name gives no hint
	res := v.Validate("admob_get_report", map[string]any{
		"target": "ca-app-pub-9999888877776666~111",
	}, testAccounts(), testApps(), ModeStrict)

	require.False(t, res.OK)
	assert.Equal(t, TypeApp, res.Errors[0].Type)
}

func TestValidate_BarePublisherDigitsNeedPrefix(t *testing.T) {
	v := New(model.ValidationConfig{})

	// 16 bare digits in an unnamed param could be anything; only the pub-
	// prefix makes the publisher pattern authoritative
	res := v.Validate("some_tool", map[string]any{
		"note": "9999888877776666",
	}, testAccounts(), testApps(), ModeStrict)

	assert.True(t, res.OK)
}

func TestValidate_NestedArgsScanned(t *testing.T) {
	v := New(model.ValidationConfig{})

	res := v.Validate("admob_batch_update_ad_units", map[string]any{
		"changes": map[string]any{
			"targets": []any{
				map[string]any{"app_id": "ca-app-pub-9999888877776666~222"},
			},
		},
	}, testAccounts(), testApps(), ModeStrict)

	require.False(t, res.OK)
	assert.Equal(t, TypeApp, res.Errors[0].Type)
}

func TestValidate_DepthBound(t *testing.T) {
	v := New(model.ValidationConfig{MaxDepth: 2})

	// the bad id sits below the scan depth and must be ignored
	res := v.Validate("some_tool", map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"app_id": "ca-app-pub-9999888877776666~333",
			},
		},
	}, testAccounts(), testApps(), ModeStrict)

	assert.True(t, res.OK)
}

func TestValidate_AdUnitLeniency(t *testing.T) {
	v := New(model.ValidationConfig{})

	// unknown publisher prefix on an ad unit warns but never blocks
	res := v.Validate("admob_list_ad_units", map[string]any{
		"ad_unit_id": "ca-app-pub-9999888877776666/777",
	}, testAccounts(), testApps(), ModeStrict)

	assert.True(t, res.OK)
	assert.NotEmpty(t, res.Warnings)

	// matched prefix passes silently
	res = v.Validate("admob_list_ad_units", map[string]any{
		"ad_unit_id": "ca-app-pub-1122334455667788/777",
	}, testAccounts(), testApps(), ModeStrict)

	assert.True(t, res.OK)
	assert.Empty(t, res.Warnings)
}

func TestValidate_NetworkCode(t *testing.T) {
	v := New(model.ValidationConfig{})

	res := v.Validate("ad_manager_run_report", map[string]any{
		"network_code": "21700012345",
	}, testAccounts(), testApps(), ModeStrict)
	assert.True(t, res.OK)

	res = v.Validate("ad_manager_run_report", map[string]any{
		"network_code": "99900012345",
	}, testAccounts(), testApps(), ModeStrict)
	require.False(t, res.OK)
	assert.Equal(t, TypeNetwork, res.Errors[0].Type)

	alts := res.Errors[0].Alternatives
	require.NotEmpty(t, alts)
	assert.Equal(t, "21700012345", alts[0].ID, "alternatives must be scoped to ad_manager accounts")
}

func TestValidate_MaxAlternativesCap(t *testing.T) {
	v := New(model.ValidationConfig{MaxAlternatives: 2})

	accounts := testAccounts()
	for i := 0; i < 6; i++ {
		accounts = append(accounts, model.Account{
			ID: "extra", Name: "Extra", Type: "admob", Identifier: "pub-0000000000000000", Enabled: true,
		})
	}

	res := v.Validate("admob_get_report", map[string]any{
		"account_id": "pub-9999888877776666",
	}, accounts, testApps(), ModeStrict)

	require.False(t, res.OK)
	assert.LessOrEqual(t, len(res.Errors[0].Alternatives), 2)
}
