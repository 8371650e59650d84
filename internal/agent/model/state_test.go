package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertToolCall_MergeByID(t *testing.T) {
	s := NewGraphState("t1", "q", UserContext{})

	s.UpsertToolCall(ToolCall{ID: "a", Name: "admob_list_accounts"})
	s.UpsertToolCall(ToolCall{ID: "b", Name: "admob_create_ad_unit", IsDangerous: true})
	require.Len(t, s.ToolCalls, 2)

	// transitioning a call must not grow the slice
	result := `{"ok":true}`
	s.UpsertToolCall(ToolCall{ID: "a", Name: "admob_list_accounts", Result: &result})
	require.Len(t, s.ToolCalls, 2)
	assert.True(t, s.ToolCalls[0].Done())
	assert.Equal(t, "a", s.ToolCalls[0].ID, "emission order is preserved across updates")
}

func TestNextPendingToolCall_EmissionOrder(t *testing.T) {
	s := NewGraphState("t1", "q", UserContext{})
	s.UpsertToolCall(ToolCall{ID: "first"})
	s.UpsertToolCall(ToolCall{ID: "second"})

	assert.Equal(t, "first", s.NextPendingToolCall().ID)

	done := "x"
	s.UpsertToolCall(ToolCall{ID: "first", Result: &done})
	assert.Equal(t, "second", s.NextPendingToolCall().ID)

	s.UpsertToolCall(ToolCall{ID: "second", Result: &done})
	assert.Nil(t, s.NextPendingToolCall())
}

func TestMergeToolCalls_LastWriteWins(t *testing.T) {
	r1 := "one"
	base := []ToolCall{{ID: "a"}, {ID: "b"}}
	updates := []ToolCall{{ID: "b", Result: &r1}, {ID: "c"}}

	merged := MergeToolCalls(base, updates)
	require.Len(t, merged, 3)
	assert.Equal(t, "a", merged[0].ID)
	assert.True(t, merged[1].Done())
	assert.Equal(t, "c", merged[2].ID)
}

func TestRecordToolEvent_AppendOnly(t *testing.T) {
	s := NewGraphState("t1", "q", UserContext{})
	s.RecordToolEvent("a", ApprovalPending, "")
	s.RecordToolEvent("a", "awaiting_approval", "ap-1")
	s.RecordToolEvent("a", ApprovalApproved, "")

	require.Len(t, s.ToolEvents, 3)
	assert.Equal(t, ApprovalPending, s.ToolEvents[0].Phase)
	assert.Equal(t, ApprovalApproved, s.ToolEvents[2].Phase)
}

func TestGraphState_JSONRoundTrip(t *testing.T) {
	result := `{"accounts":[]}`
	s := NewGraphState("t1", "list my accounts", UserContext{UserID: "u1", ContextMode: "strict"})
	s.Routing = &Routing{Service: "admob", Capability: "reporting"}
	s.UpsertToolCall(ToolCall{ID: "a", Name: "admob_list_accounts", Result: &result})
	s.PendingApproval = &ApprovalRequest{ApprovalID: "ap-1", ToolName: "admob_create_ad_unit", ToolCallID: "b"}
	s.RecordToolEvent("a", "executed", "")

	data, err := json.Marshal(s)
	require.NoError(t, err)

	var back GraphState
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, s.ThreadID, back.ThreadID)
	assert.Equal(t, s.Routing.Service, back.Routing.Service)
	require.Len(t, back.ToolCalls, 1)
	assert.Equal(t, result, *back.ToolCalls[0].Result)
	assert.Equal(t, "ap-1", back.PendingApproval.ApprovalID)
}
