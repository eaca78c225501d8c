package governance

import (
	"context"
	"testing"
)

func TestDefaultPolicyEngine_Evaluate(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	ctx := context.Background()

	// Test Allow (Default)
	req1 := Request{Tool: "search_attractions"}
	res1, err := engine.Evaluate(ctx, req1)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res1.Effect != EffectAllow {
		t.Errorf("Expected EffectAllow, got %s", res1.Effect)
	}

	// Test Deny
	engine.DenyTool("get_nearby_places")
	req2 := Request{Tool: "get_nearby_places"}
	res2, err := engine.Evaluate(ctx, req2)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if res2.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res2.Effect)
	}
}

func TestDefaultPolicyEngine_DenyArguments(t *testing.T) {
	engine := NewDefaultPolicyEngine()
	if err := engine.DenyArguments(`"num_of_rows":\s*\d{3,}`); err != nil {
		t.Fatal(err)
	}

	res, err := engine.Evaluate(context.Background(), Request{
		Tool:      "search_attractions",
		Arguments: `{"keyword": "제주", "num_of_rows": 5000}`,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Effect != EffectDeny {
		t.Errorf("Expected EffectDeny, got %s", res.Effect)
	}

	if err := engine.DenyArguments(`[invalid`); err == nil {
		t.Error("expected error for invalid pattern")
	}
}
