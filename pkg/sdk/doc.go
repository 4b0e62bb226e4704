// Package tokenguard embeds the metering, budget and quota engine in a Go
// program without the HTTP server.
//
// The host performs the upstream call itself and reports what it consumed:
//
//	g, _ := tokenguard.New(ctx, tokenguard.WithBudget(5.00))
//	defer g.Close()
//
//	out, err := g.ReportCompletion(ctx, tokenguard.Completion{
//	    Principal:    "acme",
//	    Tier:         tokenguard.TierFree,
//	    InputTokens:  812,
//	    OutputTokens: 240,
//	})
//	if err == nil && !out.Allowed() {
//	    // stop serving acme: out.Reason is budget_exceeded or quota_exceeded
//	}
//
// State lives in process memory by default. WithRedis or WithValkey moves
// anonymous tokens and per-address counters to a shared server so several
// processes can hand out and consume the same tokens.
package tokenguard
