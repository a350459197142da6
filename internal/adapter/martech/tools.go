package martech

import (
	"context"

	"github.com/zhuermu/zmead-sub004/internal/domain/action"
	"github.com/zhuermu/zmead-sub004/internal/port/tooling"
)

// RegisterTools adds every capability-backed tool to the registry.
// The registry is the single catalog of what plans may execute;
// a tool absent here cannot be reached by any plan.
func RegisterTools(reg *tooling.Registry, c *Client) {
	reg.Register(tooling.NewTool("generate_creative", action.ModuleCreative,
		"Generate ad creative variants for a product",
		func(ctx context.Context, args GenerateCreativeArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/creative/generate", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data, Units: countUnits(data, "creatives")}, nil
		}))

	reg.Register(tooling.NewTool("batch_generate_creatives", action.ModuleCreative,
		"Generate creatives for several products in one call",
		func(ctx context.Context, args BatchGenerateArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/creative/batch-generate", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data, Units: countUnits(data, "creatives")}, nil
		}))

	reg.Register(tooling.NewTool("create_campaign", action.ModuleCampaign,
		"Create an advertising campaign",
		func(ctx context.Context, args CreateCampaignArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/campaigns", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data}, nil
		}))

	reg.Register(tooling.NewTool("update_campaign_budget", action.ModuleCampaign,
		"Change a campaign's daily budget",
		func(ctx context.Context, args UpdateBudgetArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/campaigns/budget", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data}, nil
		}))

	reg.Register(tooling.NewTool("pause_campaign", action.ModuleCampaign,
		"Pause one campaign",
		func(ctx context.Context, args CampaignRefArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/campaigns/pause", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data}, nil
		}))

	reg.Register(tooling.NewTool("resume_campaign", action.ModuleCampaign,
		"Resume one paused campaign",
		func(ctx context.Context, args CampaignRefArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/campaigns/resume", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data}, nil
		}))

	reg.Register(tooling.NewTool("pause_all_campaigns", action.ModuleCampaign,
		"Pause every active campaign in the account",
		func(ctx context.Context, args AccountArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/campaigns/pause-all", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data}, nil
		}))

	reg.Register(tooling.NewTool("delete_campaign", action.ModuleCampaign,
		"Permanently delete a campaign",
		func(ctx context.Context, args CampaignRefArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/campaigns/delete", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data}, nil
		}))

	reg.Register(tooling.NewTool("get_campaign_report", action.ModuleReport,
		"Fetch performance metrics for a campaign",
		func(ctx context.Context, args ReportArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/reports/campaign", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data}, nil
		}))

	reg.Register(tooling.NewTool("create_landing_page", action.ModuleLanding,
		"Generate a landing page for a product",
		func(ctx context.Context, args LandingPageArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/landing-pages", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data}, nil
		}))

	reg.Register(tooling.NewTool("get_market_insight", action.ModuleInsight,
		"Analyze market trends for a product category",
		func(ctx context.Context, args InsightArgs) (*tooling.Result, error) {
			data, err := c.post(ctx, "/api/v1/insights/market", args)
			if err != nil {
				return nil, err
			}
			return &tooling.Result{Data: data}, nil
		}))
}

// countUnits reads the number of generated items from a response list,
// so billing can use actual output rather than the requested count.
func countUnits(data map[string]any, field string) int64 {
	items, ok := data[field].([]any)
	if !ok {
		return 0
	}
	return int64(len(items))
}

// GenerateCreativeArgs are the params for generate_creative.
type GenerateCreativeArgs struct {
	Product    string `json:"product"`
	Count      int    `json:"count,omitempty"`
	WithImages bool   `json:"with_images,omitempty"`
	Audience   string `json:"audience,omitempty"`
	Tone       string `json:"tone,omitempty"`
}

// BatchGenerateArgs are the params for batch_generate_creatives.
type BatchGenerateArgs struct {
	Products   []string `json:"products"`
	Count      int      `json:"count,omitempty"`
	WithImages bool     `json:"with_images,omitempty"`
}

// CreateCampaignArgs are the params for create_campaign.
type CreateCampaignArgs struct {
	Name        string   `json:"name"`
	Objective   string   `json:"objective,omitempty"`
	DailyBudget float64  `json:"daily_budget,omitempty"`
	CreativeIDs []string `json:"creative_ids,omitempty"`
	LandingURL  string   `json:"landing_url,omitempty"`
}

// UpdateBudgetArgs are the params for update_campaign_budget.
type UpdateBudgetArgs struct {
	CampaignID    string  `json:"campaign_id"`
	NewBudget     float64 `json:"new_budget"`
	CurrentBudget float64 `json:"current_budget,omitempty"`
}

// CampaignRefArgs reference a single campaign.
type CampaignRefArgs struct {
	CampaignID string `json:"campaign_id"`
}

// AccountArgs scope an operation to a whole ad account.
type AccountArgs struct {
	AccountID string `json:"account_id,omitempty"`
}

// ReportArgs are the params for get_campaign_report.
type ReportArgs struct {
	CampaignID string `json:"campaign_id"`
	Period     string `json:"period,omitempty"`
	Detailed   bool   `json:"detailed,omitempty"`
}

// LandingPageArgs are the params for create_landing_page.
type LandingPageArgs struct {
	Product  string `json:"product"`
	Template string `json:"template,omitempty"`
	WithSEO  bool   `json:"with_seo,omitempty"`
}

// InsightArgs are the params for get_market_insight.
type InsightArgs struct {
	Category string `json:"category"`
	Region   string `json:"region,omitempty"`
	Period   string `json:"period,omitempty"`
}
