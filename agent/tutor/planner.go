package tutor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/agent"
	"github.com/BaSui01/tutorflow/agent/structured"
	"github.com/BaSui01/tutorflow/types"
)

// Planner agent names.
const (
	GoalRefinerName    = "refine_learning_goal"
	SkillMapperName    = "map_goal_to_skills"
	SkillGapName       = "identify_skill_gaps"
	ProfileInitName    = "initialize_learner_profile"
	ProfileUpdateName  = "update_learner_profile"
	PathScheduleName   = "schedule_learning_path"
	PathRefineName     = "refine_learning_path"
	PathRescheduleName = "reschedule_learning_path"
)

const maxGapReasonWords = 20

var profileKeys = []string{"learning_goal", "cognitive_status", "learning_preferences", "behavioral_patterns"}

// 熟练度排序，用于判断 is_gap
var levelOrder = map[string]int{"unlearned": 0, "beginner": 1, "intermediate": 2, "advanced": 3}

var skillRequirementsSchema = structured.MustSchema(`{
	"type": "object",
	"required": ["skill_requirements"],
	"additionalProperties": false,
	"properties": {
		"skill_requirements": {
			"type": "array",
			"minItems": 1,
			"maxItems": 10,
			"items": {
				"type": "object",
				"required": ["name", "required_level"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"required_level": {"enum": ["beginner", "intermediate", "advanced"]}
				}
			}
		}
	}
}`)

var skillGapsSchema = structured.MustSchema(`{
	"type": "object",
	"required": ["skill_gaps"],
	"additionalProperties": false,
	"properties": {
		"skill_gaps": {
			"type": "array",
			"minItems": 1,
			"maxItems": 10,
			"items": {
				"type": "object",
				"required": ["name", "is_gap", "required_level", "current_level", "reason", "level_confidence"],
				"properties": {
					"name": {"type": "string", "minLength": 1},
					"is_gap": {"type": "boolean"},
					"required_level": {"enum": ["beginner", "intermediate", "advanced"]},
					"current_level": {"enum": ["unlearned", "beginner", "intermediate", "advanced"]},
					"reason": {"type": "string"},
					"level_confidence": {"enum": ["low", "medium", "high"]}
				}
			}
		}
	}
}`)

var learningPathSchema = structured.MustSchema(`{
	"type": "array",
	"minItems": 1,
	"maxItems": 10,
	"items": {
		"type": "object",
		"required": ["id", "title", "abstract", "if_learned"],
		"properties": {
			"id": {"type": "string", "minLength": 1},
			"title": {"type": "string"},
			"abstract": {"type": "string"},
			"if_learned": {"type": "boolean"},
			"associated_skills": {"type": "array", "items": {"type": "string"}},
			"desired_outcome_when_completed": {
				"type": "array",
				"items": {
					"type": "object",
					"required": ["name", "level"],
					"properties": {
						"name": {"type": "string"},
						"level": {"enum": ["beginner", "intermediate", "advanced"]}
					}
				}
			}
		}
	}
}`)

// Planner prepares a learner for content generation: it refines the goal,
// maps it to skills, identifies skill gaps, keeps the learner profile and
// schedules the learning path the Tutor then works through session by session.
type Planner struct {
	goalRefiner    *agent.Agent
	skillMapper    *agent.Agent
	gapIdentifier  *agent.Agent
	profileInit    *agent.Agent
	profileUpdate  *agent.Agent
	pathSchedule   *agent.Agent
	pathRefine     *agent.Agent
	pathReschedule *agent.Agent

	logger *zap.Logger
}

// NewPlanner builds the planner agents from the prompt bundle. Retriever,
// Parallel and MaxWorkers are not used.
func NewPlanner(opts Options) (*Planner, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	bundle := opts.Prompts
	if bundle == nil {
		var err error
		if bundle, err = DefaultPrompts(); err != nil {
			return nil, err
		}
	}

	agentOpts := append([]agent.Option{agent.WithLogger(logger)}, opts.AgentOptions...)
	build := func(name string, input agent.InputCheck, check structured.Validator) (*agent.Agent, error) {
		spec, err := bundle.Spec(name)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidConfig, "load planner prompt").WithAgent(name).WithCause(err)
		}
		return agent.New(agent.Config{
			Name:       name,
			Prompt:     spec,
			Model:      opts.Model,
			MaxRetries: opts.MaxRetries,
			Timeout:    opts.Timeout,
			Check:      agent.ValueCheck(check),
			InputCheck: input,
		}, agentOpts...)
	}

	p := &Planner{logger: logger.With(zap.String("component", "planner"))}
	steps := []struct {
		dst   **agent.Agent
		name  string
		input agent.InputCheck
		check structured.Validator
	}{
		{&p.goalRefiner, GoalRefinerName,
			agent.RequireText("learning_goal"),
			structured.KeySet("goal")},
		{&p.skillMapper, SkillMapperName,
			agent.RequireText("learning_goal"),
			structured.All(skillRequirementsSchema, uniqueNames("skill_requirements"))},
		{&p.gapIdentifier, SkillGapName,
			agent.Inputs(agent.RequireText("learning_goal", "learner_information"), agent.RequireObject("skill_requirements")),
			structured.All(skillGapsSchema, uniqueNames("skill_gaps"), consistentGaps())},
		{&p.profileInit, ProfileInitName,
			agent.Inputs(agent.RequireText("learning_goal"), agent.RequirePresent("learner_information", "skill_gap")),
			structured.KeySet(profileKeys...)},
		{&p.profileUpdate, ProfileUpdateName,
			agent.RequirePresent("learner_profile", "learner_interactions", "learner_information"),
			structured.KeySet(profileKeys...)},
		{&p.pathSchedule, PathScheduleName,
			agent.RequirePresent("learner_profile"),
			learningPathSchema},
		{&p.pathRefine, PathRefineName,
			agent.RequirePresent("learning_path", "feedback"),
			learningPathSchema},
		{&p.pathReschedule, PathRescheduleName,
			agent.RequirePresent("learner_profile", "learning_path"),
			learningPathSchema},
	}
	for _, s := range steps {
		a, err := build(s.name, s.input, s.check)
		if err != nil {
			return nil, err
		}
		*s.dst = a
	}
	return p, nil
}

// uniqueNames 拒绝 key 列表中名称重复（忽略大小写与首尾空白）的输出
func uniqueNames(key string) structured.Validator {
	return structured.ValidatorFunc(func(value any) error {
		obj, _ := value.(map[string]any)
		seen := make(map[string]bool)
		for _, it := range listOf(obj[key]) {
			item, _ := it.(map[string]any)
			name := strings.ToLower(strings.TrimSpace(text(item["name"])))
			if seen[name] {
				return types.ValidatorRejected(fmt.Sprintf("duplicate skill name %q", name))
			}
			seen[name] = true
		}
		return nil
	})
}

// consistentGaps 要求 is_gap 与等级比较一致，且 reason 不超过 20 个词
func consistentGaps() structured.Validator {
	return structured.ValidatorFunc(func(value any) error {
		obj, _ := value.(map[string]any)
		for _, it := range listOf(obj["skill_gaps"]) {
			gap, _ := it.(map[string]any)
			current, required := text(gap["current_level"]), text(gap["required_level"])
			want := levelOrder[current] < levelOrder[required]
			if isGap, _ := gap["is_gap"].(bool); isGap != want {
				return types.ValidatorRejected(fmt.Sprintf("skill %q: is_gap=%v but current %q vs required %q implies %v",
					text(gap["name"]), isGap, current, required, want))
			}
			if n := len(strings.Fields(text(gap["reason"]))); n > maxGapReasonWords {
				return types.ValidatorRejected(fmt.Sprintf("skill %q: reason has %d words", text(gap["name"]), n))
			}
		}
		return nil
	})
}

// Agents returns the planner agents for registration.
func (p *Planner) Agents() []*agent.Agent {
	return []*agent.Agent{
		p.goalRefiner, p.skillMapper, p.gapIdentifier,
		p.profileInit, p.profileUpdate,
		p.pathSchedule, p.pathRefine, p.pathReschedule,
	}
}

func (p *Planner) object(ctx context.Context, a *agent.Agent, input map[string]any) (map[string]any, error) {
	out, err := a.Invoke(ctx, PrepareInput(a.Name(), input))
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

func (p *Planner) list(ctx context.Context, a *agent.Agent, input map[string]any) ([]any, error) {
	out, err := a.Invoke(ctx, PrepareInput(a.Name(), input))
	if err != nil {
		return nil, err
	}
	sessions, _ := out.([]any)
	p.logger.Info("learning path scheduled", zap.String("agent", a.Name()), zap.Int("sessions", len(sessions)))
	return sessions, nil
}

// RefineGoal clarifies goal and returns the refined goal text.
func (p *Planner) RefineGoal(ctx context.Context, goal string, learnerInformation any) (string, error) {
	out, err := p.object(ctx, p.goalRefiner, map[string]any{
		"learning_goal":       goal,
		"learner_information": learnerInformation,
	})
	if err != nil {
		return "", err
	}
	return text(out["goal"]), nil
}

// MapGoalToSkills lists the skills goal requires as {"skill_requirements": [...]}.
func (p *Planner) MapGoalToSkills(ctx context.Context, goal string) (map[string]any, error) {
	return p.object(ctx, p.skillMapper, map[string]any{"learning_goal": goal})
}

// IdentifySkillGaps compares the learner with requirements. Empty
// requirements are mapped from goal first; the requirements used are
// returned alongside the gaps.
func (p *Planner) IdentifySkillGaps(ctx context.Context, goal, learnerInformation string, requirements map[string]any) (gaps, used map[string]any, err error) {
	if len(requirements) == 0 {
		if requirements, err = p.MapGoalToSkills(ctx, goal); err != nil {
			return nil, nil, fmt.Errorf("map goal to skills: %w", err)
		}
	}
	gaps, err = p.object(ctx, p.gapIdentifier, map[string]any{
		"learning_goal":       goal,
		"learner_information": learnerInformation,
		"skill_requirements":  requirements,
	})
	if err != nil {
		return nil, nil, err
	}
	p.logger.Info("skill gaps identified", zap.Int("skills", len(listOf(gaps["skill_gaps"]))))
	return gaps, requirements, nil
}

// InitializeProfile builds the first learner profile.
func (p *Planner) InitializeProfile(ctx context.Context, goal string, learnerInformation, skillGaps any) (map[string]any, error) {
	return p.object(ctx, p.profileInit, map[string]any{
		"learning_goal":       goal,
		"learner_information": learnerInformation,
		"skill_gap":           skillGaps,
	})
}

// ProfileUpdate carries the evidence for UpdateProfile.
type ProfileUpdate struct {
	Profile            any `json:"learner_profile"`
	Interactions       any `json:"learner_interactions"`
	LearnerInformation any `json:"learner_information"`
	// SessionInformation 可为空
	SessionInformation any `json:"session_information,omitempty"`
}

// UpdateProfile folds new interactions into an existing profile.
func (p *Planner) UpdateProfile(ctx context.Context, u ProfileUpdate) (map[string]any, error) {
	input := map[string]any{
		"learner_profile":      u.Profile,
		"learner_interactions": u.Interactions,
		"learner_information":  u.LearnerInformation,
	}
	if u.SessionInformation != nil {
		input["session_information"] = u.SessionInformation
	}
	return p.object(ctx, p.profileUpdate, input)
}

// SchedulePath schedules sessions for profile. sessionCount 0 lets the
// model choose.
func (p *Planner) SchedulePath(ctx context.Context, profile any, sessionCount int) ([]any, error) {
	return p.list(ctx, p.pathSchedule, map[string]any{
		"learner_profile": profile,
		"session_count":   sessionCount,
	})
}

// RefinePath revises path using evaluator feedback.
func (p *Planner) RefinePath(ctx context.Context, path []any, feedback any) ([]any, error) {
	return p.list(ctx, p.pathRefine, map[string]any{
		"learning_path": path,
		"feedback":      feedback,
	})
}

// Reschedule carries the inputs of ReschedulePath.
type Reschedule struct {
	Profile any
	Path    []any
	// SessionCount 为 0 时保持现有会话数
	SessionCount  int
	OtherFeedback any
}

// ReschedulePath adapts an existing path to an updated profile.
func (p *Planner) ReschedulePath(ctx context.Context, r Reschedule) ([]any, error) {
	input := map[string]any{
		"learner_profile": r.Profile,
		"learning_path":   r.Path,
	}
	if r.SessionCount > 0 {
		input["session_count"] = r.SessionCount
	}
	if r.OtherFeedback != nil {
		input["other_feedback"] = r.OtherFeedback
	}
	return p.list(ctx, p.pathReschedule, input)
}

func listOf(v any) []any {
	l, _ := v.([]any)
	return l
}
