package tutor

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/BaSui01/tutorflow/agent"
	"github.com/BaSui01/tutorflow/agent/batch"
	"github.com/BaSui01/tutorflow/agent/prompt"
	"github.com/BaSui01/tutorflow/agent/structured"
	"github.com/BaSui01/tutorflow/llm"
	"github.com/BaSui01/tutorflow/rag"
	"github.com/BaSui01/tutorflow/types"
)

// Agent names, also the keys of the prompt bundle.
const (
	ExplorerName   = "explore_knowledge_points"
	DrafterName    = "draft_knowledge_point"
	IntegratorName = "integrate_learning_document"
	QuizName       = "generate_document_quizzes"
)

// DefaultCollection 会话标题不可用时的集合名
const DefaultCollection = "learning_session"

// 知识点类型及其在文档中的章节标题，顺序即章节顺序
var knowledgeParts = []struct {
	kind  string
	title string
}{
	{"foundational", "## Foundational Concepts"},
	{"practical", "## Practical Applications"},
	{"strategic", "## Strategic Insights"},
}

var quizKeys = []string{
	"single_choice_questions",
	"multiple_choice_questions",
	"true_false_questions",
	"short_answer_questions",
}

var quizCountKeys = []string{
	"single_choice_count",
	"multiple_choice_count",
	"true_false_count",
	"short_answer_count",
}

//go:embed prompts.yaml
var defaultPrompts []byte

// DefaultPrompts parses the built-in prompt bundle.
func DefaultPrompts() (*prompt.Bundle, error) {
	return prompt.ParseBundle(defaultPrompts)
}

// LoadPrompts returns the built-in bundle overlaid with the bundle at path.
// An empty path returns the built-in bundle.
func LoadPrompts(path string) (*prompt.Bundle, error) {
	base, err := DefaultPrompts()
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(path) == "" {
		return base, nil
	}
	override, err := prompt.LoadBundleFile(path)
	if err != nil {
		return nil, err
	}
	return base.Merge(override), nil
}

// Retriever fetches external resources for a query. *rag.Service satisfies it.
type Retriever interface {
	RunRetrieval(ctx context.Context, query, collection string) ([]rag.Document, error)
}

// Options configures a Tutor.
type Options struct {
	Model llm.ModelSource

	// Prompts 为 nil 时使用内置提示词
	Prompts *prompt.Bundle

	// Retriever 为 nil 时不做检索，external_resources 为空串
	Retriever Retriever

	MaxRetries int
	Timeout    time.Duration

	// Parallel 并行起草知识点，MaxWorkers 为并发上限
	Parallel   bool
	MaxWorkers int

	Logger       *zap.Logger
	AgentOptions []agent.Option
}

// Tutor generates tailored learning content with four agents:
// explore knowledge points, draft each point with retrieved resources,
// integrate the drafts into a document, and generate a quiz.
type Tutor struct {
	explorer   *agent.Agent
	drafter    *agent.Agent
	integrator *agent.Agent
	quizzer    *agent.Agent

	retriever  Retriever
	parallel   bool
	maxWorkers int
	logger     *zap.Logger
}

// New builds the four agents from the prompt bundle.
func New(opts Options) (*Tutor, error) {
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

	t := &Tutor{
		retriever:  opts.Retriever,
		parallel:   opts.Parallel,
		maxWorkers: opts.MaxWorkers,
		logger:     logger.With(zap.String("component", "tutor")),
	}

	agentOpts := append([]agent.Option{agent.WithLogger(logger)}, opts.AgentOptions...)
	build := func(name string, check agent.Check) (*agent.Agent, error) {
		spec, err := bundle.Spec(name)
		if err != nil {
			return nil, types.NewError(types.ErrInvalidConfig, "load tutor prompt").WithAgent(name).WithCause(err)
		}
		return agent.New(agent.Config{
			Name:       name,
			Prompt:     spec,
			Model:      opts.Model,
			MaxRetries: opts.MaxRetries,
			Timeout:    opts.Timeout,
			Check:      check,
		}, agentOpts...)
	}

	var err error
	if t.explorer, err = build(ExplorerName, agent.ValueCheck(knowledgePointsValidator())); err != nil {
		return nil, err
	}
	if t.drafter, err = build(DrafterName, agent.ValueCheck(structured.KeySet("title", "content"))); err != nil {
		return nil, err
	}
	if t.integrator, err = build(IntegratorName, agent.ValueCheck(structured.KeySet("title", "overview", "summary"))); err != nil {
		return nil, err
	}
	if t.quizzer, err = build(QuizName, agent.ValueCheck(structured.KeySet(quizKeys...))); err != nil {
		return nil, err
	}
	return t, nil
}

// knowledgePointsValidator 接受至少含一个 {name, type} 项的列表
func knowledgePointsValidator() structured.Validator {
	item := structured.KeySet("name", "type")
	return structured.All(
		structured.ListOf(1, nil),
		structured.Predicate(func(value any) bool {
			for _, el := range value.([]any) {
				if item.Validate(el) == nil {
					return true
				}
			}
			return false
		}, "no knowledge point with keys {name, type}"),
	)
}

// Agents returns the underlying agents for registration.
func (t *Tutor) Agents() []*agent.Agent {
	return []*agent.Agent{t.explorer, t.drafter, t.integrator, t.quizzer}
}

// Session is the learner context shared by every stage.
type Session struct {
	LearnerProfile  any `json:"learner_profile"`
	LearningPath    any `json:"learning_path"`
	LearningSession any `json:"learning_session"`
}

func (s Session) input() map[string]any {
	return map[string]any{
		"learner_profile":  s.LearnerProfile,
		"learning_path":    s.LearningPath,
		"learning_session": s.LearningSession,
	}
}

// ExploreKnowledgePoints lists the knowledge points of the session.
func (t *Tutor) ExploreKnowledgePoints(ctx context.Context, s Session) ([]any, error) {
	out, err := t.explorer.Invoke(ctx, s.input())
	if err != nil {
		return nil, err
	}
	points, _ := out.([]any)
	t.logger.Info("knowledge points explored", zap.Int("count", len(points)))
	return points, nil
}

// DraftKnowledgePoint drafts one knowledge point. When a retriever is set,
// resources for "<session title> <point name>" are ingested into the
// session's collection and injected as external_resources.
func (t *Tutor) DraftKnowledgePoint(ctx context.Context, s Session, points []any, point any) (map[string]any, error) {
	input := s.input()
	input["knowledge_points"] = points
	input["knowledge_point"] = point
	input["external_resources"] = ""

	if t.retriever != nil {
		title, err := SessionTitle(s.LearningSession)
		if err != nil {
			return nil, err
		}
		query := strings.TrimSpace(title + " " + pointName(point))
		collection := CollectionFor(title)
		docs, err := t.retriever.RunRetrieval(ctx, query, collection)
		if err != nil {
			return nil, fmt.Errorf("retrieve resources for %q: %w", query, err)
		}
		t.logger.Debug("external resources retrieved",
			zap.String("query", query),
			zap.String("collection", collection),
			zap.Int("documents", len(docs)))
		input["external_resources"] = rag.FormatDocs(docs)
	}

	out, err := t.drafter.Invoke(ctx, input)
	if err != nil {
		return nil, err
	}
	draft, _ := out.(map[string]any)
	return draft, nil
}

// DraftKnowledgePoints drafts every point through the batch executor.
// Drafts are returned in the order of points.
func (t *Tutor) DraftKnowledgePoints(ctx context.Context, s Session, points []any) ([]any, error) {
	drafts, err := batch.Run(ctx, points, func(ctx context.Context, point any) (any, error) {
		return t.DraftKnowledgePoint(ctx, s, points, point)
	}, batch.Options{Parallel: t.parallel, MaxWorkers: t.maxWorkers})
	if err != nil {
		return nil, err
	}
	t.logger.Info("knowledge points drafted", zap.Int("count", len(drafts)), zap.Bool("parallel", t.parallel))
	return drafts, nil
}

// IntegrateDocument asks the integrator for title, overview and summary and
// assembles the Markdown document.
func (t *Tutor) IntegrateDocument(ctx context.Context, s Session, points, drafts []any) (string, error) {
	input := s.input()
	input["knowledge_points"] = points
	input["knowledge_drafts"] = drafts

	out, err := t.integrator.Invoke(ctx, input)
	if err != nil {
		return "", err
	}
	structure, _ := out.(map[string]any)
	return AssembleMarkdown(structure, points, drafts)
}

// QuizCounts 各题型数量
type QuizCounts struct {
	SingleChoice   int `json:"single_choice_count"`
	MultipleChoice int `json:"multiple_choice_count"`
	TrueFalse      int `json:"true_false_count"`
	ShortAnswer    int `json:"short_answer_count"`
}

// DefaultQuizCounts 完整流程生成的题目数量
var DefaultQuizCounts = QuizCounts{SingleChoice: 3}

// GenerateQuiz generates questions about document.
func (t *Tutor) GenerateQuiz(ctx context.Context, learnerProfile any, document string, counts QuizCounts) (map[string]any, error) {
	input := map[string]any{
		"learner_profile":       learnerProfile,
		"learning_document":     document,
		"single_choice_count":   counts.SingleChoice,
		"multiple_choice_count": counts.MultipleChoice,
		"true_false_count":      counts.TrueFalse,
		"short_answer_count":    counts.ShortAnswer,
	}
	out, err := t.quizzer.Invoke(ctx, input)
	if err != nil {
		return nil, err
	}
	quiz, _ := out.(map[string]any)
	return quiz, nil
}

// optionalInputs 各 Agent 可省略的变量及其默认值
var optionalInputs = map[string]map[string]any{
	DrafterName:        {"external_resources": ""},
	GoalRefinerName:    {"learner_information": ""},
	ProfileUpdateName:  {"session_information": ""},
	PathScheduleName:   {"session_count": 0},
	PathRescheduleName: {"session_count": "", "other_feedback": ""},
}

// PrepareInput fills the defaults an agent expects when it is invoked
// directly: question counts and the desired session count default to 0,
// optional context such as external_resources defaults to "".
func PrepareInput(agentName string, input map[string]any) map[string]any {
	out := make(map[string]any, len(input)+len(quizCountKeys))
	for k, v := range input {
		out[k] = v
	}
	switch agentName {
	case QuizName:
		for _, k := range quizCountKeys {
			if _, ok := out[k]; !ok {
				out[k] = 0
			}
		}
	default:
		for k, def := range optionalInputs[agentName] {
			if v, ok := out[k]; !ok || v == nil {
				out[k] = def
			}
		}
	}
	return out
}

// LearningContent is the result of CreateLearningContent.
type LearningContent struct {
	Document        string         `json:"document"`
	KnowledgePoints []any          `json:"knowledge_points,omitempty"`
	Drafts          []any          `json:"knowledge_drafts,omitempty"`
	Quizzes         map[string]any `json:"quizzes,omitempty"`
}

// CreateLearningContent runs explore, draft, integrate and, when withQuiz is
// set, quiz generation with DefaultQuizCounts.
func (t *Tutor) CreateLearningContent(ctx context.Context, s Session, withQuiz bool) (*LearningContent, error) {
	points, err := t.ExploreKnowledgePoints(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("explore knowledge points: %w", err)
	}
	drafts, err := t.DraftKnowledgePoints(ctx, s, points)
	if err != nil {
		return nil, fmt.Errorf("draft knowledge points: %w", err)
	}
	doc, err := t.IntegrateDocument(ctx, s, points, drafts)
	if err != nil {
		return nil, fmt.Errorf("integrate learning document: %w", err)
	}

	content := &LearningContent{Document: doc, KnowledgePoints: points, Drafts: drafts}
	if !withQuiz {
		return content, nil
	}
	quiz, err := t.GenerateQuiz(ctx, s.LearnerProfile, doc, DefaultQuizCounts)
	if err != nil {
		return nil, fmt.Errorf("generate quiz: %w", err)
	}
	content.Quizzes = quiz
	return content, nil
}

// AssembleMarkdown renders the integrated document. Drafts are grouped under
// the part matching their knowledge point's type; drafts[i] belongs to points[i].
func AssembleMarkdown(structure map[string]any, points, drafts []any) (string, error) {
	for _, k := range []string{"title", "overview", "summary"} {
		if _, ok := structure[k]; !ok {
			return "", fmt.Errorf("document structure is missing %q", k)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s", text(structure["title"]))
	fmt.Fprintf(&b, "\n\n%s", text(structure["overview"]))
	for _, part := range knowledgeParts {
		fmt.Fprintf(&b, "\n\n%s\n", part.title)
		for i, p := range points {
			pm, ok := p.(map[string]any)
			if !ok || text(pm["type"]) != part.kind {
				continue
			}
			if i >= len(drafts) {
				return "", fmt.Errorf("no draft for knowledge point %d", i)
			}
			draft, ok := drafts[i].(map[string]any)
			if !ok {
				return "", fmt.Errorf("draft %d: expected object, got %T", i, drafts[i])
			}
			fmt.Fprintf(&b, "\n\n### %s\n", text(draft["title"]))
			fmt.Fprintf(&b, "\n\n%s\n", text(draft["content"]))
		}
	}
	fmt.Fprintf(&b, "\n\n## Summary\n\n%s", text(structure["summary"]))
	return b.String(), nil
}

func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

func pointName(point any) string {
	switch p := point.(type) {
	case map[string]any:
		return text(p["name"])
	case string:
		var m map[string]any
		if json.Unmarshal([]byte(p), &m) == nil {
			return text(m["name"])
		}
		return p
	default:
		return ""
	}
}

// SessionTitle extracts the title of a learning session given as an object
// or a JSON object string. A session without a title yields DefaultCollection.
func SessionTitle(session any) (string, error) {
	var m map[string]any
	switch s := session.(type) {
	case map[string]any:
		m = s
	case string:
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			return "", types.NewError(types.ErrMissingVariable, "learning_session must be an object").WithCause(err)
		}
	default:
		return "", types.NewError(types.ErrMissingVariable, fmt.Sprintf("learning_session must be an object, got %T", session))
	}
	if v, ok := m["title"]; ok && v != nil {
		return text(v), nil
	}
	return DefaultCollection, nil
}

// CollectionFor names the vector collection of a session title. Numeric
// titles and titles shorter than 3 characters fall back to DefaultCollection.
func CollectionFor(title string) string {
	if isNumeric(title) || utf8.RuneCountInString(title) < 3 {
		title = DefaultCollection
	}
	return SanitizeCollectionName(title)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}

var collectionUnsafe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

const maxCollectionName = 63

// SanitizeCollectionName maps name onto [A-Za-z0-9_-], 3 to 63 characters,
// starting and ending with an alphanumeric character.
func SanitizeCollectionName(name string) string {
	s := collectionUnsafe.ReplaceAllString(strings.TrimSpace(name), "_")
	s = strings.Trim(s, "_-")
	if len(s) > maxCollectionName {
		s = strings.TrimRight(s[:maxCollectionName], "_-")
	}
	if len(s) < 3 {
		return DefaultCollection
	}
	return s
}
