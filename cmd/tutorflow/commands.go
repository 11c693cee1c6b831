package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BaSui01/tutorflow/agent/tutor"
	"github.com/BaSui01/tutorflow/internal/migration"
	"github.com/BaSui01/tutorflow/rag"
)

// errUsage 参数错误，flag 包已经打印过说明
var errUsage = errors.New("usage")

func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to config file")
	return fs, configPath
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	return nil
}

// parseValue 解析 JSON 参数，不是合法 JSON 时按普通字符串处理
func parseValue(s string) any {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// =============================================================================
// 🤖 invoke 命令
// =============================================================================

func runInvoke(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("invoke", stderr)
	name := fs.String("agent", "", "Agent name")
	input := fs.String("input", "", "Input JSON")
	inputFile := fs.String("input-file", "", "Read input JSON from file (- for stdin)")
	batch := fs.Bool("batch", false, "Input is a list, invoke once per item")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *name == "" {
		fmt.Fprintln(stderr, "invoke: -agent is required")
		fs.Usage()
		return errUsage
	}

	raw := []byte(*input)
	if *inputFile != "" {
		var err error
		if *inputFile == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(*inputFile)
		}
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
	}
	var payload any
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := json.Unmarshal(raw, &payload); err != nil {
			return fmt.Errorf("input is not valid JSON: %w", err)
		}
	}
	payload = prepare(*name, payload)

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	reg, err := a.registry()
	if err != nil {
		return err
	}
	out, err := reg.InvokeAgent(ctx, *name, payload, *batch)
	if err != nil {
		return err
	}
	if s, ok := out.(string); ok {
		_, err = fmt.Fprintln(stdout, s)
		return err
	}
	return writeJSON(stdout, out)
}

// prepare 为映射或映射列表补齐 Agent 的默认变量
func prepare(agentName string, payload any) any {
	switch v := payload.(type) {
	case map[string]any:
		return tutor.PrepareInput(agentName, v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = prepare(agentName, item)
		}
		return out
	default:
		return payload
	}
}

// =============================================================================
// 📚 learn 命令
// =============================================================================

func runLearn(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("learn", stderr)
	session := fs.String("session", "", "Learning session (JSON or text)")
	profile := fs.String("profile", "", "Learner profile (JSON or text)")
	path := fs.String("path", "", "Learning path (JSON or text)")
	withQuiz := fs.Bool("quiz", false, "Also generate a quiz")
	noSearch := fs.Bool("no-search", false, "Draft without retrieving external resources")
	format := fs.String("format", "markdown", "Output format: markdown or json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*session) == "" {
		fmt.Fprintln(stderr, "learn: -session is required")
		fs.Usage()
		return errUsage
	}
	if *format != "markdown" && *format != "json" {
		return fmt.Errorf("unknown format %q", *format)
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	var retriever tutor.Retriever
	if !*noSearch {
		svc, err := a.ragService(ctx)
		if err != nil {
			return err
		}
		retriever = svc
	}
	t, err := a.tutor(retriever)
	if err != nil {
		return err
	}

	content, err := t.CreateLearningContent(ctx, tutor.Session{
		LearnerProfile:  parseValue(*profile),
		LearningPath:    parseValue(*path),
		LearningSession: parseValue(*session),
	}, *withQuiz)
	if err != nil {
		return err
	}

	if *format == "json" {
		return writeJSON(stdout, content)
	}
	fmt.Fprint(stdout, content.Document)
	if content.Quizzes != nil {
		fmt.Fprint(stdout, "\n\n## Quiz\n\n```json\n")
		if err := writeJSON(stdout, content.Quizzes); err != nil {
			return err
		}
		fmt.Fprint(stdout, "```\n")
	}
	return nil
}

// =============================================================================
// 🔎 ingest / retrieve 命令
// =============================================================================

func runIngest(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("ingest", stderr)
	collection := fs.String("collection", tutor.DefaultCollection, "Collection name")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(stderr, "ingest: a query is required")
		return errUsage
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.ragService(ctx)
	if err != nil {
		return err
	}
	report, err := svc.Ingest(ctx, query, *collection)
	if err != nil {
		return err
	}
	printReport(stdout, *collection, report)
	return nil
}

func printReport(w io.Writer, collection string, r *rag.IngestReport) {
	fmt.Fprintf(w, "Collection: %s\n", collection)
	fmt.Fprintf(w, "Query:      %s\n", r.Query)
	fmt.Fprintf(w, "Candidates: %d\n", len(r.Candidates))
	fmt.Fprintf(w, "New URLs:   %d\n", len(r.NewURLs))
	for _, u := range r.NewURLs {
		fmt.Fprintf(w, "  - %s\n", u)
	}
	fmt.Fprintf(w, "Documents:  %d\n", r.Documents)
	fmt.Fprintf(w, "Chunks:     %d\n", r.Chunks)
	fmt.Fprintf(w, "Cached:     %d\n", len(r.Cached))
	for _, e := range r.Errors {
		fmt.Fprintf(w, "Warning: %s\n", e)
	}
}

func runRetrieve(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("retrieve", stderr)
	collection := fs.String("collection", tutor.DefaultCollection, "Collection name")
	k := fs.Int("k", 0, "Number of documents (default rag.retrieve_k)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Fprintln(stderr, "retrieve: a query is required")
		return errUsage
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.ragService(ctx)
	if err != nil {
		return err
	}
	n := *k
	if n <= 0 {
		n = a.cfg.RAG.RetrieveK
	}
	docs, err := svc.Retrieve(ctx, query, *collection, n)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, rag.FormatDocs(docs))
	return nil
}

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func runMigrate(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs, configPath := newFlagSet("migrate", stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, migration.Usage) }
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, migration.Usage)
		return errUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	m, err := migration.NewMigratorFromConfig(cfg.Cache.SQL)
	if err != nil {
		return err
	}
	defer m.Close()

	cli := migration.NewCLI(m)
	cli.SetOutput(stdout)
	return cli.Run(ctx, fs.Args())
}
